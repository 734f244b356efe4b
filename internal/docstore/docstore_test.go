package docstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vivenda-labs/ragd/internal/docstore"
)

func newTestStore(t *testing.T) *docstore.Store {
	t.Helper()
	store, err := docstore.NewStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testDoc(tenant, id string) *docstore.Document {
	return &docstore.Document{
		ID:       id,
		TenantID: tenant,
		Title:    "Regimento Interno",
		Source:   "regimento.md",
		Category: "regulamento",
		Content:  "## Piscina\n\nHorario das 8h as 22h.",
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	doc := testDoc("condo-1", "doc-1")
	require.NoError(t, store.Put(ctx, doc))

	got, err := store.Get(ctx, "condo-1", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "Regimento Interno", got.Title)
	assert.Equal(t, docstore.StatusReceived, got.Status)
	assert.Equal(t, "text/plain", got.ContentType)
	assert.False(t, got.CreatedAt.IsZero())
	assert.Equal(t, doc.Content, got.Content)
}

func TestPutReplacesExisting(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	doc := testDoc("condo-1", "doc-1")
	require.NoError(t, store.Put(ctx, doc))

	doc.Title = "Regimento Interno v2"
	require.NoError(t, store.Put(ctx, doc))

	got, err := store.Get(ctx, "condo-1", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "Regimento Interno v2", got.Title)

	docs, err := store.ListByTenant(ctx, "condo-1")
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestPutValidation(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	assert.ErrorIs(t, store.Put(ctx, &docstore.Document{TenantID: "condo-1", Title: "x"}), docstore.ErrInvalidDocument)
	assert.ErrorIs(t, store.Put(ctx, &docstore.Document{ID: "doc-1", Title: "x"}), docstore.ErrInvalidDocument)
	assert.ErrorIs(t, store.Put(ctx, &docstore.Document{ID: "doc-1", TenantID: "condo-1"}), docstore.ErrInvalidDocument)
}

func TestGetMissing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get(context.Background(), "condo-1", "missing")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestGetScopedByTenant(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.Put(ctx, testDoc("condo-1", "doc-1")))

	_, err := store.Get(ctx, "condo-2", "doc-1")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.Put(ctx, testDoc("condo-1", "doc-1")))

	require.NoError(t, store.Delete(ctx, "condo-1", "doc-1"))
	_, err := store.Get(ctx, "condo-1", "doc-1")
	assert.ErrorIs(t, err, docstore.ErrNotFound)

	assert.ErrorIs(t, store.Delete(ctx, "condo-1", "doc-1"), docstore.ErrNotFound)
}

func TestListByTenant(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.Put(ctx, testDoc("condo-1", "doc-1")))
	require.NoError(t, store.Put(ctx, testDoc("condo-1", "doc-2")))
	require.NoError(t, store.Put(ctx, testDoc("condo-2", "doc-3")))

	docs, err := store.ListByTenant(ctx, "condo-1")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	for _, d := range docs {
		assert.Equal(t, "condo-1", d.TenantID)
	}

	docs, err = store.ListByTenant(ctx, "condo-3")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestListAll(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.Put(ctx, testDoc("condo-1", "doc-1")))
	require.NoError(t, store.Put(ctx, testDoc("condo-2", "doc-2")))

	docs, err := store.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestSetStatusAndOutcome(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.Put(ctx, testDoc("condo-1", "doc-1")))

	require.NoError(t, store.SetStatus(ctx, "condo-1", "doc-1", docstore.StatusChunked))
	got, err := store.Get(ctx, "condo-1", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, docstore.StatusChunked, got.Status)

	require.NoError(t, store.SetOutcome(ctx, "condo-1", "doc-1", docstore.StatusDone, 7, 1, ""))
	got, err = store.Get(ctx, "condo-1", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, docstore.StatusDone, got.Status)
	assert.Equal(t, 7, got.ChunkCount)
	assert.Equal(t, 1, got.FailedChunks)

	assert.ErrorIs(t, store.SetStatus(ctx, "condo-1", "missing", docstore.StatusDone), docstore.ErrNotFound)
}

func TestPersistsToDisk(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ragd.db")

	store, err := docstore.NewStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, testDoc("condo-1", "doc-1")))
	require.NoError(t, store.Close())

	reopened, err := docstore.NewStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "condo-1", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "Regimento Interno", got.Title)
}
