package httpapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vivenda-labs/ragd/internal/answer"
	"github.com/vivenda-labs/ragd/internal/docstore"
	"github.com/vivenda-labs/ragd/internal/httpapi"
	"github.com/vivenda-labs/ragd/internal/ingest"
	"go.uber.org/zap"
)

type fakeIngestor struct {
	lastDoc   *docstore.Document
	result    *ingest.Result
	ingestErr error
	deleteErr error
}

func (f *fakeIngestor) Ingest(_ context.Context, doc *docstore.Document) (*ingest.Result, error) {
	f.lastDoc = doc
	if f.ingestErr != nil {
		return nil, f.ingestErr
	}
	return f.result, nil
}

func (f *fakeIngestor) DeleteDocument(_ context.Context, _, _ string) error {
	return f.deleteErr
}

type fakeAnswerer struct {
	lastTenant string
	lastQuery  string
	lastUser   string
	answer     *answer.Answer
	err        error
}

func (f *fakeAnswerer) Answer(_ context.Context, query, tenantID, userName string) (*answer.Answer, error) {
	f.lastQuery = query
	f.lastTenant = tenantID
	f.lastUser = userName
	if f.err != nil {
		return nil, f.err
	}
	return f.answer, nil
}

func newTestServer(t *testing.T, ing *fakeIngestor, ans *fakeAnswerer) http.Handler {
	t.Helper()
	srv, err := httpapi.NewServer(httpapi.Config{}, ing, ans, zap.NewNop())
	require.NoError(t, err)
	return srv.Handler()
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	handler := newTestServer(t, &fakeIngestor{}, &fakeAnswerer{})
	rec := doJSON(t, handler, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestIngestDocument(t *testing.T) {
	ing := &fakeIngestor{result: &ingest.Result{ChunkCount: 4, Status: docstore.StatusDone}}
	handler := newTestServer(t, ing, &fakeAnswerer{})

	rec := doJSON(t, handler, http.MethodPost, "/v1/tenants/condo-1/documents",
		`{"id":"doc-1","title":"Regimento Interno","content":"## Piscina\n\ntexto"}`)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp httpapi.IngestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "doc-1", resp.DocumentID)
	assert.Equal(t, 4, resp.ChunkCount)
	assert.Equal(t, "done", resp.Status)

	require.NotNil(t, ing.lastDoc)
	assert.Equal(t, "condo-1", ing.lastDoc.TenantID)
	assert.Equal(t, "Regimento Interno", ing.lastDoc.Title)
}

func TestIngestGeneratesID(t *testing.T) {
	ing := &fakeIngestor{result: &ingest.Result{ChunkCount: 1, Status: docstore.StatusDone}}
	handler := newTestServer(t, ing, &fakeAnswerer{})

	rec := doJSON(t, handler, http.MethodPost, "/v1/tenants/condo-1/documents",
		`{"title":"Ata","content":"texto da ata"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp httpapi.IngestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.DocumentID)
	assert.Equal(t, resp.DocumentID, ing.lastDoc.ID)
}

func TestIngestValidation(t *testing.T) {
	handler := newTestServer(t, &fakeIngestor{}, &fakeAnswerer{})

	rec := doJSON(t, handler, http.MethodPost, "/v1/tenants/condo-1/documents", `{"content":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/v1/tenants/condo-1/documents", `{"title":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "unsupported content", err: ingest.ErrUnsupportedContent, want: http.StatusUnsupportedMediaType},
		{name: "no chunks", err: ingest.ErrNoChunks, want: http.StatusUnprocessableEntity},
		{name: "rate limited", err: answer.ErrRateLimited, want: http.StatusTooManyRequests},
		{name: "internal", err: assert.AnError, want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := newTestServer(t, &fakeIngestor{ingestErr: tt.err}, &fakeAnswerer{})
			rec := doJSON(t, handler, http.MethodPost, "/v1/tenants/condo-1/documents",
				`{"title":"Ata","content":"texto"}`)
			assert.Equal(t, tt.want, rec.Code)
			// Internal detail never leaks to the resident.
			assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
		})
	}
}

func TestDeleteDocument(t *testing.T) {
	handler := newTestServer(t, &fakeIngestor{}, &fakeAnswerer{})
	rec := doJSON(t, handler, http.MethodDelete, "/v1/tenants/condo-1/documents/doc-1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestDeleteDocumentNotFound(t *testing.T) {
	handler := newTestServer(t, &fakeIngestor{deleteErr: docstore.ErrNotFound}, &fakeAnswerer{})
	rec := doJSON(t, handler, http.MethodDelete, "/v1/tenants/condo-1/documents/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAsk(t *testing.T) {
	ans := &fakeAnswerer{answer: &answer.Answer{
		Text:     "A piscina funciona das 8h às 22h (Regimento Interno).",
		Sources:  []answer.Source{{DocumentID: "doc-1", Title: "Regimento Interno", Score: 0.91}},
		Grounded: true,
	}}
	handler := newTestServer(t, &fakeIngestor{}, ans)

	rec := doJSON(t, handler, http.MethodPost, "/v1/tenants/condo-1/ask",
		`{"question":"Qual o horário da piscina?","user_name":"Maria"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp httpapi.AskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Grounded)
	assert.Contains(t, resp.Answer, "piscina")
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "Regimento Interno", resp.Sources[0].Title)

	assert.Equal(t, "condo-1", ans.lastTenant)
	assert.Equal(t, "Maria", ans.lastUser)
}

func TestAskGroundingMissIs200(t *testing.T) {
	ans := &fakeAnswerer{answer: &answer.Answer{
		Text:     "Não encontrei essa informação nos documentos do condomínio.",
		Sources:  []answer.Source{},
		Grounded: false,
	}}
	handler := newTestServer(t, &fakeIngestor{}, ans)

	rec := doJSON(t, handler, http.MethodPost, "/v1/tenants/condo-1/ask", `{"question":"Posso ter um leão?"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp httpapi.AskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Grounded)
	assert.Empty(t, resp.Sources)
}

func TestAskRateLimited(t *testing.T) {
	handler := newTestServer(t, &fakeIngestor{}, &fakeAnswerer{err: answer.ErrRateLimited})
	rec := doJSON(t, handler, http.MethodPost, "/v1/tenants/condo-1/ask", `{"question":"pergunta"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "try again shortly")
}

func TestTenantResolvedFromPath(t *testing.T) {
	ing := &fakeIngestor{result: &ingest.Result{ChunkCount: 1, Status: docstore.StatusDone}}
	ans := &fakeAnswerer{answer: &answer.Answer{Text: "ok", Sources: []answer.Source{}}}
	handler := newTestServer(t, ing, ans)

	rec := doJSON(t, handler, http.MethodPost, "/v1/tenants/condo-7/documents",
		`{"title":"Ata","content":"texto"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "condo-7", ing.lastDoc.TenantID)

	rec = doJSON(t, handler, http.MethodPost, "/v1/tenants/condo-7/ask", `{"question":"pergunta"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "condo-7", ans.lastTenant)

	// An empty tenant segment fails closed before any handler runs.
	rec = doJSON(t, handler, http.MethodPost, "/v1/tenants//ask", `{"question":"pergunta"}`)
	assert.GreaterOrEqual(t, rec.Code, http.StatusBadRequest)
	assert.Equal(t, "condo-7", ans.lastTenant, "answerer must not run without a tenant")
}

func TestAskValidation(t *testing.T) {
	handler := newTestServer(t, &fakeIngestor{}, &fakeAnswerer{})
	rec := doJSON(t, handler, http.MethodPost, "/v1/tenants/condo-1/ask", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
