package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vivenda-labs/ragd/internal/config"
	"github.com/vivenda-labs/ragd/internal/ingest"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "chromem", cfg.VectorStore.Provider)
	assert.Equal(t, 384, cfg.VectorStore.Chromem.VectorSize)
	assert.Equal(t, "BAAI/bge-small-en-v1.5", cfg.Embeddings.Model)
	assert.Equal(t, "condo_documents", cfg.Ingest.Collection)
	assert.Equal(t, ingest.FailFast, cfg.Ingest.FailurePolicy)
	assert.Equal(t, 5, cfg.Answer.TopK)
	assert.InDelta(t, 0.7, cfg.Answer.ScoreThreshold, 1e-6)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9999
vectorstore:
  provider: qdrant
  qdrant:
    host: qdrant.internal
ingest:
  collection: docs_v2
  failure_policy: best_effort
answer:
  top_k: 3
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "qdrant", cfg.VectorStore.Provider)
	assert.Equal(t, "qdrant.internal", cfg.VectorStore.Qdrant.Host)
	assert.Equal(t, "docs_v2", cfg.Ingest.Collection)
	assert.Equal(t, ingest.BestEffort, cfg.Ingest.FailurePolicy)
	assert.Equal(t, 3, cfg.Answer.TopK)
	// Defaults still apply to everything the file left out.
	assert.Equal(t, 6334, cfg.VectorStore.Qdrant.Port)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8090, cfg.Server.Port)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9999\n"), 0o600))

	t.Setenv("RAGD_SERVER_PORT", "7070")
	t.Setenv("RAGD_EMBEDDINGS_BASE_URL", "http://tei.internal:8080")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "http://tei.internal:8080", cfg.Embeddings.BaseURL)
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()

	badPolicy := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(badPolicy, []byte("ingest:\n  failure_policy: maybe\n"), 0o600))
	_, err := config.Load(badPolicy)
	assert.ErrorContains(t, err, "failure policy")

	badCollection := filepath.Join(dir, "collection.yaml")
	require.NoError(t, os.WriteFile(badCollection, []byte("ingest:\n  collection: Bad-Name\n"), 0o600))
	_, err = config.Load(badCollection)
	assert.ErrorContains(t, err, "collection")

	badProvider := filepath.Join(dir, "provider.yaml")
	require.NoError(t, os.WriteFile(badProvider, []byte("vectorstore:\n  provider: pinecone\n"), 0o600))
	_, err = config.Load(badProvider)
	assert.ErrorContains(t, err, "provider")
}

func TestConversionHelpers(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	store := cfg.StoreConfig()
	assert.Equal(t, "chromem", store.Provider)
	assert.Equal(t, 384, store.Chromem.VectorSize)

	pipe := cfg.IngestPipelineConfig()
	assert.Equal(t, "condo_documents", pipe.Collection)

	ans := cfg.AnswerServiceConfig()
	assert.Equal(t, "condo_documents", ans.Collection)
	assert.Equal(t, 5, ans.TopK)
}
