// Package config loads ragd configuration from YAML and environment
// variables.
package config

import (
	"fmt"
	"time"

	"github.com/vivenda-labs/ragd/internal/answer"
	"github.com/vivenda-labs/ragd/internal/chunker"
	"github.com/vivenda-labs/ragd/internal/embeddings"
	"github.com/vivenda-labs/ragd/internal/ingest"
	"github.com/vivenda-labs/ragd/internal/vectorstore"
)

// Config is the root configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	Docstore    DocstoreConfig    `koanf:"docstore"`
	Ingest      IngestConfig      `koanf:"ingest"`
	Answer      AnswerConfig      `koanf:"answer"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `koanf:"level"`
	// Format is "json" or "console".
	Format string `koanf:"format"`
}

// VectorStoreConfig selects and configures the vector backend.
type VectorStoreConfig struct {
	// Provider is "chromem" (default) or "qdrant".
	Provider string        `koanf:"provider"`
	Chromem  ChromemConfig `koanf:"chromem"`
	Qdrant   QdrantConfig  `koanf:"qdrant"`
}

// ChromemConfig configures the embedded store.
type ChromemConfig struct {
	Path       string `koanf:"path"`
	Compress   bool   `koanf:"compress"`
	VectorSize int    `koanf:"vector_size"`
}

// QdrantConfig configures the Qdrant gRPC client.
type QdrantConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	UseTLS     bool   `koanf:"use_tls"`
	VectorSize int    `koanf:"vector_size"`
	BatchSize  int    `koanf:"batch_size"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	Provider      string `koanf:"provider"`
	BaseURL       string `koanf:"base_url"`
	Model         string `koanf:"model"`
	APIKey        string `koanf:"api_key"`
	MaxInputChars int    `koanf:"max_input_chars"`
}

// DocstoreConfig configures the SQLite document store.
type DocstoreConfig struct {
	// Path of the database file. Empty keeps everything in memory.
	Path string `koanf:"path"`
}

// IngestConfig configures the ingestion pipeline.
type IngestConfig struct {
	Collection     string       `koanf:"collection"`
	FailurePolicy  string       `koanf:"failure_policy"`
	EmbedBatchSize int          `koanf:"embed_batch_size"`
	ChunkSize      int          `koanf:"chunk_size"`
	ChunkOverlap   int          `koanf:"chunk_overlap"`
	Parser         ParserConfig `koanf:"parser"`
}

// ParserConfig configures the external document parser.
type ParserConfig struct {
	BaseURL         string        `koanf:"base_url"`
	PollInterval    time.Duration `koanf:"poll_interval"`
	MaxPollAttempts int           `koanf:"max_poll_attempts"`
}

// AnswerConfig configures retrieval and generation.
type AnswerConfig struct {
	TopK           int          `koanf:"top_k"`
	ScoreThreshold float32      `koanf:"score_threshold"`
	NotFoundAnswer string       `koanf:"not_found_answer"`
	OpenAI         OpenAIConfig `koanf:"openai"`
}

// OpenAIConfig configures the chat completion backend.
type OpenAIConfig struct {
	APIKey            string  `koanf:"api_key"`
	BaseURL           string  `koanf:"base_url"`
	Model             string  `koanf:"model"`
	Temperature       float32 `koanf:"temperature"`
	RequestsPerMinute int     `koanf:"requests_per_minute"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8090
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = vectorstore.ProviderChromem
	}
	if cfg.VectorStore.Chromem.Path == "" {
		cfg.VectorStore.Chromem.Path = "~/.local/share/ragd/vectorstore"
	}
	if cfg.VectorStore.Chromem.VectorSize == 0 {
		cfg.VectorStore.Chromem.VectorSize = 384 // bge-small-en-v1.5 dimensions
	}
	if cfg.VectorStore.Qdrant.Host == "" {
		cfg.VectorStore.Qdrant.Host = "localhost"
	}
	if cfg.VectorStore.Qdrant.Port == 0 {
		cfg.VectorStore.Qdrant.Port = 6334
	}
	if cfg.VectorStore.Qdrant.VectorSize == 0 {
		cfg.VectorStore.Qdrant.VectorSize = 384
	}

	if cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = "http://localhost:8080"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "BAAI/bge-small-en-v1.5"
	}

	if cfg.Ingest.Collection == "" {
		cfg.Ingest.Collection = "condo_documents"
	}
	if cfg.Ingest.FailurePolicy == "" {
		cfg.Ingest.FailurePolicy = ingest.FailFast
	}

	if cfg.Answer.TopK == 0 {
		cfg.Answer.TopK = 5
	}
	if cfg.Answer.ScoreThreshold == 0 {
		cfg.Answer.ScoreThreshold = 0.7
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if err := vectorstore.ValidateCollectionName(c.Ingest.Collection); err != nil {
		return fmt.Errorf("invalid collection name: %w", err)
	}
	switch c.Ingest.FailurePolicy {
	case ingest.FailFast, ingest.BestEffort:
	default:
		return fmt.Errorf("invalid failure policy: %q", c.Ingest.FailurePolicy)
	}
	switch c.VectorStore.Provider {
	case vectorstore.ProviderChromem, vectorstore.ProviderQdrant:
	default:
		return fmt.Errorf("invalid vector store provider: %q", c.VectorStore.Provider)
	}
	return nil
}

// StoreConfig converts to the vectorstore factory config.
func (c *Config) StoreConfig() vectorstore.Config {
	return vectorstore.Config{
		Provider: c.VectorStore.Provider,
		Chromem: vectorstore.ChromemConfig{
			Path:       c.VectorStore.Chromem.Path,
			Compress:   c.VectorStore.Chromem.Compress,
			VectorSize: c.VectorStore.Chromem.VectorSize,
		},
		Qdrant: vectorstore.QdrantConfig{
			Host:       c.VectorStore.Qdrant.Host,
			Port:       c.VectorStore.Qdrant.Port,
			UseTLS:     c.VectorStore.Qdrant.UseTLS,
			VectorSize: c.VectorStore.Qdrant.VectorSize,
			BatchSize:  c.VectorStore.Qdrant.BatchSize,
		},
	}
}

// ProviderConfig converts to the embeddings provider config.
func (c *Config) ProviderConfig() embeddings.ProviderConfig {
	return embeddings.ProviderConfig{
		Provider:      c.Embeddings.Provider,
		BaseURL:       c.Embeddings.BaseURL,
		Model:         c.Embeddings.Model,
		APIKey:        c.Embeddings.APIKey,
		MaxInputChars: c.Embeddings.MaxInputChars,
	}
}

// IngestPipelineConfig converts to the pipeline config.
func (c *Config) IngestPipelineConfig() ingest.Config {
	return ingest.Config{
		Collection:     c.Ingest.Collection,
		FailurePolicy:  c.Ingest.FailurePolicy,
		EmbedBatchSize: c.Ingest.EmbedBatchSize,
	}
}

// ChunkerOptions converts to chunker options.
func (c *Config) ChunkerOptions() chunker.Options {
	return chunker.Options{
		TargetSize: c.Ingest.ChunkSize,
		Overlap:    c.Ingest.ChunkOverlap,
	}
}

// ParserClientConfig converts to the parser client config.
func (c *Config) ParserClientConfig() ingest.ParserConfig {
	return ingest.ParserConfig{
		BaseURL:         c.Ingest.Parser.BaseURL,
		PollInterval:    c.Ingest.Parser.PollInterval,
		MaxPollAttempts: c.Ingest.Parser.MaxPollAttempts,
	}
}

// AnswerServiceConfig converts to the answer service config.
func (c *Config) AnswerServiceConfig() answer.Config {
	return answer.Config{
		Collection:     c.Ingest.Collection,
		TopK:           c.Answer.TopK,
		ScoreThreshold: c.Answer.ScoreThreshold,
		NotFoundAnswer: c.Answer.NotFoundAnswer,
	}
}

// GeneratorConfig converts to the OpenAI generator config.
func (c *Config) GeneratorConfig() answer.OpenAIConfig {
	return answer.OpenAIConfig{
		APIKey:            c.Answer.OpenAI.APIKey,
		BaseURL:           c.Answer.OpenAI.BaseURL,
		Model:             c.Answer.OpenAI.Model,
		Temperature:       c.Answer.OpenAI.Temperature,
		RequestsPerMinute: c.Answer.OpenAI.RequestsPerMinute,
	}
}
