package embeddings

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/vivenda-labs/ragd/internal/vectorstore"
	"go.uber.org/zap"
)

// Provider is the interface for embedding providers.
type Provider interface {
	vectorstore.Embedder
	// Dimension returns the embedding dimension for the current model.
	Dimension() int
	// Close releases resources held by the provider.
	Close() error
}

// ProviderConfig holds configuration for creating an embedding provider.
type ProviderConfig struct {
	// Provider is the provider type. Only "tei" is supported.
	Provider string
	// Model is the embedding model name
	Model string
	// BaseURL is the TEI base URL
	BaseURL string
	// APIKey is optional for self-hosted TEI
	APIKey string
	// MaxInputChars caps input length per text
	MaxInputChars int
}

// detectDimensionFromModel returns the embedding dimension for a model name.
// Falls back to 384 if model is unknown.
func detectDimensionFromModel(model string) int {
	switch {
	case strings.Contains(model, "base"):
		return 768
	case strings.Contains(model, "large"):
		return 1024
	case strings.Contains(model, "small"), strings.Contains(model, "mini"):
		return 384
	default:
		return 384 // Safe default for bge-small
	}
}

// NewProvider creates an embedding provider based on the configuration.
func NewProvider(cfg ProviderConfig, logger *zap.Logger) (Provider, error) {
	switch cfg.Provider {
	case "tei", "":
		svc, err := NewService(Config{
			BaseURL:       cfg.BaseURL,
			Model:         cfg.Model,
			APIKey:        cfg.APIKey,
			MaxInputChars: cfg.MaxInputChars,
		}, logger)
		if err != nil {
			return nil, err
		}
		return &teiProvider{Service: svc, dimension: detectDimensionFromModel(cfg.Model)}, nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// teiProvider wraps Service to implement Provider interface.
type teiProvider struct {
	*Service
	dimension int
}

// Dimension returns the embedding dimension based on the configured model.
func (t *teiProvider) Dimension() int {
	return t.dimension
}

// Close is a no-op for TEI since it uses HTTP.
func (t *teiProvider) Close() error {
	return nil
}

// Handle is a lazily-initialized process-wide provider. Construction
// is cheap; the real provider is built on first use, exactly once,
// shared by ingestion and retrieval so both sides agree on model and
// dimension.
type Handle struct {
	cfg    ProviderConfig
	logger *zap.Logger

	// mu guards the once-only initialization below so Get, Dimension
	// and Close all observe the same provider state.
	mu       sync.Mutex
	provider Provider
	err      error
}

// NewHandle creates a Handle. No network work happens here.
func NewHandle(cfg ProviderConfig, logger *zap.Logger) *Handle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handle{cfg: cfg, logger: logger}
}

// Get returns the underlying provider, initializing it on first call.
// An initialization error is cached; later calls do not retry.
func (h *Handle) Get() (Provider, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.provider == nil && h.err == nil {
		h.provider, h.err = NewProvider(h.cfg, h.logger)
		if h.err == nil {
			h.logger.Info("embedding provider initialized",
				zap.String("model", h.cfg.Model),
				zap.Int("dimension", h.provider.Dimension()))
		}
	}
	return h.provider, h.err
}

// EmbedDocuments implements vectorstore.Embedder.
func (h *Handle) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	p, err := h.Get()
	if err != nil {
		return nil, err
	}
	return p.EmbedDocuments(ctx, texts)
}

// EmbedQuery implements vectorstore.Embedder.
func (h *Handle) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	p, err := h.Get()
	if err != nil {
		return nil, err
	}
	return p.EmbedQuery(ctx, text)
}

// Dimension implements Provider.
func (h *Handle) Dimension() int {
	p, err := h.Get()
	if err != nil {
		return detectDimensionFromModel(h.cfg.Model)
	}
	return p.Dimension()
}

// Close releases the provider if it was ever initialized. It takes
// the same lock as Get, so a Close racing the first initialization
// still sees the freshly built provider.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.provider != nil {
		return h.provider.Close()
	}
	return nil
}

// Ensure Handle satisfies Provider.
var _ Provider = (*Handle)(nil)
