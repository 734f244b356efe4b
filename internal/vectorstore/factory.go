package vectorstore

import (
	"fmt"

	"go.uber.org/zap"
)

// Provider names accepted by the factory.
const (
	ProviderChromem = "chromem"
	ProviderQdrant  = "qdrant"
)

// Config selects and configures a vector store backend.
type Config struct {
	// Provider is "chromem" (embedded, default) or "qdrant".
	Provider string `koanf:"provider"`

	Chromem ChromemConfig `koanf:"chromem"`
	Qdrant  QdrantConfig  `koanf:"qdrant"`
}

// NewStore builds the configured Store implementation.
//
// chromem is the default: embedded, zero external services, good enough
// for a single condominium's document volume. Qdrant is for deployments
// that outgrow it.
func NewStore(cfg Config, logger *zap.Logger) (Store, error) {
	switch cfg.Provider {
	case ProviderChromem, "":
		return NewChromemStore(cfg.Chromem, logger)
	case ProviderQdrant:
		return NewQdrantStore(cfg.Qdrant)
	default:
		return nil, fmt.Errorf("%w: unknown vector store provider %q", ErrInvalidConfig, cfg.Provider)
	}
}
