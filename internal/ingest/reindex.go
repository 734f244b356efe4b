package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ReindexResult summarizes a reindex run.
type ReindexResult struct {
	Documents int
	Failed    int
}

// Reindexer rebuilds the vector collection from stored documents.
// This is an exclusive maintenance operation: it drops the live
// collection, so it must not run concurrently with ingestion or
// queries.
type Reindexer struct {
	pipeline *Pipeline
	logger   *zap.Logger
}

// NewReindexer creates a Reindexer over an existing pipeline.
func NewReindexer(pipeline *Pipeline, logger *zap.Logger) *Reindexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reindexer{pipeline: pipeline, logger: logger}
}

// Reindex drops the collection, recreates it and re-ingests every
// stored document. Typically run after an embedding model change,
// since old and new vectors must never mix.
func (r *Reindexer) Reindex(ctx context.Context) (*ReindexResult, error) {
	p := r.pipeline

	exists, err := p.store.CollectionExists(ctx, p.config.Collection)
	if err != nil {
		return nil, fmt.Errorf("checking collection: %w", err)
	}
	if exists {
		if err := p.store.DropCollection(ctx, p.config.Collection); err != nil {
			return nil, fmt.Errorf("dropping collection: %w", err)
		}
	}
	if err := p.store.CreateCollection(ctx, p.config.Collection, p.embedder.Dimension()); err != nil {
		return nil, fmt.Errorf("recreating collection: %w", err)
	}

	docs, err := p.docs.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}

	result := &ReindexResult{}
	for _, doc := range docs {
		if _, err := p.Ingest(ctx, doc); err != nil {
			result.Failed++
			r.logger.Error("reindexing document failed",
				zap.String("tenant_id", doc.TenantID),
				zap.String("document_id", doc.ID),
				zap.Error(err))
			continue
		}
		result.Documents++
	}

	r.logger.Info("reindex finished",
		zap.Int("documents", result.Documents),
		zap.Int("failed", result.Failed))
	return result, nil
}
