// Package ingest turns uploaded documents into searchable vector
// points: parse, chunk, embed, index, with the document's state
// persisted at every transition.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vivenda-labs/ragd/internal/chunker"
	"github.com/vivenda-labs/ragd/internal/docstore"
	"github.com/vivenda-labs/ragd/internal/embeddings"
	"github.com/vivenda-labs/ragd/internal/vectorstore"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("ragd.ingest")

// Failure policies for chunks that fail to embed.
const (
	// FailFast aborts the whole document on the first failed chunk.
	FailFast = "fail_fast"
	// BestEffort skips failed chunks, counts them and indexes the rest.
	BestEffort = "best_effort"
)

var (
	// ErrUnsupportedContent indicates a binary document arrived with no
	// parser configured.
	ErrUnsupportedContent = errors.New("unsupported content type")

	// ErrNoChunks indicates chunking produced nothing to index.
	ErrNoChunks = errors.New("document produced no chunks")
)

// Config configures the ingestion pipeline.
type Config struct {
	// Collection is the vector collection all tenants share. Isolation
	// happens in the payload filter, not in collection naming.
	Collection string

	// FailurePolicy is FailFast (default) or BestEffort.
	FailurePolicy string

	// EmbedBatchSize is the number of chunks per embedding call.
	// Default: 16.
	EmbedBatchSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Collection == "" {
		c.Collection = "condo_documents"
	}
	if c.FailurePolicy == "" {
		c.FailurePolicy = FailFast
	}
	if c.EmbedBatchSize == 0 {
		c.EmbedBatchSize = 16
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if err := vectorstore.ValidateCollectionName(c.Collection); err != nil {
		return err
	}
	if c.FailurePolicy != FailFast && c.FailurePolicy != BestEffort {
		return fmt.Errorf("invalid failure policy %q", c.FailurePolicy)
	}
	return nil
}

// Result is the outcome of one ingestion run.
type Result struct {
	ChunkCount   int
	FailedChunks int
	Status       docstore.Status
}

// Pipeline ingests documents. Safe for concurrent use; independent
// documents interleave freely.
type Pipeline struct {
	config   Config
	store    vectorstore.Store
	docs     *docstore.Store
	embedder embeddings.Provider
	parser   *ParserClient
	chunkOpt chunker.Options
	logger   *zap.Logger
}

// NewPipeline wires the pipeline. parser may be nil; binary documents
// are then rejected.
func NewPipeline(config Config, store vectorstore.Store, docs *docstore.Store, embedder embeddings.Provider, parser *ParserClient, chunkOpt chunker.Options, logger *zap.Logger) (*Pipeline, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	chunkOpt.ApplyDefaults()

	return &Pipeline{
		config:   config,
		store:    store,
		docs:     docs,
		embedder: embedder,
		parser:   parser,
		chunkOpt: chunkOpt,
		logger:   logger,
	}, nil
}

// Ingest runs a document through the full pipeline. The record in the
// document store tracks progress; on failure its status is the
// terminal error state with the cause recorded.
func (p *Pipeline) Ingest(ctx context.Context, doc *docstore.Document) (*Result, error) {
	ctx, span := tracer.Start(ctx, "Pipeline.Ingest")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant_id", doc.TenantID),
		attribute.String("document_id", doc.ID),
	)

	doc.Status = docstore.StatusReceived
	if err := p.docs.Put(ctx, doc); err != nil {
		return nil, err
	}

	result, err := p.run(ctx, doc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if oerr := p.docs.SetOutcome(ctx, doc.TenantID, doc.ID, docstore.StatusError, 0, 0, err.Error()); oerr != nil {
			p.logger.Error("recording ingest failure", zap.Error(oerr))
		}
		return nil, err
	}

	if oerr := p.docs.SetOutcome(ctx, doc.TenantID, doc.ID, result.Status, result.ChunkCount, result.FailedChunks, ""); oerr != nil {
		return nil, oerr
	}

	p.logger.Info("document ingested",
		zap.String("tenant_id", doc.TenantID),
		zap.String("document_id", doc.ID),
		zap.Int("chunks", result.ChunkCount),
		zap.Int("failed_chunks", result.FailedChunks))
	span.SetStatus(codes.Ok, "success")
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, doc *docstore.Document) (*Result, error) {
	text, err := p.extractText(ctx, doc)
	if err != nil {
		return nil, err
	}
	if err := p.docs.SetStatus(ctx, doc.TenantID, doc.ID, docstore.StatusParsed); err != nil {
		return nil, err
	}

	chunks := chunker.Split(text, doc.Title, p.chunkOpt)
	if len(chunks) == 0 {
		return nil, ErrNoChunks
	}
	if err := p.docs.SetStatus(ctx, doc.TenantID, doc.ID, docstore.StatusChunked); err != nil {
		return nil, err
	}

	if err := p.docs.SetStatus(ctx, doc.TenantID, doc.ID, docstore.StatusEmbedding); err != nil {
		return nil, err
	}
	vectors, failed, err := p.embedChunks(ctx, chunks)
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: all %d chunks failed to embed", ErrNoChunks, len(chunks))
	}

	if err := p.store.CreateCollection(ctx, p.config.Collection, p.embedder.Dimension()); err != nil {
		return nil, fmt.Errorf("ensuring collection: %w", err)
	}

	// Re-ingest may produce fewer chunks than last time. Deterministic
	// ids overwrite matching seqs; stale higher seqs must go explicitly.
	err = p.store.DeleteByFilter(ctx, p.config.Collection, vectorstore.Filter{
		TenantID:   doc.TenantID,
		DocumentID: doc.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("clearing stale points: %w", err)
	}

	points := p.buildPoints(doc, vectors)
	if err := p.store.UpsertPoints(ctx, p.config.Collection, points); err != nil {
		return nil, fmt.Errorf("indexing document: %w", err)
	}
	if err := p.docs.SetStatus(ctx, doc.TenantID, doc.ID, docstore.StatusIndexed); err != nil {
		return nil, err
	}

	return &Result{
		ChunkCount:   len(points),
		FailedChunks: failed,
		Status:       docstore.StatusDone,
	}, nil
}

// extractText returns plain text for the document, going through the
// parser service for binary content types.
func (p *Pipeline) extractText(ctx context.Context, doc *docstore.Document) (string, error) {
	if isTextContent(doc.ContentType) {
		return doc.Content, nil
	}
	if p.parser == nil {
		return "", fmt.Errorf("%w: %s and no parser configured", ErrUnsupportedContent, doc.ContentType)
	}
	text, err := p.parser.Parse(ctx, doc.ContentType, []byte(doc.Content))
	if err != nil {
		return "", fmt.Errorf("parsing document: %w", err)
	}
	return text, nil
}

// embeddedChunk pairs a chunk with its vector, preserving the chunk
// sequence across best-effort gaps.
type embeddedChunk struct {
	chunk  chunker.Chunk
	vector []float32
}

// embedChunks embeds chunks in batches. Under BestEffort a failed
// batch is retried chunk by chunk and failing chunks are skipped.
func (p *Pipeline) embedChunks(ctx context.Context, chunks []chunker.Chunk) ([]embeddedChunk, int, error) {
	var out []embeddedChunk
	failed := 0

	for start := 0; start < len(chunks); start += p.config.EmbedBatchSize {
		end := start + p.config.EmbedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}

		vectors, err := p.embedder.EmbedDocuments(ctx, texts)
		if err == nil {
			for i, c := range batch {
				out = append(out, embeddedChunk{chunk: c, vector: vectors[i]})
			}
			continue
		}
		if p.config.FailurePolicy == FailFast {
			return nil, 0, fmt.Errorf("embedding chunks %d-%d: %w", start, end-1, err)
		}

		// Best effort: isolate the failing chunks.
		for _, c := range batch {
			vec, cerr := p.embedder.EmbedQuery(ctx, c.Content)
			if cerr != nil {
				failed++
				p.logger.Warn("skipping chunk that failed to embed",
					zap.Int("seq", c.Seq), zap.Error(cerr))
				continue
			}
			out = append(out, embeddedChunk{chunk: c, vector: vec})
		}
	}
	return out, failed, nil
}

// buildPoints converts embedded chunks into vector points. Point ids
// are deterministic, so re-ingesting a document overwrites its old
// points instead of duplicating them. ChunkTotal counts the chunks
// that survived embedding, which under best-effort can be fewer than
// the splitter produced; the failure count lives on the document.
func (p *Pipeline) buildPoints(doc *docstore.Document, embedded []embeddedChunk) []vectorstore.Point {
	now := time.Now().UTC()
	points := make([]vectorstore.Point, len(embedded))
	for i, ec := range embedded {
		points[i] = vectorstore.Point{
			ID:     vectorstore.PointID(doc.TenantID, doc.ID, ec.chunk.Seq),
			Vector: ec.vector,
			Payload: vectorstore.Payload{
				TenantID:    doc.TenantID,
				DocumentID:  doc.ID,
				Content:     ec.chunk.Content,
				Title:       doc.Title,
				Source:      doc.Source,
				Category:    doc.Category,
				ChunkNumber: ec.chunk.Seq,
				ChunkTotal:  len(embedded),
				CreatedAt:   now,
			},
		}
	}
	return points
}

// DeleteDocument removes the record and cascades to its points.
func (p *Pipeline) DeleteDocument(ctx context.Context, tenantID, id string) error {
	ctx, span := tracer.Start(ctx, "Pipeline.DeleteDocument")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("document_id", id),
	)

	if err := p.docs.Delete(ctx, tenantID, id); err != nil {
		return err
	}
	err := p.store.DeleteByFilter(ctx, p.config.Collection, vectorstore.Filter{
		TenantID:   tenantID,
		DocumentID: id,
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("deleting document points: %w", err)
	}

	p.logger.Info("document deleted",
		zap.String("tenant_id", tenantID),
		zap.String("document_id", id))
	return nil
}

// isTextContent reports whether content can go straight to the
// chunker.
func isTextContent(contentType string) bool {
	if contentType == "" {
		return true
	}
	ct := strings.ToLower(contentType)
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return strings.HasPrefix(ct, "text/") || ct == "application/markdown"
}
