package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// chromemTracer for OpenTelemetry instrumentation.
var chromemTracer = otel.Tracer("ragd.vectorstore.chromem")

// ChromemConfig holds configuration for the embedded chromem-go store.
type ChromemConfig struct {
	// Path is the directory for persistent storage. Empty means a purely
	// in-memory database (tests, throwaway environments).
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool

	// VectorSize is the expected embedding dimension. Must match the
	// embedder's output dimension. Default: 384.
	VectorSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
}

// Validate validates the configuration.
func (c ChromemConfig) Validate() error {
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	return nil
}

// ChromemStore implements Store using chromem-go, an embeddable pure-Go
// vector database. No external service needed, which makes it the
// default for development and the workhorse for tests.
//
// All points carry precomputed embeddings, so chromem's own embedding
// hook is wired to fail loudly if anything ever invokes it.
type ChromemStore struct {
	db     *chromem.DB
	config ChromemConfig
	logger *zap.Logger
}

// NewChromemStore creates a ChromemStore. With a Path it persists to
// disk; without one it is purely in-memory.
func NewChromemStore(config ChromemConfig, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	var db *chromem.DB
	if config.Path == "" {
		db = chromem.NewDB()
	} else {
		path, err := expandPath(config.Path)
		if err != nil {
			return nil, fmt.Errorf("expanding path: %w", err)
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", path, err)
		}
		db, err = chromem.NewPersistentDB(path, config.Compress)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
	}

	return &ChromemStore{db: db, config: config, logger: logger}, nil
}

// Close is a no-op: chromem persists incrementally.
func (s *ChromemStore) Close() error { return nil }

// rejectEmbeddingFunc guards against accidental text-side embedding.
// Every point reaching this store already carries its vector.
func rejectEmbeddingFunc(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("%w: store expects precomputed embeddings", ErrNotSupported)
}

// CreateCollection creates a collection. Idempotent.
func (s *ChromemStore) CreateCollection(ctx context.Context, name string, vectorSize int) error {
	_, span := chromemTracer.Start(ctx, "ChromemStore.CreateCollection")
	defer span.End()
	span.SetAttributes(attribute.String("collection", name))

	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	if vectorSize != s.config.VectorSize {
		return fmt.Errorf("%w: requested size %d, store configured for %d",
			ErrDimensionMismatch, vectorSize, s.config.VectorSize)
	}

	// GetOrCreateCollection makes create-if-not-exists race-free.
	if _, err := s.db.GetOrCreateCollection(name, nil, rejectEmbeddingFunc); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("creating collection %s: %w", name, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// DropCollection deletes a collection and all its points.
func (s *ChromemStore) DropCollection(ctx context.Context, name string) error {
	_, span := chromemTracer.Start(ctx, "ChromemStore.DropCollection")
	defer span.End()
	span.SetAttributes(attribute.String("collection", name))

	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	if err := s.db.DeleteCollection(name); err != nil {
		span.RecordError(err)
		return fmt.Errorf("dropping collection %s: %w", name, err)
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

// CollectionExists reports whether a collection exists.
func (s *ChromemStore) CollectionExists(_ context.Context, name string) (bool, error) {
	if err := ValidateCollectionName(name); err != nil {
		return false, err
	}
	return s.db.GetCollection(name, rejectEmbeddingFunc) != nil, nil
}

// CollectionInfo returns point count and vector size for a collection.
func (s *ChromemStore) CollectionInfo(_ context.Context, name string) (*CollectionInfo, error) {
	if err := ValidateCollectionName(name); err != nil {
		return nil, err
	}
	collection := s.db.GetCollection(name, rejectEmbeddingFunc)
	if collection == nil {
		return nil, ErrCollectionNotFound
	}
	return &CollectionInfo{
		Name:       name,
		PointCount: collection.Count(),
		VectorSize: s.config.VectorSize,
	}, nil
}

// UpsertPoints writes points. chromem replaces documents by id, so this
// is insert-or-replace like the Qdrant path.
func (s *ChromemStore) UpsertPoints(ctx context.Context, name string, points []Point) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.UpsertPoints")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", name),
		attribute.Int("point_count", len(points)),
	)

	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	if len(points) == 0 {
		return nil
	}
	for _, p := range points {
		if len(p.Vector) != s.config.VectorSize {
			return fmt.Errorf("%w: point %s has dimension %d, collection expects %d",
				ErrDimensionMismatch, p.ID, len(p.Vector), s.config.VectorSize)
		}
	}

	collection, err := s.db.GetOrCreateCollection(name, nil, rejectEmbeddingFunc)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("getting collection %s: %w", name, err)
	}

	docs := make([]chromem.Document, len(points))
	for i, p := range points {
		docs[i] = chromem.Document{
			ID:        p.ID,
			Content:   p.Payload.Content,
			Metadata:  chromemMetadata(p.Payload),
			Embedding: p.Vector,
		}
	}

	// Concurrency 1: embeddings are precomputed, nothing to parallelize.
	if err := collection.AddDocuments(ctx, docs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upserting points to collection %s: %w", name, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Search performs filtered similarity search. Empty collections return
// zero results rather than an error.
func (s *ChromemStore) Search(ctx context.Context, name string, vector []float32, opts SearchOptions) ([]SearchResult, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Search")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", name),
		attribute.Int("limit", opts.Limit),
	)

	if err := ValidateCollectionName(name); err != nil {
		return nil, err
	}
	if err := opts.Filter.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if len(vector) != s.config.VectorSize {
		return nil, fmt.Errorf("%w: query has dimension %d, collection expects %d",
			ErrDimensionMismatch, len(vector), s.config.VectorSize)
	}

	collection := s.db.GetCollection(name, rejectEmbeddingFunc)
	if collection == nil {
		return nil, ErrCollectionNotFound
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 5
	}
	// chromem requires nResults <= document count.
	if count := collection.Count(); count == 0 {
		return []SearchResult{}, nil
	} else if limit > count {
		limit = count
	}

	where := make(map[string]string)
	for _, c := range opts.Filter.conditions() {
		where[c.key] = c.value
	}

	hits, err := collection.QueryEmbedding(ctx, vector, limit, where, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", name, err)
	}

	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		if opts.ScoreThreshold > 0 && hit.Similarity < opts.ScoreThreshold {
			continue
		}
		results = append(results, SearchResult{
			ID:      hit.ID,
			Score:   hit.Similarity,
			Payload: payloadFromChromem(hit.Content, hit.Metadata),
		})
	}

	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

// DeleteByFilter removes all points matching the filter.
func (s *ChromemStore) DeleteByFilter(ctx context.Context, name string, filter Filter) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.DeleteByFilter")
	defer span.End()
	span.SetAttributes(attribute.String("collection", name))

	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	if err := filter.Validate(); err != nil {
		span.RecordError(err)
		return err
	}

	collection := s.db.GetCollection(name, rejectEmbeddingFunc)
	if collection == nil {
		// Nothing to delete.
		return nil
	}

	where := make(map[string]string)
	for _, c := range filter.conditions() {
		where[c.key] = c.value
	}

	if err := collection.Delete(ctx, where, nil); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting by filter from collection %s: %w", name, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Scroll is not supported: chromem has no point listing API. Reindex
// re-embeds from the document store instead of exporting points.
func (s *ChromemStore) Scroll(context.Context, string, int, string) ([]Point, string, error) {
	return nil, "", fmt.Errorf("%w: scroll", ErrNotSupported)
}

// chromemMetadata flattens a typed payload into chromem's string map.
// Content lives in the chromem document body, not the metadata.
func chromemMetadata(p Payload) map[string]string {
	md := map[string]string{
		KeyTenantID:    p.TenantID,
		KeyDocumentID:  p.DocumentID,
		KeyTitle:       p.Title,
		KeyChunkNumber: itoa(p.ChunkNumber),
		KeyChunkTotal:  itoa(p.ChunkTotal),
	}
	if p.Source != "" {
		md[KeySource] = p.Source
	}
	if p.Category != "" {
		md[KeyCategory] = p.Category
	}
	if !p.CreatedAt.IsZero() {
		md[KeyCreatedAt] = p.CreatedAt.UTC().Format(time.RFC3339)
	}
	for k, v := range p.Extra {
		if _, reserved := md[k]; !reserved {
			md[k] = v
		}
	}
	return md
}

// payloadFromChromem reconstructs a typed payload from chromem content
// and metadata. Unknown fields land in Extra.
func payloadFromChromem(content string, md map[string]string) Payload {
	p := Payload{Content: content}
	for k, v := range md {
		switch k {
		case KeyTenantID:
			p.TenantID = v
		case KeyDocumentID:
			p.DocumentID = v
		case KeyTitle:
			p.Title = v
		case KeySource:
			p.Source = v
		case KeyCategory:
			p.Category = v
		case KeyChunkNumber:
			if n, err := strconv.Atoi(v); err == nil {
				p.ChunkNumber = n
			}
		case KeyChunkTotal:
			if n, err := strconv.Atoi(v); err == nil {
				p.ChunkTotal = n
			}
		case KeyCreatedAt:
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				p.CreatedAt = t
			}
		default:
			if p.Extra == nil {
				p.Extra = make(map[string]string)
			}
			p.Extra[k] = v
		}
	}
	return p
}

// expandPath expands a leading ~ to the user home directory.
func expandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}

// Ensure ChromemStore implements Store.
var _ Store = (*ChromemStore)(nil)
