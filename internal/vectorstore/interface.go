// Package vectorstore defines the vector index contract and its
// implementations (external Qdrant over gRPC, embedded chromem-go).
//
// Tenant Isolation:
//
// The tenant id in the point payload is the sole multi-tenancy boundary.
// Every write carries it and every search must filter on it; a search
// whose filter lacks a tenant id fails closed with ErrMissingTenant.
package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for vector store operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")

	// ErrConnectionFailed indicates the store backend is unreachable.
	ErrConnectionFailed = errors.New("failed to connect to vector store")

	// ErrMissingTenant is returned when a search filter lacks a tenant id.
	// This triggers fail-closed behavior: an error, never unscoped results.
	ErrMissingTenant = errors.New("tenant id missing from filter")

	// ErrDimensionMismatch is returned when a point's vector length does
	// not match the collection's declared size.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrNotSupported is returned for operations a backend cannot perform.
	ErrNotSupported = errors.New("operation not supported by this store")
)

// Embedder generates vector embeddings from text.
//
// Implementations must return L2-normalized vectors of a fixed dimension
// so cosine similarity scores are comparable across the collection.
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts, element-wise.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Store is the vector index client.
//
// Implementations are transport-specific (gRPC for Qdrant, in-process for
// chromem) but share semantics: batched at-least-once upserts, similarity
// search with a mandatory tenant filter and optional score threshold, and
// filter-based deletion for document cascade deletes.
type Store interface {
	// CreateCollection creates a collection with the given vector size and
	// cosine distance. Idempotent: creating an existing collection is not
	// an error.
	CreateCollection(ctx context.Context, name string, vectorSize int) error

	// DropCollection deletes a collection and all its points. Destructive;
	// used only during full reindex, which is an exclusive maintenance
	// operation and must not run concurrently with ingestion or queries.
	DropCollection(ctx context.Context, name string) error

	// CollectionExists reports whether a collection exists.
	CollectionExists(ctx context.Context, name string) (bool, error)

	// CollectionInfo returns point count and vector size for a collection.
	// Returns ErrCollectionNotFound if it does not exist.
	CollectionInfo(ctx context.Context, name string) (*CollectionInfo, error)

	// UpsertPoints inserts or replaces points keyed by point id. Large
	// point sets are written in batches; batches commit independently
	// (at-least-once, no rollback of previously committed batches).
	UpsertPoints(ctx context.Context, name string, points []Point) error

	// Search returns points ranked by cosine similarity descending,
	// restricted by the filter (tenant id mandatory) and trimmed by the
	// score threshold when one is set.
	Search(ctx context.Context, name string, vector []float32, opts SearchOptions) ([]SearchResult, error)

	// DeleteByFilter removes every point matching the filter. Used when a
	// parent document is deleted to drop all of its chunks.
	DeleteByFilter(ctx context.Context, name string, filter Filter) error

	// Scroll lists points in id order for bulk export during maintenance.
	// offset is the opaque continuation token from a previous page; empty
	// means start. Returns ErrNotSupported on backends without listing.
	Scroll(ctx context.Context, name string, limit int, offset string) ([]Point, string, error)

	// Close releases the store connection and resources.
	Close() error
}
