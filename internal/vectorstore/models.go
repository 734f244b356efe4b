package vectorstore

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Payload field keys as stored in the index.
const (
	KeyTenantID    = "tenant_id"
	KeyDocumentID  = "document_id"
	KeyContent     = "content"
	KeyTitle       = "title"
	KeySource      = "source"
	KeyCategory    = "category"
	KeyChunkNumber = "chunk_number"
	KeyChunkTotal  = "chunk_total"
	KeyCreatedAt   = "created_at"
)

// pointNamespace is the UUIDv5 namespace for deterministic point ids.
var pointNamespace = uuid.MustParse("8f9c2a6e-4d11-4a38-9b47-3c5f0e7d1b24")

// collectionNamePattern validates collection names: lowercase letters,
// digits, underscores, 1-64 characters. Rejects uppercase, path
// separators and spaces.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// ValidateCollectionName validates a collection name.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match ^[a-z0-9_]{1,64}$, got %q", ErrInvalidCollectionName, name)
	}
	return nil
}

// Payload is the structured metadata stored with every point.
//
// TenantID, Content and Title are required; Extra is an open extension
// map for optional metadata so new fields do not break older readers.
type Payload struct {
	// TenantID is the owning condominium. The sole isolation boundary.
	TenantID string

	// DocumentID identifies the parent document, enabling
	// delete-by-document and re-ingestion supersede.
	DocumentID string

	// Content is the chunk text that was embedded.
	Content string

	// Title is the parent document title.
	Title string

	// Source is the document source identifier (filename or URL).
	Source string

	// Category is an optional document category (regulation, minutes...).
	Category string

	// ChunkNumber is the chunk sequence number within the document.
	ChunkNumber int

	// ChunkTotal is the total chunk count of the document at ingest time.
	ChunkTotal int

	// CreatedAt is the ingestion timestamp.
	CreatedAt time.Time

	// Extra holds optional forward-compatible metadata.
	Extra map[string]string
}

// Validate checks the required payload fields.
func (p *Payload) Validate() error {
	if p.TenantID == "" {
		return fmt.Errorf("%w: payload requires tenant id", ErrMissingTenant)
	}
	if p.Content == "" {
		return fmt.Errorf("%w: payload requires content", ErrInvalidConfig)
	}
	if p.Title == "" {
		return fmt.Errorf("%w: payload requires title", ErrInvalidConfig)
	}
	return nil
}

// Point is a single entry in the vector index.
type Point struct {
	// ID is the point identifier. Use PointID for the deterministic form.
	ID string

	// Vector is the embedding. Its length must equal the collection size.
	Vector []float32

	// Payload is the structured point metadata.
	Payload Payload
}

// PointID derives a stable UUIDv5 point id from tenant, document and
// chunk sequence. Re-ingesting a document therefore overwrites its
// previous points instead of accumulating duplicates.
func PointID(tenantID, documentID string, seq int) string {
	name := fmt.Sprintf("%s/%s/%d", tenantID, documentID, seq)
	return uuid.NewSHA1(pointNamespace, []byte(name)).String()
}

// Filter is a conjunction of equality constraints on point payloads.
// TenantID is mandatory for searches and validated fail-closed.
type Filter struct {
	// TenantID restricts matches to one tenant. Required for Search.
	TenantID string

	// DocumentID optionally restricts matches to one parent document.
	DocumentID string

	// Extra holds additional equality matches on payload fields.
	Extra map[string]string
}

// Validate checks that the filter carries a tenant id.
func (f Filter) Validate() error {
	if f.TenantID == "" {
		return ErrMissingTenant
	}
	return nil
}

// conditions flattens the filter into key/value equality pairs in a
// deterministic order (tenant, document, then sorted extras).
func (f Filter) conditions() []condition {
	conds := make([]condition, 0, 2+len(f.Extra))
	if f.TenantID != "" {
		conds = append(conds, condition{key: KeyTenantID, value: f.TenantID})
	}
	if f.DocumentID != "" {
		conds = append(conds, condition{key: KeyDocumentID, value: f.DocumentID})
	}
	for _, k := range sortedKeys(f.Extra) {
		conds = append(conds, condition{key: k, value: f.Extra[k]})
	}
	return conds
}

// condition is a single equality match.
type condition struct {
	key   string
	value string
}

// SearchOptions tunes a similarity search.
type SearchOptions struct {
	// Limit is the maximum number of results (top-K).
	Limit int

	// ScoreThreshold discards results below this cosine similarity.
	// A precision/recall knob, not a correctness invariant. Zero disables.
	ScoreThreshold float32

	// Filter restricts the search. Filter.TenantID is mandatory.
	Filter Filter
}

// SearchResult is one search hit.
type SearchResult struct {
	// ID is the point identifier.
	ID string

	// Score is the cosine similarity (higher = more similar).
	Score float32

	// Payload is the stored point metadata.
	Payload Payload
}

// CollectionInfo contains metadata about a vector collection.
type CollectionInfo struct {
	// Name is the collection name.
	Name string `json:"name"`

	// PointCount is the number of vectors in the collection.
	PointCount int `json:"point_count"`

	// VectorSize is the dimensionality of vectors in this collection.
	VectorSize int `json:"vector_size"`
}

// BatchPoints splits points into batches of at most size elements,
// preserving order. A size <= 0 yields a single batch.
func BatchPoints(points []Point, size int) [][]Point {
	if len(points) == 0 {
		return nil
	}
	if size <= 0 || size >= len(points) {
		return [][]Point{points}
	}
	batches := make([][]Point, 0, (len(points)+size-1)/size)
	for start := 0; start < len(points); start += size {
		end := start + size
		if end > len(points) {
			end = len(points)
		}
		batches = append(batches, points[start:end])
	}
	return batches
}

// itoa formats integer payload fields for string-typed backends.
func itoa(n int) string { return strconv.Itoa(n) }

// sortedKeys returns map keys in ascending order for deterministic
// filter construction.
func sortedKeys(m map[string]string) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
