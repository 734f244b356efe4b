package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Tracer for OpenTelemetry instrumentation.
var tracer = otel.Tracer("ragd.vectorstore.qdrant")

// QdrantConfig holds configuration for the Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	Host string

	// Port is the Qdrant gRPC port (6334), not the HTTP REST port (6333).
	Port int

	// VectorSize is the embedding dimensionality (384 for bge-small).
	// Must match the embedder's output dimension.
	VectorSize int

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// BatchSize is the maximum points per upsert call.
	BatchSize int

	// MaxRetries is the retry bound for transient failures.
	MaxRetries int

	// RetryBackoff is the initial backoff; doubles per retry.
	RetryBackoff time.Duration

	// MaxMessageSize is the maximum gRPC message size in bytes.
	MaxMessageSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
	if c.BatchSize == 0 {
		c.BatchSize = 100
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	return nil
}

// IsTransientError reports whether a gRPC error should be retried.
// Network timeouts and temporary unavailability are transient; invalid
// arguments, not-found and permission failures are not.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// QdrantStore is a Store backed by Qdrant's native gRPC client.
//
// gRPC (port 6334) with binary protobuf encoding avoids the REST
// layer's payload limits and performs better for batch upserts.
type QdrantStore struct {
	client *qdrant.Client
	config QdrantConfig
}

// NewQdrantStore creates a QdrantStore and verifies connectivity with a
// health check. Configuration errors and unreachable servers fail here,
// at construction, rather than on first use.
func NewQdrantStore(config QdrantConfig) (*QdrantStore, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	store := &QdrantStore{client: client, config: config}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: health check: %v", ErrConnectionFailed, err)
	}

	return store, nil
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// retryOperation retries an operation with exponential backoff for
// transient errors, up to MaxRetries attempts.
func (s *QdrantStore) retryOperation(ctx context.Context, name string, op func() error) error {
	backoff := s.config.RetryBackoff
	for attempt := 0; ; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		if !IsTransientError(err) {
			return fmt.Errorf("%s failed (permanent): %w", name, err)
		}
		if attempt == s.config.MaxRetries {
			return fmt.Errorf("%s failed after %d retries: %w", name, s.config.MaxRetries, err)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", name, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
}

// CreateCollection creates a collection with cosine distance. Creating
// a collection that already exists is success, not failure.
func (s *QdrantStore) CreateCollection(ctx context.Context, name string, vectorSize int) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.CreateCollection")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", name),
		attribute.Int("vector_size", vectorSize),
	)

	if err := ValidateCollectionName(name); err != nil {
		return err
	}

	exists, err := s.CollectionExists(ctx, name)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if exists {
		span.SetStatus(codes.Ok, "already exists")
		return nil
	}

	err = s.retryOperation(ctx, "create_collection", func() error {
		err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(vectorSize),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		// Concurrent create-if-not-exists is safe: losing the race to
		// another ingest job still counts as created.
		if st, ok := status.FromError(err); ok && st.Code() == grpccodes.AlreadyExists {
			return nil
		}
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("creating collection %s: %w", name, err)
	}

	span.SetStatus(codes.Ok, "created")
	return nil
}

// DropCollection deletes a collection and all its points.
func (s *QdrantStore) DropCollection(ctx context.Context, name string) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.DropCollection")
	defer span.End()
	span.SetAttributes(attribute.String("collection", name))

	if err := ValidateCollectionName(name); err != nil {
		return err
	}

	err := s.retryOperation(ctx, "drop_collection", func() error {
		return s.client.DeleteCollection(ctx, name)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("dropping collection %s: %w", name, err)
	}

	span.SetStatus(codes.Ok, "dropped")
	return nil
}

// CollectionExists checks if a collection exists.
func (s *QdrantStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	if err := ValidateCollectionName(name); err != nil {
		return false, err
	}

	var exists bool
	err := s.retryOperation(ctx, "collection_exists", func() error {
		info, err := s.client.GetCollectionInfo(ctx, name)
		if err != nil {
			if st, ok := status.FromError(err); ok && st.Code() == grpccodes.NotFound {
				exists = false
				return nil
			}
			return err
		}
		exists = info != nil
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("checking collection %s: %w", name, err)
	}
	return exists, nil
}

// CollectionInfo returns point count and vector size for a collection.
func (s *QdrantStore) CollectionInfo(ctx context.Context, name string) (*CollectionInfo, error) {
	if err := ValidateCollectionName(name); err != nil {
		return nil, err
	}

	var info *CollectionInfo
	err := s.retryOperation(ctx, "collection_info", func() error {
		collInfo, err := s.client.GetCollectionInfo(ctx, name)
		if err != nil {
			if st, ok := status.FromError(err); ok && st.Code() == grpccodes.NotFound {
				return ErrCollectionNotFound
			}
			return err
		}
		pointCount := 0
		if collInfo.PointsCount != nil {
			pointCount = int(*collInfo.PointsCount)
		}
		info = &CollectionInfo{
			Name:       name,
			PointCount: pointCount,
			VectorSize: s.config.VectorSize,
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrCollectionNotFound) {
			return nil, ErrCollectionNotFound
		}
		return nil, fmt.Errorf("getting collection info for %s: %w", name, err)
	}
	return info, nil
}

// UpsertPoints writes points in batches of BatchSize. Batches commit
// independently: a failed batch does not roll back earlier ones, so the
// overall semantics are at-least-once.
func (s *QdrantStore) UpsertPoints(ctx context.Context, name string, points []Point) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.UpsertPoints")
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
			err := fmt.Errorf("%w: point %s has dimension %d, collection expects %d",
				ErrDimensionMismatch, p.ID, len(p.Vector), s.config.VectorSize)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}

	for i, batch := range BatchPoints(points, s.config.BatchSize) {
		structs := make([]*qdrant.PointStruct, len(batch))
		for j, p := range batch {
			structs[j] = &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(p.ID),
				Vectors: qdrant.NewVectors(p.Vector...),
				Payload: qdrantPayload(p.Payload),
			}
		}

		err := s.retryOperation(ctx, "upsert", func() error {
			_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
				CollectionName: name,
				Points:         structs,
			})
			return err
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("upserting batch %d to collection %s: %w", i, name, err)
		}
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Search performs filtered similarity search. The filter's tenant id is
// mandatory; its absence is an error, never an unscoped query.
func (s *QdrantStore) Search(ctx context.Context, name string, vector []float32, opts SearchOptions) ([]SearchResult, error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.Search")
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
	limit := opts.Limit
	if limit <= 0 {
		limit = 5
	}

	query := &qdrant.QueryPoints{
		CollectionName: name,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		Filter:         qdrantFilter(opts.Filter),
	}
	if opts.ScoreThreshold > 0 {
		query.ScoreThreshold = qdrant.PtrOf(opts.ScoreThreshold)
	}

	var scored []*qdrant.ScoredPoint
	err := s.retryOperation(ctx, "search", func() error {
		res, err := s.client.Query(ctx, query)
		if err != nil {
			if st, ok := status.FromError(err); ok && st.Code() == grpccodes.NotFound {
				return ErrCollectionNotFound
			}
			return err
		}
		scored = res
		return nil
	})
	if err != nil {
		// A query against a collection that was never created surfaces
		// the sentinel so callers can treat it as an empty index.
		if errors.Is(err, ErrCollectionNotFound) {
			return nil, ErrCollectionNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("searching collection %s: %w", name, err)
	}

	results := make([]SearchResult, len(scored))
	for i, point := range scored {
		results[i] = SearchResult{
			ID:      point.Id.GetUuid(),
			Score:   point.Score,
			Payload: payloadFromQdrant(point.Payload),
		}
	}

	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

// DeleteByFilter removes all points matching the filter.
func (s *QdrantStore) DeleteByFilter(ctx context.Context, name string, filter Filter) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.DeleteByFilter")
	defer span.End()
	span.SetAttributes(attribute.String("collection", name))

	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	if err := filter.Validate(); err != nil {
		span.RecordError(err)
		return err
	}

	err := s.retryOperation(ctx, "delete_by_filter", func() error {
		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: name,
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
					Filter: qdrantFilter(filter),
				},
			},
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting by filter from collection %s: %w", name, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Scroll lists points for bulk export. It requests one extra point per
// page to synthesize the continuation token the high-level client does
// not expose.
func (s *QdrantStore) Scroll(ctx context.Context, name string, limit int, offset string) ([]Point, string, error) {
	if err := ValidateCollectionName(name); err != nil {
		return nil, "", err
	}
	if limit <= 0 {
		limit = 100
	}

	req := &qdrant.ScrollPoints{
		CollectionName: name,
		Limit:          qdrant.PtrOf(uint32(limit + 1)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	}
	if offset != "" {
		req.Offset = qdrant.NewIDUUID(offset)
	}

	var retrieved []*qdrant.RetrievedPoint
	err := s.retryOperation(ctx, "scroll", func() error {
		res, err := s.client.Scroll(ctx, req)
		if err != nil {
			return err
		}
		retrieved = res
		return nil
	})
	if err != nil {
		return nil, "", fmt.Errorf("scrolling collection %s: %w", name, err)
	}

	next := ""
	if len(retrieved) > limit {
		next = retrieved[limit].Id.GetUuid()
		retrieved = retrieved[:limit]
	}

	points := make([]Point, len(retrieved))
	for i, rp := range retrieved {
		var vec []float32
		if v := rp.Vectors.GetVector(); v != nil {
			vec = v.Data
		}
		points[i] = Point{
			ID:      rp.Id.GetUuid(),
			Vector:  vec,
			Payload: payloadFromQdrant(rp.Payload),
		}
	}
	return points, next, nil
}

// qdrantFilter converts a Filter into a Qdrant must-match conjunction.
func qdrantFilter(f Filter) *qdrant.Filter {
	conds := f.conditions()
	if len(conds) == 0 {
		return nil
	}
	must := make([]*qdrant.Condition, len(conds))
	for i, c := range conds {
		must[i] = &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: c.key,
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keyword{Keyword: c.value},
					},
				},
			},
		}
	}
	return &qdrant.Filter{Must: must}
}

// qdrantPayload converts a typed payload into Qdrant payload values.
func qdrantPayload(p Payload) map[string]*qdrant.Value {
	out := map[string]*qdrant.Value{
		KeyTenantID:    stringValue(p.TenantID),
		KeyDocumentID:  stringValue(p.DocumentID),
		KeyContent:     stringValue(p.Content),
		KeyTitle:       stringValue(p.Title),
		KeyChunkNumber: intValue(p.ChunkNumber),
		KeyChunkTotal:  intValue(p.ChunkTotal),
	}
	if p.Source != "" {
		out[KeySource] = stringValue(p.Source)
	}
	if p.Category != "" {
		out[KeyCategory] = stringValue(p.Category)
	}
	if !p.CreatedAt.IsZero() {
		out[KeyCreatedAt] = stringValue(p.CreatedAt.UTC().Format(time.RFC3339))
	}
	for k, v := range p.Extra {
		if _, reserved := out[k]; !reserved {
			out[k] = stringValue(v)
		}
	}
	return out
}

// payloadFromQdrant reconstructs a typed payload from Qdrant values.
// Unknown string fields land in Extra for forward compatibility.
func payloadFromQdrant(m map[string]*qdrant.Value) Payload {
	var p Payload
	for k, v := range m {
		switch k {
		case KeyTenantID:
			p.TenantID = v.GetStringValue()
		case KeyDocumentID:
			p.DocumentID = v.GetStringValue()
		case KeyContent:
			p.Content = v.GetStringValue()
		case KeyTitle:
			p.Title = v.GetStringValue()
		case KeySource:
			p.Source = v.GetStringValue()
		case KeyCategory:
			p.Category = v.GetStringValue()
		case KeyChunkNumber:
			p.ChunkNumber = int(v.GetIntegerValue())
		case KeyChunkTotal:
			p.ChunkTotal = int(v.GetIntegerValue())
		case KeyCreatedAt:
			if t, err := time.Parse(time.RFC3339, v.GetStringValue()); err == nil {
				p.CreatedAt = t
			}
		default:
			if s := v.GetStringValue(); s != "" {
				if p.Extra == nil {
					p.Extra = make(map[string]string)
				}
				p.Extra[k] = s
			}
		}
	}
	return p
}

func stringValue(s string) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
}

func intValue(n int) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(n)}}
}

// Ensure QdrantStore implements Store.
var _ Store = (*QdrantStore)(nil)
