// Package answer turns resident questions into grounded answers:
// embed the query, retrieve tenant-scoped chunks, generate strictly
// from what was retrieved.
package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vivenda-labs/ragd/internal/vectorstore"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("ragd.answer")

var (
	// ErrEmptyQuery indicates a blank question.
	ErrEmptyQuery = errors.New("empty query")

	// ErrRateLimited indicates the generation backend is throttling.
	ErrRateLimited = errors.New("generation rate limited")

	// ErrGenerationFailed indicates the generation backend failed.
	ErrGenerationFailed = errors.New("answer generation failed")
)

// defaultNotFound is returned when retrieval comes back empty. Most
// residents write in Portuguese, so the canned answer does too.
const defaultNotFound = "Não encontrei essa informação nos documentos do condomínio. " +
	"Recomendo entrar em contato com a administração."

// systemPrompt is the grounding contract. The model answers only from
// the retrieved context, never from its own knowledge.
const systemPrompt = `You are an assistant for condominium residents. Answer questions using ONLY the document excerpts provided in the context below.

Rules:
- If the context does not contain the answer, say you could not find it in the condominium documents and suggest contacting the administration. Never invent an answer.
- Cite the source document title when you answer.
- Answer in the same language as the question.
- When the resident's name is given, address them by name.
- Be concise and factual.`

// Generator produces an answer from a system prompt and a user prompt.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// Source identifies a document excerpt that backed an answer.
type Source struct {
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title"`
	Source     string  `json:"source,omitempty"`
	Category   string  `json:"category,omitempty"`
	Score      float32 `json:"score"`
}

// Answer is the result of one question.
type Answer struct {
	Text     string   `json:"text"`
	Sources  []Source `json:"sources"`
	Grounded bool     `json:"grounded"`
}

// Config configures the answer service.
type Config struct {
	// Collection is the vector collection to search.
	Collection string

	// TopK is the number of chunks to retrieve. Default: 5.
	TopK int

	// ScoreThreshold drops weak matches. Default: 0.7. Zero selects
	// the default, so the threshold cannot be disabled outright; use a
	// small positive value to keep nearly everything.
	ScoreThreshold float32

	// NotFoundAnswer is returned on retrieval misses.
	NotFoundAnswer string
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Collection == "" {
		c.Collection = "condo_documents"
	}
	if c.TopK == 0 {
		c.TopK = 5
	}
	if c.ScoreThreshold == 0 {
		c.ScoreThreshold = 0.7
	}
	if c.NotFoundAnswer == "" {
		c.NotFoundAnswer = defaultNotFound
	}
}

// Service answers resident questions.
type Service struct {
	config    Config
	store     vectorstore.Store
	embedder  vectorstore.Embedder
	generator Generator
	logger    *zap.Logger
}

// NewService wires the answer service.
func NewService(config Config, store vectorstore.Store, embedder vectorstore.Embedder, generator Generator, logger *zap.Logger) (*Service, error) {
	config.ApplyDefaults()
	if err := vectorstore.ValidateCollectionName(config.Collection); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		config:    config,
		store:     store,
		embedder:  embedder,
		generator: generator,
		logger:    logger,
	}, nil
}

// Answer retrieves tenant-scoped context for the query and generates a
// grounded reply. A retrieval miss short-circuits to the configured
// not-found answer without calling the generator at all.
func (s *Service) Answer(ctx context.Context, query, tenantID, userName string) (*Answer, error) {
	ctx, span := tracer.Start(ctx, "Service.Answer")
	defer span.End()
	span.SetAttributes(attribute.String("tenant_id", tenantID))

	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if tenantID == "" {
		return nil, vectorstore.ErrMissingTenant
	}

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	hits, err := s.store.Search(ctx, s.config.Collection, vector, vectorstore.SearchOptions{
		Limit:          s.config.TopK,
		ScoreThreshold: s.config.ScoreThreshold,
		Filter:         vectorstore.Filter{TenantID: tenantID},
	})
	if err != nil {
		// A tenant with no documents yet has no collection either.
		if errors.Is(err, vectorstore.ErrCollectionNotFound) {
			hits = nil
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("searching documents: %w", err)
		}
	}
	span.SetAttributes(attribute.Int("hits", len(hits)))

	if len(hits) == 0 {
		s.logger.Info("no relevant context found",
			zap.String("tenant_id", tenantID))
		span.SetStatus(codes.Ok, "no context")
		return &Answer{Text: s.config.NotFoundAnswer, Sources: []Source{}, Grounded: false}, nil
	}

	text, err := s.generator.Generate(ctx, systemPrompt, s.userPrompt(query, userName, hits))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "success")
	return &Answer{Text: text, Sources: collectSources(hits), Grounded: true}, nil
}

// userPrompt assembles the context block and the question. Each
// excerpt is labeled so the model can cite it.
func (s *Service) userPrompt(query, userName string, hits []vectorstore.SearchResult) string {
	var b strings.Builder
	b.WriteString("Context:\n\n")
	for i, hit := range hits {
		label := hit.Payload.Title
		if hit.Payload.Source != "" {
			label += " (" + hit.Payload.Source + ")"
		}
		fmt.Fprintf(&b, "[%d] %s\n%s\n\n", i+1, label, hit.Payload.Content)
	}
	if userName != "" {
		fmt.Fprintf(&b, "Resident name: %s\n", userName)
	}
	b.WriteString("Question: ")
	b.WriteString(query)
	return b.String()
}

// collectSources deduplicates hits by document, keeping the best
// score per document in hit order.
func collectSources(hits []vectorstore.SearchResult) []Source {
	seen := make(map[string]bool, len(hits))
	sources := make([]Source, 0, len(hits))
	for _, hit := range hits {
		if seen[hit.Payload.DocumentID] {
			continue
		}
		seen[hit.Payload.DocumentID] = true
		sources = append(sources, Source{
			DocumentID: hit.Payload.DocumentID,
			Title:      hit.Payload.Title,
			Source:     hit.Payload.Source,
			Category:   hit.Payload.Category,
			Score:      hit.Score,
		})
	}
	return sources
}
