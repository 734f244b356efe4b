// Package httpapi exposes ingestion and question answering over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/vivenda-labs/ragd/internal/answer"
	"github.com/vivenda-labs/ragd/internal/docstore"
	"github.com/vivenda-labs/ragd/internal/embeddings"
	"github.com/vivenda-labs/ragd/internal/ingest"
	"github.com/vivenda-labs/ragd/internal/vectorstore"
	"go.uber.org/zap"
)

// Ingestor is the slice of the pipeline the HTTP layer needs.
type Ingestor interface {
	Ingest(ctx context.Context, doc *docstore.Document) (*ingest.Result, error)
	DeleteDocument(ctx context.Context, tenantID, id string) error
}

// Answerer answers resident questions.
type Answerer interface {
	Answer(ctx context.Context, query, tenantID, userName string) (*answer.Answer, error)
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server provides the HTTP endpoints.
type Server struct {
	echo     *echo.Echo
	ingestor Ingestor
	answerer Answerer
	logger   *zap.Logger
	config   Config
}

// NewServer creates the HTTP server.
func NewServer(cfg Config, ingestor Ingestor, answerer Answerer, logger *zap.Logger) (*Server, error) {
	if ingestor == nil {
		return nil, fmt.Errorf("ingestor is required")
	}
	if answerer == nil {
		return nil, fmt.Errorf("answerer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = 8090
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:     e,
		ingestor: ingestor,
		answerer: answerer,
		logger:   logger,
		config:   cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealth)

	tenants := s.echo.Group("/v1/tenants/:tenant")
	tenants.Use(s.resolveTenant)
	tenants.POST("/documents", s.handleIngest)
	tenants.DELETE("/documents/:id", s.handleDelete)
	tenants.POST("/ask", s.handleAsk)
}

// resolveTenant moves the :tenant path parameter into the request
// context so handlers read it back through the fail-closed accessor.
func (s *Server) resolveTenant(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		tenant := &vectorstore.TenantInfo{TenantID: c.Param("tenant")}
		if err := tenant.Validate(); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "tenant is required")
		}
		ctx := vectorstore.ContextWithTenant(c.Request().Context(), tenant)
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

// HealthResponse is the response body for GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// IngestRequest is the request body for POST /v1/tenants/:tenant/documents.
type IngestRequest struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Source      string `json:"source"`
	Category    string `json:"category"`
	Content     string `json:"content"`
	ContentType string `json:"content_type"`
}

// IngestResponse is the response body for a successful ingest.
type IngestResponse struct {
	DocumentID   string `json:"document_id"`
	ChunkCount   int    `json:"chunk_count"`
	FailedChunks int    `json:"failed_chunks"`
	Status       string `json:"status"`
}

func (s *Server) handleIngest(c echo.Context) error {
	tenant, err := vectorstore.TenantFromContext(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "tenant is required")
	}

	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Title == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "title is required")
	}
	if req.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content is required")
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	result, err := s.ingestor.Ingest(c.Request().Context(), &docstore.Document{
		ID:          req.ID,
		TenantID:    tenant.TenantID,
		Title:       req.Title,
		Source:      req.Source,
		Category:    req.Category,
		Content:     req.Content,
		ContentType: req.ContentType,
	})
	if err != nil {
		return s.mapError(c, err)
	}

	return c.JSON(http.StatusCreated, IngestResponse{
		DocumentID:   req.ID,
		ChunkCount:   result.ChunkCount,
		FailedChunks: result.FailedChunks,
		Status:       string(result.Status),
	})
}

func (s *Server) handleDelete(c echo.Context) error {
	tenant, err := vectorstore.TenantFromContext(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "tenant is required")
	}
	id := c.Param("id")

	if err := s.ingestor.DeleteDocument(c.Request().Context(), tenant.TenantID, id); err != nil {
		return s.mapError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// AskRequest is the request body for POST /v1/tenants/:tenant/ask.
type AskRequest struct {
	Question string `json:"question"`
	UserName string `json:"user_name"`
}

// AskResponse is the response body for a question.
type AskResponse struct {
	Answer   string          `json:"answer"`
	Sources  []answer.Source `json:"sources"`
	Grounded bool            `json:"grounded"`
}

func (s *Server) handleAsk(c echo.Context) error {
	tenant, err := vectorstore.TenantFromContext(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "tenant is required")
	}

	var req AskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Question == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question is required")
	}

	got, err := s.answerer.Answer(c.Request().Context(), req.Question, tenant.TenantID, req.UserName)
	if err != nil {
		return s.mapError(c, err)
	}

	// A grounding miss is a normal answer, not an error.
	return c.JSON(http.StatusOK, AskResponse{
		Answer:   got.Text,
		Sources:  got.Sources,
		Grounded: got.Grounded,
	})
}

// mapError translates internal errors into HTTP responses. Residents
// never see raw internals.
func (s *Server) mapError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, answer.ErrRateLimited), errors.Is(err, embeddings.ErrRateLimited):
		return echo.NewHTTPError(http.StatusTooManyRequests,
			"the assistant is busy, please try again shortly")
	case errors.Is(err, docstore.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	case errors.Is(err, docstore.ErrInvalidDocument), errors.Is(err, answer.ErrEmptyQuery):
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	case errors.Is(err, ingest.ErrUnsupportedContent):
		return echo.NewHTTPError(http.StatusUnsupportedMediaType,
			"this document format is not supported")
	case errors.Is(err, ingest.ErrNoChunks):
		return echo.NewHTTPError(http.StatusUnprocessableEntity,
			"the document has no indexable content")
	default:
		s.logger.Error("request failed", zap.Error(err),
			zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
