// Ragd is the condominium document assistant daemon.
//
// It ingests condominium documents (bylaws, meeting minutes, notices),
// indexes them per tenant in a vector store and answers resident
// questions grounded in those documents.
//
// Configuration comes from a YAML file and RAGD_* environment
// variables. A .env file in the working directory is loaded first.
//
// Usage:
//
//	# Start with defaults (embedded vector store)
//	ragd
//
//	# Configure via file and environment
//	ragd -config /etc/ragd/config.yaml
//	RAGD_SERVER_PORT=9090 ragd
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/vivenda-labs/ragd/internal/answer"
	"github.com/vivenda-labs/ragd/internal/config"
	"github.com/vivenda-labs/ragd/internal/docstore"
	"github.com/vivenda-labs/ragd/internal/embeddings"
	"github.com/vivenda-labs/ragd/internal/httpapi"
	"github.com/vivenda-labs/ragd/internal/ingest"
	"github.com/vivenda-labs/ragd/internal/logging"
	"github.com/vivenda-labs/ragd/internal/vectorstore"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	// Optional .env for local development.
	_ = godotenv.Load()

	if err := run(*configPath); err != nil {
		log.Fatalf("ragd: %v", err)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer func() { _ = logging.Sync(logger) }()

	store, err := vectorstore.NewStore(cfg.StoreConfig(), logger)
	if err != nil {
		return fmt.Errorf("building vector store: %w", err)
	}
	defer store.Close()

	docs, err := docstore.NewStore(cfg.Docstore.Path)
	if err != nil {
		return fmt.Errorf("opening document store: %w", err)
	}
	defer docs.Close()

	embedder := embeddings.NewHandle(cfg.ProviderConfig(), logger)
	defer embedder.Close()

	parser := ingest.NewParserClient(cfg.ParserClientConfig(), logger)

	pipeline, err := ingest.NewPipeline(cfg.IngestPipelineConfig(), store, docs, embedder, parser, cfg.ChunkerOptions(), logger)
	if err != nil {
		return fmt.Errorf("building pipeline: %w", err)
	}

	generator, err := answer.NewOpenAIGenerator(cfg.GeneratorConfig(), logger)
	if err != nil {
		return fmt.Errorf("building generator: %w", err)
	}

	answerer, err := answer.NewService(cfg.AnswerServiceConfig(), store, embedder, generator, logger)
	if err != nil {
		return fmt.Errorf("building answer service: %w", err)
	}

	server, err := httpapi.NewServer(httpapi.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	}, pipeline, answerer, logger)
	if err != nil {
		return fmt.Errorf("building http server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	logger.Info("ragd started",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("vector_store", cfg.VectorStore.Provider))

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}
