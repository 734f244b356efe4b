// Ragctl is the operator CLI for ragd.
//
// It talks to a running ragd server for document ingestion and
// questions, and runs collection maintenance directly against the
// configured stores.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vivenda-labs/ragd/internal/config"
	"github.com/vivenda-labs/ragd/internal/docstore"
	"github.com/vivenda-labs/ragd/internal/embeddings"
	"github.com/vivenda-labs/ragd/internal/ingest"
	"github.com/vivenda-labs/ragd/internal/logging"
	"github.com/vivenda-labs/ragd/internal/vectorstore"
)

var (
	serverURL string
	tenantID  string
)

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "ragctl",
		Short:         "Operator CLI for the ragd condominium document assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8090", "ragd server URL")
	root.PersistentFlags().StringVar(&tenantID, "tenant", "", "condominium tenant id")

	root.AddCommand(newIngestCmd(), newAskCmd(), newDeleteCmd(), newReindexCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ragctl: %v\n", err)
		os.Exit(1)
	}
}

func requireTenant() error {
	if tenantID == "" {
		return fmt.Errorf("--tenant is required")
	}
	return nil
}

func newIngestCmd() *cobra.Command {
	var title, source, category, id, contentType string

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Upload and index a document for a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireTenant(); err != nil {
				return err
			}

			content, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}
			if title == "" {
				title = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			}
			if source == "" {
				source = filepath.Base(args[0])
			}

			body := map[string]string{
				"id":           id,
				"title":        title,
				"source":       source,
				"category":     category,
				"content":      string(content),
				"content_type": contentType,
			}

			var resp struct {
				DocumentID   string `json:"document_id"`
				ChunkCount   int    `json:"chunk_count"`
				FailedChunks int    `json:"failed_chunks"`
				Status       string `json:"status"`
			}
			path := fmt.Sprintf("/v1/tenants/%s/documents", tenantID)
			if err := postJSON(cmd.Context(), path, body, &resp); err != nil {
				return err
			}

			fmt.Printf("indexed %q as %s: %d chunks (%d failed), status %s\n",
				title, resp.DocumentID, resp.ChunkCount, resp.FailedChunks, resp.Status)
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "document title (default: file name)")
	cmd.Flags().StringVar(&source, "source", "", "source label (default: file name)")
	cmd.Flags().StringVar(&category, "category", "", "document category")
	cmd.Flags().StringVar(&id, "id", "", "document id (default: server-generated)")
	cmd.Flags().StringVar(&contentType, "content-type", "", "content type (default: text/plain)")
	return cmd
}

func newAskCmd() *cobra.Command {
	var userName string

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question against a tenant's documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireTenant(); err != nil {
				return err
			}

			body := map[string]string{
				"question":  strings.Join(args, " "),
				"user_name": userName,
			}

			var resp struct {
				Answer  string `json:"answer"`
				Sources []struct {
					Title  string  `json:"title"`
					Source string  `json:"source"`
					Score  float32 `json:"score"`
				} `json:"sources"`
				Grounded bool `json:"grounded"`
			}
			path := fmt.Sprintf("/v1/tenants/%s/ask", tenantID)
			if err := postJSON(cmd.Context(), path, body, &resp); err != nil {
				return err
			}

			fmt.Println(resp.Answer)
			if len(resp.Sources) > 0 {
				fmt.Println("\nSources:")
				for _, s := range resp.Sources {
					fmt.Printf("  - %s (%s, score %.2f)\n", s.Title, s.Source, s.Score)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&userName, "name", "", "resident name for a personalized answer")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <document-id>",
		Short: "Remove a document and its index entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireTenant(); err != nil {
				return err
			}

			path := fmt.Sprintf("/v1/tenants/%s/documents/%s", tenantID, args[0])
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodDelete, serverURL+path, nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return fmt.Errorf("calling server: %w", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusNoContent {
				return serverError(resp)
			}

			fmt.Printf("deleted %s\n", args[0])
			return nil
		},
	}
}

func newReindexCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Drop and rebuild the vector collection from stored documents",
		Long: `Drop and rebuild the vector collection from stored documents.

This runs directly against the configured stores, not through the
server. Stop ragd first: reindex drops the live collection and must
not race ingestion or queries.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Level, "console")
			if err != nil {
				return err
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

			pipeline, err := ingest.NewPipeline(cfg.IngestPipelineConfig(), store, docs, embedder,
				ingest.NewParserClient(cfg.ParserClientConfig(), logger), cfg.ChunkerOptions(), logger)
			if err != nil {
				return fmt.Errorf("building pipeline: %w", err)
			}

			result, err := ingest.NewReindexer(pipeline, logger).Reindex(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("reindexed %d documents (%d failed)\n", result.Documents, result.Failed)
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to YAML config file")
	return cmd
}

// postJSON posts a body to the server and decodes the response into out.
func postJSON(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 5 * time.Minute}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serverURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("calling server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return serverError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// serverError extracts the message echo puts in its error body.
func serverError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var echoErr struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &echoErr) == nil && echoErr.Message != "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, echoErr.Message)
	}
	return fmt.Errorf("server returned %d", resp.StatusCode)
}
