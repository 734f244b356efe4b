// Package docstore persists parent document records in SQLite. The
// vector store holds chunks; this store holds the documents they came
// from, their ingestion status and their original content for reindex.
package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

var (
	// ErrNotFound indicates the document does not exist for the tenant.
	ErrNotFound = errors.New("document not found")

	// ErrInvalidDocument indicates a document missing required fields.
	ErrInvalidDocument = errors.New("invalid document")
)

// Status is the ingestion state of a document.
type Status string

// Ingestion states, in processing order. Error is terminal.
const (
	StatusReceived  Status = "received"
	StatusParsed    Status = "parsed"
	StatusChunked   Status = "chunked"
	StatusEmbedding Status = "embedding"
	StatusIndexed   Status = "indexed"
	StatusDone      Status = "done"
	StatusError     Status = "error"
)

// Document is a parent document record. Content is kept verbatim so a
// reindex can re-chunk and re-embed without re-uploading.
type Document struct {
	ID           string
	TenantID     string
	Title        string
	Source       string
	Category     string
	Content      string
	ContentType  string
	Status       Status
	ChunkCount   int
	FailedChunks int
	LastError    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Validate checks required fields.
func (d *Document) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("%w: id required", ErrInvalidDocument)
	}
	if d.TenantID == "" {
		return fmt.Errorf("%w: tenant id required", ErrInvalidDocument)
	}
	if d.Title == "" {
		return fmt.Errorf("%w: title required", ErrInvalidDocument)
	}
	return nil
}

// Store is a SQLite-backed document store.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id            TEXT NOT NULL,
	tenant_id     TEXT NOT NULL,
	title         TEXT NOT NULL,
	source        TEXT NOT NULL DEFAULT '',
	category      TEXT NOT NULL DEFAULT '',
	content       TEXT NOT NULL DEFAULT '',
	content_type  TEXT NOT NULL DEFAULT 'text/plain',
	status        TEXT NOT NULL DEFAULT 'received',
	chunk_count   INTEGER NOT NULL DEFAULT 0,
	failed_chunks INTEGER NOT NULL DEFAULT 0,
	last_error    TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL,
	updated_at    DATETIME NOT NULL,
	PRIMARY KEY (tenant_id, id)
);
CREATE INDEX IF NOT EXISTS idx_documents_tenant ON documents(tenant_id);
`

// NewStore opens (or creates) the store at path. Empty path uses an
// in-memory database.
func NewStore(path string) (*Store, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		// WAL for concurrent readers during ingestion.
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put inserts or replaces a document record.
func (s *Store) Put(ctx context.Context, doc *Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	if doc.Status == "" {
		doc.Status = StatusReceived
	}
	if doc.ContentType == "" {
		doc.ContentType = "text/plain"
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents
			(id, tenant_id, title, source, category, content, content_type,
			 status, chunk_count, failed_chunks, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, id) DO UPDATE SET
			title = excluded.title,
			source = excluded.source,
			category = excluded.category,
			content = excluded.content,
			content_type = excluded.content_type,
			status = excluded.status,
			chunk_count = excluded.chunk_count,
			failed_chunks = excluded.failed_chunks,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at`,
		doc.ID, doc.TenantID, doc.Title, doc.Source, doc.Category, doc.Content,
		doc.ContentType, string(doc.Status), doc.ChunkCount, doc.FailedChunks,
		doc.LastError, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("storing document %s: %w", doc.ID, err)
	}
	return nil
}

// Get returns a document by tenant and id.
func (s *Store) Get(ctx context.Context, tenantID, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, title, source, category, content, content_type,
		       status, chunk_count, failed_chunks, last_error, created_at, updated_at
		FROM documents WHERE tenant_id = ? AND id = ?`, tenantID, id)
	return scanDocument(row)
}

// Delete removes a document record. Deleting a missing document
// returns ErrNotFound so callers can distinguish it from success.
func (s *Store) Delete(ctx context.Context, tenantID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE tenant_id = ? AND id = ?`, tenantID, id)
	if err != nil {
		return fmt.Errorf("deleting document %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting document %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByTenant returns all documents for a tenant, newest first.
func (s *Store) ListByTenant(ctx context.Context, tenantID string) ([]*Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, title, source, category, content, content_type,
		       status, chunk_count, failed_chunks, last_error, created_at, updated_at
		FROM documents WHERE tenant_id = ? ORDER BY created_at DESC, id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing documents for tenant %s: %w", tenantID, err)
	}
	defer rows.Close()
	return collectDocuments(rows)
}

// ListAll returns every stored document across tenants. Used by
// reindex, which rebuilds the whole collection.
func (s *Store) ListAll(ctx context.Context) ([]*Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, title, source, category, content, content_type,
		       status, chunk_count, failed_chunks, last_error, created_at, updated_at
		FROM documents ORDER BY tenant_id, created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()
	return collectDocuments(rows)
}

// SetStatus records a state transition.
func (s *Store) SetStatus(ctx context.Context, tenantID, id string, status Status) error {
	return s.update(ctx, tenantID, id, `status = ?, updated_at = ?`, string(status), time.Now().UTC())
}

// SetOutcome records the terminal result of an ingestion run.
func (s *Store) SetOutcome(ctx context.Context, tenantID, id string, status Status, chunkCount, failedChunks int, lastError string) error {
	return s.update(ctx, tenantID, id,
		`status = ?, chunk_count = ?, failed_chunks = ?, last_error = ?, updated_at = ?`,
		string(status), chunkCount, failedChunks, lastError, time.Now().UTC())
}

func (s *Store) update(ctx context.Context, tenantID, id, set string, args ...interface{}) error {
	args = append(args, tenantID, id)
	res, err := s.db.ExecContext(ctx, `UPDATE documents SET `+set+` WHERE tenant_id = ? AND id = ?`, args...)
	if err != nil {
		return fmt.Errorf("updating document %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating document %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var d Document
	var status string
	err := row.Scan(&d.ID, &d.TenantID, &d.Title, &d.Source, &d.Category,
		&d.Content, &d.ContentType, &status, &d.ChunkCount, &d.FailedChunks,
		&d.LastError, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	d.Status = Status(status)
	return &d, nil
}

func collectDocuments(rows *sql.Rows) ([]*Document, error) {
	var docs []*Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}
