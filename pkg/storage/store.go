// Package storage provides the per-session persistence layers: the
// SQLite store for documents and snippets, append-only JSONL streams,
// and atomic JSON state snapshots.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3" // register sqlite3 driver
	"github.com/seekerhq/seeker/pkg/models"
)

//go:embed migrations
var migrationsFS embed.FS

// Store is the relational layer over one session.db file. Writers
// serialize through this single handle.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) a session database in WAL mode
// with NORMAL synchronous, and applies pending migrations.
func OpenStore(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Single writer; sqlite serializes through one connection.
	db.SetMaxOpenConns(1)

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// runMigrations applies embedded SQL migrations with golang-migrate.
// Files are embedded so deployments never need external migration dirs.
func runMigrations(db *sql.DB) error {
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	// Close only the source driver; closing m would close the shared DB.
	if err := sourceDriver.Close(); err != nil {
		return fmt.Errorf("failed to close migration source: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *sql.DB {
	return s.db
}

// SaveDocument upserts a document by primary key.
func (s *Store) SaveDocument(ctx context.Context, doc *models.Document) error {
	metadata, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	var published any
	if doc.PublishedAt != nil {
		published = doc.PublishedAt.UTC().Format(time.RFC3339Nano)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO documents
		(doc_id, source, source_entity, url, permalink, retrieved_at, published_at,
		 title, raw_text, author, score, comment_count, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.DocID, doc.Source, doc.SourceEntity, doc.URL, doc.Permalink,
		doc.RetrievedAt.UTC().Format(time.RFC3339Nano), published,
		doc.Title, doc.RawText, nullString(doc.Author), doc.Score, doc.CommentCount, string(metadata))
	if err != nil {
		return fmt.Errorf("failed to save document %s: %w", doc.DocID, err)
	}
	return nil
}

// GetDocument looks up one document. Returns sql.ErrNoRows when absent.
func (s *Store) GetDocument(ctx context.Context, docID string) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT doc_id, source, source_entity, url, permalink, retrieved_at, published_at,
		       title, raw_text, author, score, comment_count, metadata
		FROM documents WHERE doc_id = ?`, docID)
	return scanDocument(row)
}

// HasDocument reports whether a document exists.
func (s *Store) HasDocument(ctx context.Context, docID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM documents WHERE doc_id = ?`, docID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check document %s: %w", docID, err)
	}
	return true, nil
}

// CountDocuments returns the document count.
func (s *Store) CountDocuments(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

// IterDocuments streams all documents through fn without loading the
// full table. Returning false from fn stops the scan.
func (s *Store) IterDocuments(ctx context.Context, fn func(*models.Document) bool) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_id, source, source_entity, url, permalink, retrieved_at, published_at,
		       title, raw_text, author, score, comment_count, metadata
		FROM documents ORDER BY doc_id`)
	if err != nil {
		return fmt.Errorf("failed to scan documents: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return err
		}
		if !fn(doc) {
			return nil
		}
	}
	return rows.Err()
}

// SaveSnippet upserts a snippet by primary key.
func (s *Store) SaveSnippet(ctx context.Context, sn *models.Snippet) error {
	entities, err := json.Marshal(sn.Entities)
	if err != nil {
		return fmt.Errorf("failed to encode entities: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO snippets
		(snippet_id, doc_id, excerpt, pain_statement, signal_type, intensity,
		 confidence, quality_score, entities, extractor_model, prompt_version, extracted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sn.SnippetID, sn.DocID, sn.Excerpt, sn.PainStatement, string(sn.SignalType),
		sn.Intensity, sn.Confidence, sn.QualityScore, string(entities),
		sn.ExtractorModel, sn.PromptVersion, sn.ExtractedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save snippet %s: %w", sn.SnippetID, err)
	}
	return nil
}

// CountSnippets returns the snippet count.
func (s *Store) CountSnippets(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM snippets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count snippets: %w", err)
	}
	return n, nil
}

// IterSnippets streams all snippets through fn in extraction order.
func (s *Store) IterSnippets(ctx context.Context, fn func(*models.Snippet) bool) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT snippet_id, doc_id, excerpt, pain_statement, signal_type, intensity,
		       confidence, quality_score, entities, extractor_model, prompt_version, extracted_at
		FROM snippets ORDER BY extracted_at, snippet_id`)
	if err != nil {
		return fmt.Errorf("failed to scan snippets: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		sn, err := scanSnippet(rows)
		if err != nil {
			return err
		}
		if !fn(sn) {
			return nil
		}
	}
	return rows.Err()
}

// DistinctEntities unions the JSON-array entity cells across snippets.
func (s *Store) DistinctEntities(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT entities FROM snippets`)
	if err != nil {
		return nil, fmt.Errorf("failed to scan entities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	seen := map[string]bool{}
	var out []string
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan entity cell: %w", err)
		}
		var cell []string
		if err := json.Unmarshal([]byte(raw), &cell); err != nil {
			continue // malformed cells are skipped, not fatal
		}
		for _, e := range cell {
			if !seen[e] {
				seen[e] = true
				out = append(out, e)
			}
		}
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var (
		doc          models.Document
		retrieved    string
		published    sql.NullString
		author       sql.NullString
		score        sql.NullInt64
		commentCount sql.NullInt64
		metadata     string
	)
	err := row.Scan(&doc.DocID, &doc.Source, &doc.SourceEntity, &doc.URL, &doc.Permalink,
		&retrieved, &published, &doc.Title, &doc.RawText, &author, &score, &commentCount, &metadata)
	if err != nil {
		return nil, err
	}
	if doc.RetrievedAt, err = time.Parse(time.RFC3339Nano, retrieved); err != nil {
		return nil, fmt.Errorf("invalid retrieved_at for %s: %w", doc.DocID, err)
	}
	if published.Valid {
		ts, err := time.Parse(time.RFC3339Nano, published.String)
		if err != nil {
			return nil, fmt.Errorf("invalid published_at for %s: %w", doc.DocID, err)
		}
		doc.PublishedAt = &ts
	}
	doc.Author = author.String
	if score.Valid {
		v := int(score.Int64)
		doc.Score = &v
	}
	if commentCount.Valid {
		v := int(commentCount.Int64)
		doc.CommentCount = &v
	}
	if err := json.Unmarshal([]byte(metadata), &doc.Metadata); err != nil {
		return nil, fmt.Errorf("invalid metadata for %s: %w", doc.DocID, err)
	}
	return &doc, nil
}

func scanSnippet(row rowScanner) (*models.Snippet, error) {
	var (
		sn        models.Snippet
		signal    string
		entities  string
		extracted string
	)
	err := row.Scan(&sn.SnippetID, &sn.DocID, &sn.Excerpt, &sn.PainStatement, &signal,
		&sn.Intensity, &sn.Confidence, &sn.QualityScore, &entities,
		&sn.ExtractorModel, &sn.PromptVersion, &extracted)
	if err != nil {
		return nil, err
	}
	sn.SignalType = models.CoerceSignalType(signal)
	if err := json.Unmarshal([]byte(entities), &sn.Entities); err != nil {
		return nil, fmt.Errorf("invalid entities for %s: %w", sn.SnippetID, err)
	}
	if sn.ExtractedAt, err = time.Parse(time.RFC3339Nano, extracted); err != nil {
		return nil, fmt.Errorf("invalid extracted_at for %s: %w", sn.SnippetID, err)
	}
	return &sn, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
