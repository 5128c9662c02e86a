package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite is a local DocumentStore backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and runs migrations.
// Parent directories are created as needed.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// DB returns the underlying *sql.DB for sharing with the observability layer.
func (s *SQLite) DB() *sql.DB { return s.db }

// Close closes the underlying database connection.
func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS documents (
    id                  TEXT PRIMARY KEY,
    category            TEXT NOT NULL DEFAULT '',
    source_filename     TEXT NOT NULL,
    chunk_text          TEXT NOT NULL,
    embedding           TEXT NOT NULL,
    entities            TEXT NOT NULL,
    chunk_index         INTEGER NOT NULL,
    chunk_length        INTEGER NOT NULL,
    event_timestamp     TEXT NOT NULL,
    processed_timestamp TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_file     ON documents(source_filename);
CREATE INDEX IF NOT EXISTS idx_documents_category ON documents(category);
`
	_, err := s.db.Exec(ddl)
	return err
}

// Upsert inserts or overwrites the document under its ID.
func (s *SQLite) Upsert(ctx context.Context, doc *Document) error {
	embedding, err := json.Marshal(doc.Embedding)
	if err != nil {
		return fmt.Errorf("marshal embedding: %w", err)
	}
	entities := doc.Entities
	if entities == nil {
		entities = []Entity{}
	}
	entJSON, err := json.Marshal(entities)
	if err != nil {
		return fmt.Errorf("marshal entities: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (
			id, category, source_filename, chunk_text, embedding, entities,
			chunk_index, chunk_length, event_timestamp, processed_timestamp
		) VALUES (?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			category            = excluded.category,
			source_filename     = excluded.source_filename,
			chunk_text          = excluded.chunk_text,
			embedding           = excluded.embedding,
			entities            = excluded.entities,
			chunk_index         = excluded.chunk_index,
			chunk_length        = excluded.chunk_length,
			event_timestamp     = excluded.event_timestamp,
			processed_timestamp = excluded.processed_timestamp`,
		doc.ID, doc.Category, doc.SourceFilename, doc.ChunkText,
		string(embedding), string(entJSON),
		doc.ChunkIndex, doc.ChunkLength,
		doc.EventTimestamp.UTC().Format(time.RFC3339Nano),
		doc.ProcessedTimestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert %s: %w", doc.ID, err)
	}
	return nil
}

// Get returns the document stored under id, or ErrNotFound.
func (s *SQLite) Get(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, category, source_filename, chunk_text, embedding, entities,
		       chunk_index, chunk_length, event_timestamp, processed_timestamp
		FROM documents WHERE id = ?`, id)

	var doc Document
	var embedding, entities, eventTS, processedTS string
	err := row.Scan(&doc.ID, &doc.Category, &doc.SourceFilename, &doc.ChunkText,
		&embedding, &entities, &doc.ChunkIndex, &doc.ChunkLength, &eventTS, &processedTS)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", id, err)
	}

	if err := json.Unmarshal([]byte(embedding), &doc.Embedding); err != nil {
		return nil, fmt.Errorf("unmarshal embedding: %w", err)
	}
	if err := json.Unmarshal([]byte(entities), &doc.Entities); err != nil {
		return nil, fmt.Errorf("unmarshal entities: %w", err)
	}
	if doc.EventTimestamp, err = time.Parse(time.RFC3339Nano, eventTS); err != nil {
		return nil, fmt.Errorf("parse event_timestamp: %w", err)
	}
	if doc.ProcessedTimestamp, err = time.Parse(time.RFC3339Nano, processedTS); err != nil {
		return nil, fmt.Errorf("parse processed_timestamp: %w", err)
	}
	return &doc, nil
}

// CountByFile returns the number of documents stored for a source filename.
func (s *SQLite) CountByFile(ctx context.Context, filename string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE source_filename = ?`, filename).Scan(&n)
	return n, err
}
