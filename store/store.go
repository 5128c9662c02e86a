// Package store persists enriched documents. A Document is the durable unit
// produced per chunk; its ID is derived from (filename, chunk index) so
// re-processing the same file overwrites rather than duplicates — every
// backend implements upsert-by-ID semantics.
//
// Two backends exist: a local SQLite store and a REST client for a managed
// document store whose throttling signal is HTTP 429 or the body substring
// "Request rate is large".
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Entity is a named entity attached to a chunk. The label vocabulary comes
// from the entity-recognition service and is opaque here.
type Entity struct {
	Text  string `json:"text"`
	Label string `json:"label"`
}

// Document is the enriched chunk persisted downstream. This shape is the
// contract consumed by the search index and the RAG layer.
type Document struct {
	ID                 string    `json:"id"`
	Category           string    `json:"category"`
	SourceFilename     string    `json:"source_filename"`
	ChunkText          string    `json:"chunk_text"`
	Embedding          []float32 `json:"embedding"`
	Entities           []Entity  `json:"entities"`
	ChunkIndex         int       `json:"chunk_index"`
	ChunkLength        int       `json:"chunk_length"`
	EventTimestamp     time.Time `json:"event_timestamp"`
	ProcessedTimestamp time.Time `json:"processed_timestamp"`
}

// DocumentID derives the deterministic document ID for a chunk of a file.
// Path separators in the filename are flattened so the ID stays opaque.
func DocumentID(filename string, chunkIndex int) string {
	return fmt.Sprintf("%s_%d", strings.ReplaceAll(filename, "/", "_"), chunkIndex)
}

// DocumentStore is the persistence collaborator.
type DocumentStore interface {
	// Upsert inserts or overwrites the document under its ID.
	Upsert(ctx context.Context, doc *Document) error
}

// ErrNotFound is returned by lookups for an unknown document ID.
var ErrNotFound = errors.New("store: document not found")

// StatusError is a non-success HTTP response from a remote document store.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("store: HTTP %d: %s", e.Code, e.Body)
}

// Throttled reports whether err is the store's throttling signal and the
// operation is worth retrying.
func Throttled(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == 429 || strings.Contains(se.Body, "Request rate is large")
	}
	return err != nil && strings.Contains(err.Error(), "Request rate is large")
}
