package ingest

import (
	"errors"
	"fmt"
)

// ErrAllChunksFailed is the file-level outcome when every chunk of a file
// failed enrichment or persistence.
var ErrAllChunksFailed = errors.New("ingest: all chunks failed")

// errBlankChunk marks an empty or whitespace-only chunk. It is counted as a
// per-chunk failure but never escalates past the chunk.
var errBlankChunk = errors.New("ingest: blank chunk skipped")

// ChunkError wraps a failure of one chunk with its position and the stage
// that failed. Chunk failures are isolated: one never aborts its siblings.
type ChunkError struct {
	Index int
	Stage string // "ner", "embed", "persist"
	Err   error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("ingest: chunk %d: %s: %v", e.Index, e.Stage, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }
