// Package ingest orchestrates the pipeline: fetch a file, extract and
// normalize its chunks, enrich each chunk with entities and an embedding,
// and upsert the result into the document store. Chunks are processed
// sequentially and independently; per-chunk failures are counted, not
// propagated, and the file-level outcome is aggregated from the counts.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aecintel/meropipe/blob"
	"github.com/aecintel/meropipe/extractor"
	"github.com/aecintel/meropipe/ner"
	"github.com/aecintel/meropipe/observability"
	"github.com/aecintel/meropipe/retry"
	"github.com/aecintel/meropipe/store"
	"github.com/aecintel/meropipe/textembed"
)

// Default input caps forwarded to the enrichment collaborators, in runes.
const (
	DefaultNERInputCap   = 5000
	DefaultEmbedInputCap = 8000
)

// DefaultReplayErrorCap bounds the error messages carried by a replay summary.
const DefaultReplayErrorCap = 10

// Config configures the pipeline.
type Config struct {
	// NERInputCap truncates chunk text sent to entity recognition.
	// Default: 5000 runes.
	NERInputCap int `json:"ner_input_cap" yaml:"ner_input_cap"`

	// EmbedInputCap truncates chunk text sent to embedding.
	// Default: 8000 runes.
	EmbedInputCap int `json:"embed_input_cap" yaml:"embed_input_cap"`

	// EnrichRetry bounds the retry loops around entity recognition and
	// embedding. Each sub-call has its own budget.
	EnrichRetry retry.Policy `json:"enrich_retry" yaml:"enrich_retry"`

	// PersistRetry bounds the retry loop around document upserts.
	PersistRetry retry.Policy `json:"persist_retry" yaml:"persist_retry"`

	// ReplayErrorCap bounds error messages in a replay summary. Default: 10.
	ReplayErrorCap int `json:"replay_error_cap" yaml:"replay_error_cap"`

	// Logger for pipeline progress and failures.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.NERInputCap <= 0 {
		c.NERInputCap = DefaultNERInputCap
	}
	if c.EmbedInputCap <= 0 {
		c.EmbedInputCap = DefaultEmbedInputCap
	}
	if c.ReplayErrorCap <= 0 {
		c.ReplayErrorCap = DefaultReplayErrorCap
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Service runs the pipeline. Collaborators are injected once at
// construction and reused across all files.
type Service struct {
	cfg        Config
	source     blob.Source
	extractor  *extractor.Extractor
	recognizer ner.Recognizer
	embedder   textembed.Embedder
	docs       store.DocumentStore
	events     *observability.EventLog
	logger     *slog.Logger
}

// New creates a pipeline Service. source, ext, recognizer, embedder and
// docs are required; events may be nil to disable outcome recording.
func New(cfg Config, source blob.Source, ext *extractor.Extractor,
	recognizer ner.Recognizer, embedder textembed.Embedder,
	docs store.DocumentStore, events *observability.EventLog) (*Service, error) {

	cfg.defaults()
	if source == nil {
		return nil, fmt.Errorf("ingest: source is required")
	}
	if ext == nil {
		return nil, fmt.Errorf("ingest: extractor is required")
	}
	if recognizer == nil {
		return nil, fmt.Errorf("ingest: recognizer is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("ingest: embedder is required")
	}
	if docs == nil {
		return nil, fmt.Errorf("ingest: document store is required")
	}
	return &Service{
		cfg:        cfg,
		source:     source,
		extractor:  ext,
		recognizer: recognizer,
		embedder:   embedder,
		docs:       docs,
		events:     events,
		logger:     cfg.Logger,
	}, nil
}

// FileResult is the aggregated outcome of processing one file.
type FileResult struct {
	Ref              string `json:"ref"`
	Category         string `json:"category"`
	TotalChunks      int    `json:"total_chunks"`
	SuccessfulChunks int    `json:"successful_chunks"`
	FailedChunks     int    `json:"failed_chunks"`
	Degraded         bool   `json:"degraded"`
}

// ProcessFile runs the full pipeline for one file reference. eventTime is
// the upstream arrival time stamped onto every persisted document; zero
// means now.
//
// Per-chunk failures are isolated and counted. The file fails only when
// fetch or extraction fails, or when every chunk fails. When more than half
// of the chunks fail the file is a degraded success: logged as a warning,
// returned without error.
func (s *Service) ProcessFile(ctx context.Context, ref string, eventTime time.Time) (*FileResult, error) {
	start := time.Now()
	if eventTime.IsZero() {
		eventTime = start
	}
	name := blob.Name(ref)
	category := blob.Category(ref)
	log := s.logger.With("ref", ref, "filename", name, "category", category)

	data, err := s.source.Fetch(ctx, ref)
	if err != nil {
		s.recordFailure(ref, category, start, err)
		return nil, fmt.Errorf("ingest: fetch %s: %w", ref, err)
	}

	extracted, err := s.extractor.Extract(ctx, data, name)
	if err != nil {
		s.recordFailure(ref, category, start, err)
		return nil, fmt.Errorf("ingest: extract %s: %w", ref, err)
	}

	chunks := extracted.TextChunks()
	result := &FileResult{Ref: ref, Category: category, TotalChunks: len(chunks)}
	if len(chunks) == 0 {
		log.Info("file produced no chunks", "kind", extracted.Kind)
		s.recordOutcome(result, start, nil)
		return result, nil
	}

	for i, chunk := range chunks {
		if err := s.processChunk(ctx, name, category, chunk, i, eventTime); err != nil {
			result.FailedChunks++
			if errors.Is(err, errBlankChunk) {
				log.Debug("blank chunk skipped", "chunk_index", i)
			} else {
				log.Error("chunk processing failed", "chunk_index", i, "error", err)
			}
			continue
		}
		result.SuccessfulChunks++
	}

	if result.FailedChunks == result.TotalChunks {
		err := fmt.Errorf("%w: %s (%d chunks)", ErrAllChunksFailed, ref, result.TotalChunks)
		s.recordOutcome(result, start, err)
		return result, err
	}
	if result.FailedChunks*2 > result.TotalChunks {
		result.Degraded = true
		log.Warn("file processed with degraded success",
			"total_chunks", result.TotalChunks, "failed_chunks", result.FailedChunks)
	} else {
		log.Info("file processed",
			"total_chunks", result.TotalChunks, "failed_chunks", result.FailedChunks,
			"duration_ms", time.Since(start).Milliseconds())
	}
	s.recordOutcome(result, start, nil)
	return result, nil
}

// processChunk enriches and persists a single chunk. Both enrichment
// sub-calls must succeed before anything is persisted.
func (s *Service) processChunk(ctx context.Context, name, category, chunk string, index int, eventTime time.Time) error {
	if strings.TrimSpace(chunk) == "" {
		return errBlankChunk
	}

	entities, err := s.recognizeEntities(ctx, chunk)
	if err != nil {
		return &ChunkError{Index: index, Stage: "ner", Err: err}
	}

	embedding, err := s.embedChunk(ctx, chunk)
	if err != nil {
		return &ChunkError{Index: index, Stage: "embed", Err: err}
	}

	doc := &store.Document{
		ID:                 store.DocumentID(name, index),
		Category:           category,
		SourceFilename:     name,
		ChunkText:          chunk,
		Embedding:          embedding,
		Entities:           entities,
		ChunkIndex:         index,
		ChunkLength:        len([]rune(chunk)),
		EventTimestamp:     eventTime,
		ProcessedTimestamp: time.Now(),
	}

	err = retry.Do(ctx, s.cfg.PersistRetry, store.Throttled, func(ctx context.Context) error {
		return s.docs.Upsert(ctx, doc)
	})
	if err != nil {
		return &ChunkError{Index: index, Stage: "persist", Err: err}
	}
	return nil
}

// recognizeEntities calls entity recognition with the input cap and retry
// policy. A disabled recognizer yields an empty entity list without any
// network call.
func (s *Service) recognizeEntities(ctx context.Context, chunk string) ([]store.Entity, error) {
	if !s.recognizer.Enabled() {
		return []store.Entity{}, nil
	}

	var found []ner.Entity
	err := retry.Do(ctx, s.cfg.EnrichRetry, nerThrottled, func(ctx context.Context) error {
		var err error
		found, err = s.recognizer.Entities(ctx, capRunes(chunk, s.cfg.NERInputCap))
		return err
	})
	if err != nil {
		return nil, err
	}

	entities := make([]store.Entity, 0, len(found))
	for _, e := range found {
		entities = append(entities, store.Entity{Text: e.Text, Label: e.Label})
	}
	return entities, nil
}

func (s *Service) embedChunk(ctx context.Context, chunk string) ([]float32, error) {
	var vec []float32
	err := retry.Do(ctx, s.cfg.EnrichRetry, embedThrottled, func(ctx context.Context) error {
		var err error
		vec, err = s.embedder.Embed(ctx, capRunes(chunk, s.cfg.EmbedInputCap))
		return err
	})
	return vec, err
}

func nerThrottled(err error) bool {
	var se *ner.StatusError
	return errors.As(err, &se) && se.Throttled()
}

func embedThrottled(err error) bool {
	var se *textembed.StatusError
	return errors.As(err, &se) && se.Throttled()
}

// capRunes truncates s to at most n runes.
func capRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func (s *Service) recordOutcome(r *FileResult, start time.Time, err error) {
	if s.events == nil {
		return
	}
	e := &observability.Event{
		Ref:        r.Ref,
		Category:   r.Category,
		Chunks:     r.TotalChunks,
		Failed:     r.FailedChunks,
		DurationMs: time.Since(start).Milliseconds(),
	}
	switch {
	case err != nil:
		e.Type = observability.EventFileFailed
		e.Error = err.Error()
	case r.Degraded:
		e.Type = observability.EventFileDegraded
	default:
		e.Type = observability.EventFileProcessed
	}
	s.events.Record(e)
}

func (s *Service) recordFailure(ref, category string, start time.Time, err error) {
	if s.events == nil {
		return
	}
	s.events.Record(&observability.Event{
		Type:       observability.EventFileFailed,
		Ref:        ref,
		Category:   category,
		DurationMs: time.Since(start).Milliseconds(),
		Error:      err.Error(),
	})
}

// ReplaySummary is the structured outcome of a batch replay. Partial
// failure does not fail the replay; callers inspect the counts.
type ReplaySummary struct {
	RunID     string   `json:"run_id"`
	Prefix    string   `json:"prefix"`
	Processed int      `json:"processed"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// Replay reprocesses every file under prefix, sequentially, and returns a
// summary carrying at most ReplayErrorCap error messages. Only a failure to
// list the source is an error; per-file failures are counted in the summary.
func (s *Service) Replay(ctx context.Context, prefix string) (*ReplaySummary, error) {
	refs, err := s.source.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("ingest: list %s: %w", prefix, err)
	}

	summary := &ReplaySummary{RunID: uuid.NewString(), Prefix: prefix}
	log := s.logger.With("run_id", summary.RunID, "prefix", prefix)
	log.Info("replay started", "files", len(refs))
	start := time.Now()

	for _, ref := range refs {
		if _, err := s.ProcessFile(ctx, ref, time.Time{}); err != nil {
			summary.Failed++
			if len(summary.Errors) < s.cfg.ReplayErrorCap {
				summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", ref, err))
			}
			continue
		}
		summary.Processed++
	}

	log.Info("replay finished",
		"processed", summary.Processed, "failed", summary.Failed,
		"duration_ms", time.Since(start).Milliseconds())
	if s.events != nil {
		s.events.RecordDetails(&observability.Event{
			Type:       observability.EventReplayFinished,
			Ref:        prefix,
			Chunks:     summary.Processed + summary.Failed,
			Failed:     summary.Failed,
			DurationMs: time.Since(start).Milliseconds(),
		}, summary)
	}
	return summary, nil
}
