// Package observability records pipeline outcome events (file processed,
// degraded, failed, replay runs) into a SQLite events table for later
// inspection. Writes are buffered and asynchronous: a full buffer drops the
// event with a warning, so event logging can never block or fail the
// pipeline it observes.
package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Event types recorded by the pipeline.
const (
	EventFileProcessed  = "file_processed"
	EventFileDegraded   = "file_degraded"
	EventFileFailed     = "file_failed"
	EventReplayFinished = "replay_finished"
)

// Event is one pipeline outcome record.
type Event struct {
	ID         string
	Type       string
	Ref        string // file reference or replay prefix
	Category   string
	Chunks     int
	Failed     int
	DurationMs int64
	Error      string
	Details    string // free-form JSON
	Timestamp  time.Time
}

// EventLog writes events to SQLite through a buffered background writer.
type EventLog struct {
	db     *sql.DB
	logger *slog.Logger
	ch     chan *Event
	stop   chan struct{}
	done   chan struct{}
}

// NewEventLog creates an event log writing to db and starts its background
// writer. Recommended bufferSize: 256.
func NewEventLog(db *sql.DB, bufferSize int, logger *slog.Logger) (*EventLog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if err := migrate(db); err != nil {
		return nil, err
	}
	l := &EventLog{
		db:     db,
		logger: logger,
		ch:     make(chan *Event, bufferSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go l.flushLoop()
	return l, nil
}

// Record queues an event. A full buffer drops the event with a warning
// instead of blocking the caller.
func (l *EventLog) Record(e *Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	select {
	case l.ch <- e:
	default:
		l.logger.Warn("event buffer full, dropping event", "type", e.Type, "ref", e.Ref)
	}
}

// RecordDetails marshals details to JSON and attaches it to the event
// before queuing. Marshal failures leave Details empty.
func (l *EventLog) RecordDetails(e *Event, details any) {
	if details != nil {
		if b, err := json.Marshal(details); err == nil {
			e.Details = string(b)
		}
	}
	l.Record(e)
}

// Recent returns the latest events of a type, newest first. Empty eventType
// matches all types.
func (l *EventLog) Recent(ctx context.Context, eventType string, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT id, type, ref, category, chunks, failed, duration_ms, error, details, timestamp
		FROM pipeline_events`
	var args []any
	if eventType != "" {
		q += " WHERE type = ?"
		args = append(args, eventType)
	}
	q += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var e Event
		var ts int64
		var errMsg, details sql.NullString
		if err := rows.Scan(&e.ID, &e.Type, &e.Ref, &e.Category,
			&e.Chunks, &e.Failed, &e.DurationMs, &errMsg, &details, &ts); err != nil {
			return nil, err
		}
		e.Timestamp = time.Unix(ts, 0)
		e.Error = errMsg.String
		e.Details = details.String
		events = append(events, &e)
	}
	return events, rows.Err()
}

// Close drains the buffer and stops the background writer.
func (l *EventLog) Close() error {
	close(l.stop)
	<-l.done
	return nil
}

func (l *EventLog) flushLoop() {
	defer close(l.done)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	batch := make([]*Event, 0, 64)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		tx, err := l.db.BeginTx(ctx, nil)
		if err != nil {
			l.logger.Error("event log: begin tx", "error", err)
			batch = batch[:0]
			return
		}
		for _, e := range batch {
			if _, err := tx.ExecContext(ctx, `INSERT INTO pipeline_events
				(id, type, ref, category, chunks, failed, duration_ms, error, details, timestamp)
				VALUES (?,?,?,?,?,?,?,?,?,?)`,
				e.ID, e.Type, e.Ref, e.Category,
				e.Chunks, e.Failed, e.DurationMs, e.Error, e.Details, e.Timestamp.Unix(),
			); err != nil {
				l.logger.Error("event log: insert", "error", err, "event_id", e.ID)
			}
		}
		if err := tx.Commit(); err != nil {
			l.logger.Error("event log: commit", "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-l.stop:
			for {
				select {
				case e := <-l.ch:
					batch = append(batch, e)
				default:
					flush()
					return
				}
			}
		case e := <-l.ch:
			batch = append(batch, e)
			if len(batch) >= 64 {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS pipeline_events (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    ref TEXT NOT NULL,
    category TEXT,
    chunks INTEGER NOT NULL DEFAULT 0,
    failed INTEGER NOT NULL DEFAULT 0,
    duration_ms INTEGER,
    error TEXT,
    details TEXT,
    timestamp INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pipeline_events_type
    ON pipeline_events(type, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_pipeline_events_time
    ON pipeline_events(timestamp DESC);
`)
	return err
}
