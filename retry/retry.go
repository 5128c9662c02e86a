// Package retry implements the bounded linear-backoff policy shared by the
// enrichment and persistence stages: transient failures (throttling) are
// retried with a delay that grows linearly per attempt, everything else
// aborts immediately.
package retry

import (
	"context"
	"fmt"
	"time"
)

// DefaultMaxAttempts is the attempt budget when none is configured.
const DefaultMaxAttempts = 3

// DefaultBaseDelay is the base backoff delay when none is configured.
const DefaultBaseDelay = 2 * time.Second

// Policy bounds the retry loop.
type Policy struct {
	// MaxAttempts is the total number of attempts (not retries after the
	// first). Default: 3.
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`

	// BaseDelay is multiplied by the attempt number between attempts,
	// so waits grow linearly: base, 2*base, 3*base... Default: 2s.
	BaseDelay time.Duration `json:"base_delay" yaml:"base_delay"`
}

func (p *Policy) defaults() {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
}

// Transient reports whether an error is worth retrying.
type Transient func(error) bool

// ErrExhausted wraps the last transient error once the attempt budget runs out.
type ErrExhausted struct {
	Attempts int
	Last     error
}

func (e *ErrExhausted) Error() string {
	return fmt.Sprintf("retry: %d attempts exhausted: %v", e.Attempts, e.Last)
}

func (e *ErrExhausted) Unwrap() error { return e.Last }

// Do runs fn until it succeeds, returns a non-transient error, or the
// attempt budget is exhausted. Between transient failures it sleeps
// BaseDelay * attempt (1-based), honoring context cancellation.
func Do(ctx context.Context, p Policy, transient Transient, fn func(ctx context.Context) error) error {
	p.defaults()

	var last error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if transient == nil || !transient(err) {
			return err
		}
		last = err

		if attempt == p.MaxAttempts {
			break
		}
		select {
		case <-time.After(p.BaseDelay * time.Duration(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return &ErrExhausted{Attempts: p.MaxAttempts, Last: last}
}
