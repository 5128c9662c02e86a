// Package textembed converts chunk text to float32 vectors via an
// OpenAI-compatible embeddings endpoint. The vector is stored on each
// enriched document and consumed downstream by the search index.
package textembed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Embedder converts text to a fixed-length vector.
type Embedder interface {
	// Embed returns the embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Model returns the model identifier sent with each request.
	Model() string
}

// Config configures the embedding client.
type Config struct {
	// Endpoint is the base URL of the embedding server.
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// Key is an optional API key sent as a bearer token.
	Key string `json:"key" yaml:"key"`

	// Model is the model name sent in the request.
	// Default: "text-embedding-ada-002".
	Model string `json:"model" yaml:"model"`

	// Timeout per HTTP request. Default: 30s.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// Logger for debug/error messages.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.Model == "" {
		c.Model = "text-embedding-ada-002"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// New creates an Embedder from config. Endpoint must be set: unlike entity
// recognition, embedding is not optional — every persisted chunk carries a
// vector.
func New(cfg Config) (Embedder, error) {
	cfg.defaults()
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("textembed: endpoint is required")
	}
	return newOpenAIClient(cfg), nil
}

// StatusError is a non-success HTTP response from the embedding server.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("textembed: HTTP %d: %s", e.Code, e.Body)
}

// Throttled reports whether the error is a rate-limit signal: HTTP 429 or
// a "rate limit" message in the response body.
func (e *StatusError) Throttled() bool {
	return e.Code == 429 || strings.Contains(strings.ToLower(e.Body), "rate limit")
}
