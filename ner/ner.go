// Package ner is the entity-recognition collaborator client. It posts text
// to a managed text-analytics endpoint and maps the returned entities to
// {text, label} pairs; the label vocabulary is the service's own and opaque
// to this system.
//
// The collaborator is optional: with no endpoint or key configured, New
// returns a disabled Recognizer that yields no entities and no error, so
// enrichment degrades gracefully instead of failing. A configured but
// unreachable service still fails hard.
package ner

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Entity is one recognized named entity.
type Entity struct {
	Text  string `json:"text"`
	Label string `json:"label"`
}

// Recognizer extracts named entities from text.
type Recognizer interface {
	// Entities returns the entities found in text.
	Entities(ctx context.Context, text string) ([]Entity, error)

	// Enabled reports whether a real service backs this recognizer.
	Enabled() bool
}

// Config configures the recognition client.
type Config struct {
	// Endpoint is the base URL of the text-analytics service. Empty
	// disables entity recognition.
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// Key is the subscription key. Empty disables entity recognition.
	Key string `json:"key" yaml:"key"`

	// ModelVersion requested from the service. Default: "latest".
	ModelVersion string `json:"model_version" yaml:"model_version"`

	// Language of the analyzed documents. Default: "en".
	Language string `json:"language" yaml:"language"`

	// Timeout per HTTP request. Default: 30s.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// Logger for debug/error messages.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.ModelVersion == "" {
		c.ModelVersion = "latest"
	}
	if c.Language == "" {
		c.Language = "en"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// New creates a Recognizer from config. With no endpoint or key it returns
// a disabled recognizer.
func New(cfg Config) Recognizer {
	cfg.defaults()
	if cfg.Endpoint == "" || cfg.Key == "" {
		return disabled{}
	}
	return newClient(cfg)
}

type disabled struct{}

func (disabled) Entities(context.Context, string) ([]Entity, error) { return nil, nil }
func (disabled) Enabled() bool                                      { return false }

// StatusError is a non-success HTTP response from the service.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ner: HTTP %d: %s", e.Code, e.Body)
}

// Throttled reports whether the error is the service's rate-limit signal.
func (e *StatusError) Throttled() bool { return e.Code == 429 }
