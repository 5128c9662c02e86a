// Package ocr defines the OCR collaborator used for image extraction: given
// raw image bytes it returns the recognized text plus per-word boxes carrying
// line numbers, which the image extractor groups into best-effort table rows.
package ocr

import (
	"context"
	"log/slog"
	"time"
)

// Word is one recognized token with its line grouping.
type Word struct {
	Text   string  `json:"text"`
	Line   int     `json:"line"`
	Conf   float64 `json:"conf,omitempty"`
	Left   int     `json:"left,omitempty"`
	Top    int     `json:"top,omitempty"`
	Width  int     `json:"width,omitempty"`
	Height int     `json:"height,omitempty"`
}

// Result is the output of one recognition call.
type Result struct {
	Text  string `json:"text"`
	Words []Word `json:"words"`
}

// Engine recognizes text in an image.
type Engine interface {
	Recognize(ctx context.Context, image []byte) (*Result, error)
}

// Config configures the HTTP OCR client.
type Config struct {
	// Endpoint is the base URL of the OCR service.
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// Key is an optional API key sent as a bearer token.
	Key string `json:"key" yaml:"key"`

	// Language hint passed to the service. Default: "eng".
	Language string `json:"language" yaml:"language"`

	// Timeout per HTTP request. Default: 60s.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// Logger for debug/error messages.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.Language == "" {
		c.Language = "eng"
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
