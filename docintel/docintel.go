// Package docintel is an HTTP client for the document-understanding
// (layout analysis) collaborator. A document is submitted as raw bytes; the
// service answers 202 with an Operation-Location, and the client polls that
// URL synchronously until the analysis succeeds or fails. The result exposes
// ordered paragraphs and tables with row/column-indexed cells.
package docintel

import (
	"log/slog"
	"time"
)

// Paragraph is one ordered block of layout text.
type Paragraph struct {
	Content string `json:"content"`
}

// Cell is a table cell with zero-based dense indices.
type Cell struct {
	Content     string `json:"content"`
	RowIndex    int    `json:"rowIndex"`
	ColumnIndex int    `json:"columnIndex"`
}

// Table is a rectangular table with declared bounds.
type Table struct {
	RowCount    int    `json:"rowCount"`
	ColumnCount int    `json:"columnCount"`
	Cells       []Cell `json:"cells"`
}

// AnalyzeResult is the completed layout analysis of one document.
type AnalyzeResult struct {
	Paragraphs []Paragraph `json:"paragraphs"`
	Tables     []Table     `json:"tables"`
}

// Config configures the layout analysis client.
type Config struct {
	// Endpoint is the base URL of the document-understanding service.
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// Key is the subscription key sent with every request.
	Key string `json:"key" yaml:"key"`

	// Model is the layout model identifier. Default: "prebuilt-layout".
	Model string `json:"model" yaml:"model"`

	// PollInterval between status checks. Default: 2s.
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval"`

	// Timeout bounds the whole analyze-and-poll operation. Default: 5m.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// Logger for debug/error messages.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.Model == "" {
		c.Model = "prebuilt-layout"
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Configured reports whether both endpoint and key are present. The router
// refuses to dispatch PDF extraction when either is missing.
func (c Config) Configured() bool {
	return c.Endpoint != "" && c.Key != ""
}
