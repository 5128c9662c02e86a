// Package extractor converts raw file bytes into a normalized Result based
// on the file's extension: pdf, docx, jpg/jpeg/png/bmp/svg, csv, json, txt.
//
// Each format extractor is stateless: decode (with character-encoding
// detection where no encoding is declared), extract raw text, clean it
// (whitespace normalization plus a punctuation allow-list), and chunk it
// into fixed-size windows. PDF extraction delegates layout analysis to the
// document-understanding collaborator and requires its credentials up
// front; image extraction delegates to the OCR collaborator.
package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aecintel/meropipe/docintel"
	"github.com/aecintel/meropipe/ocr"
	"github.com/aecintel/meropipe/textkit"
)

// LayoutAnalyzer is the document-understanding collaborator for PDF layout
// extraction.
type LayoutAnalyzer interface {
	Analyze(ctx context.Context, data []byte) (*docintel.AnalyzeResult, error)
}

// Config configures the extraction router.
type Config struct {
	// ChunkSize is the fixed chunk window in runes. Default: 10000.
	ChunkSize int `json:"chunk_size" yaml:"chunk_size"`

	// DocIntel holds the document-understanding credentials. PDF
	// extraction fails fast with ErrMissingCredentials when endpoint or
	// key is missing.
	DocIntel docintel.Config `json:"docintel" yaml:"docintel"`

	// OCR recognizes text in images. Image extraction fails without it.
	OCR ocr.Engine `json:"-" yaml:"-"`

	// NewLayout builds the layout client once credentials are verified.
	// Defaults to docintel.New; tests substitute a fake.
	NewLayout func(docintel.Config) (LayoutAnalyzer, error) `json:"-" yaml:"-"`

	// Logger for debug/error messages.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.ChunkSize <= 0 {
		c.ChunkSize = textkit.DefaultChunkSize
	}
	if c.NewLayout == nil {
		c.NewLayout = func(cfg docintel.Config) (LayoutAnalyzer, error) {
			return docintel.New(cfg)
		}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Extractor routes files to the correct format extractor.
type Extractor struct {
	cfg    Config
	logger *slog.Logger
}

// New creates an Extractor with the given configuration.
func New(cfg Config) *Extractor {
	cfg.defaults()
	return &Extractor{cfg: cfg, logger: cfg.Logger}
}

// Detect returns the format Kind for a filename, or ErrUnsupportedFormat.
// The format is the lower-cased last dot-segment of the name.
func (e *Extractor) Detect(filename string) (Kind, error) {
	parts := strings.Split(strings.ToLower(filename), ".")
	ext := parts[len(parts)-1]
	switch ext {
	case "pdf":
		return KindPDF, nil
	case "docx":
		return KindDocx, nil
	case "jpg", "jpeg", "png", "bmp", "svg":
		return KindImage, nil
	case "csv":
		return KindCSV, nil
	case "json":
		return KindJSON, nil
	case "txt":
		return KindText, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// Extract dispatches data to the extractor matching the filename's
// extension. Per-format failures propagate unchanged; the router adds no
// retry logic.
func (e *Extractor) Extract(ctx context.Context, data []byte, filename string) (*Result, error) {
	kind, err := e.Detect(filename)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("extracting file", "filename", filename, "kind", kind)

	switch kind {
	case KindPDF:
		if !e.cfg.DocIntel.Configured() {
			return nil, ErrMissingCredentials
		}
		layout, err := e.cfg.NewLayout(e.cfg.DocIntel)
		if err != nil {
			return nil, extractionErr(KindPDF, err)
		}
		return e.extractPDF(ctx, layout, data)
	case KindDocx:
		return e.extractDocx(data)
	case KindImage:
		return e.extractImage(ctx, data)
	case KindCSV:
		return e.extractCSV(data)
	case KindJSON:
		return e.extractJSON(data)
	default:
		return e.extractText(data)
	}
}

// SupportedExtensions returns the extensions the router dispatches.
func SupportedExtensions() []string {
	return []string{"pdf", "docx", "jpg", "jpeg", "png", "bmp", "svg", "csv", "json", "txt"}
}
