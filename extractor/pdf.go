package extractor

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/aecintel/meropipe/textkit"
)

// extractPDF submits the document to the layout analysis collaborator and
// waits synchronously for the result. All paragraph contents are
// concatenated, cleaned, and chunked; layout tables are converted verbatim
// into the Table shape with their cell indices. The bytes are validated
// locally with pdfcpu first so malformed files fail before any network call.
func (e *Extractor) extractPDF(ctx context.Context, layout LayoutAnalyzer, data []byte) (*Result, error) {
	pdfCtx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		return nil, extractionErr(KindPDF, fmt.Errorf("pdfcpu validate: %w", err))
	}
	e.logger.Debug("pdf validated", "pages", pdfCtx.PageCount)

	result, err := layout.Analyze(ctx, data)
	if err != nil {
		return nil, extractionErr(KindPDF, err)
	}

	var sb strings.Builder
	for _, p := range result.Paragraphs {
		sb.WriteString(p.Content)
	}
	cleaned := textkit.Clean(sb.String(), textkit.ModeDocument)
	chunks := textkit.Chunks(cleaned, e.cfg.ChunkSize)

	tables := make([]Table, 0, len(result.Tables))
	for _, t := range result.Tables {
		cells := make([]Cell, 0, len(t.Cells))
		for _, c := range t.Cells {
			cells = append(cells, Cell{
				Content:     textkit.Clean(c.Content, textkit.ModeDocument),
				RowIndex:    c.RowIndex,
				ColumnIndex: c.ColumnIndex,
			})
		}
		tables = append(tables, Table{
			RowCount:    t.RowCount,
			ColumnCount: t.ColumnCount,
			Cells:       cells,
		})
	}

	e.logger.Debug("pdf extracted",
		"chars", len(cleaned), "chunks", len(chunks), "tables", len(tables))
	return &Result{Kind: KindPDF, Chunks: chunks, Tables: tables}, nil
}
