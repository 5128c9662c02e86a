package extractor

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aecintel/meropipe/ocr"
	"github.com/aecintel/meropipe/textkit"
)

// extractImage runs OCR on the image and cleans the recognized text. It
// additionally attempts a best-effort table reconstruction by grouping OCR
// words by line number into rows; the heuristic has no notion of column
// alignment, so multi-column layouts may come out merged or ragged. An
// empty or failed reconstruction is logged and never fails the extraction.
func (e *Extractor) extractImage(ctx context.Context, data []byte) (*Result, error) {
	if e.cfg.OCR == nil {
		return nil, extractionErr(KindImage, fmt.Errorf("ocr engine not configured"))
	}

	recognized, err := e.cfg.OCR.Recognize(ctx, data)
	if err != nil {
		return nil, extractionErr(KindImage, err)
	}

	text := textkit.Clean(recognized.Text, textkit.ModeDocument)

	rows := groupWordsByLine(recognized.Words)
	if len(recognized.Words) > 0 && len(rows) == 0 {
		e.logger.Warn("image table reconstruction produced no rows",
			"words", len(recognized.Words))
	}

	e.logger.Debug("image extracted", "chars", len(text), "table_rows", len(rows))
	return &Result{Kind: KindImage, Text: text, RawTables: rows}, nil
}

// groupWordsByLine buckets OCR words by their line number and emits one row
// per line in ascending order, skipping blank tokens and empty lines.
func groupWordsByLine(words []ocr.Word) [][]string {
	byLine := make(map[int][]string)
	for _, w := range words {
		text := strings.TrimSpace(w.Text)
		if text == "" {
			continue
		}
		byLine[w.Line] = append(byLine[w.Line], text)
	}
	if len(byLine) == 0 {
		return nil
	}

	lines := make([]int, 0, len(byLine))
	for line := range byLine {
		lines = append(lines, line)
	}
	sort.Ints(lines)

	rows := make([][]string, 0, len(lines))
	for _, line := range lines {
		rows = append(rows, byLine[line])
	}
	return rows
}
