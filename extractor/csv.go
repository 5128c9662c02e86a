package extractor

import (
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/aecintel/meropipe/textkit"
)

// extractCSV parses a CSV file into records and a cleaned text rendering.
// The primary parse uses the detected character encoding; if that fails, a
// single fallback re-reads the bytes as UTF-8 with an auto-detected
// delimiter. A second failure propagates.
func (e *Extractor) extractCSV(data []byte) (*Result, error) {
	rows, err := e.parseCSVDetected(data)
	if err != nil {
		e.logger.Warn("primary csv parse failed, retrying with utf-8 and delimiter detection", "error", err)
		var fallbackErr error
		rows, fallbackErr = parseCSVRows(string(data), detectDelimiter(string(data)), true)
		if fallbackErr != nil {
			return nil, extractionErr(KindCSV, fmt.Errorf("fallback parse: %w", fallbackErr))
		}
	}
	if len(rows) == 0 {
		return &Result{Kind: KindCSV, Records: []map[string]string{}}, nil
	}

	header := rows[0]
	records := make([]map[string]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := make(map[string]string, len(header))
		for i, col := range header {
			// Missing cells become empty strings.
			if i < len(row) {
				rec[col] = row[i]
			} else {
				rec[col] = ""
			}
		}
		records = append(records, rec)
	}

	text := textkit.Clean(renderRows(header, rows[1:]), textkit.ModeTabular)

	e.logger.Debug("csv extracted", "rows", len(records), "columns", len(header))
	return &Result{Kind: KindCSV, Text: text, Records: records}, nil
}

func (e *Extractor) parseCSVDetected(data []byte) ([][]string, error) {
	text, err := decodeBytes(data)
	if err != nil {
		return nil, err
	}
	return parseCSVRows(text, ',', false)
}

// parseCSVRows reads all rows. The primary parse is strict; the fallback
// parse sets lazy quoting to cope with malformed files.
func parseCSVRows(text string, delimiter rune, lazy bool) ([][]string, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = delimiter
	r.FieldsPerRecord = -1 // rows may be ragged; cells are padded later
	r.LazyQuotes = lazy
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// detectDelimiter picks the most frequent candidate delimiter in the first
// non-empty line.
func detectDelimiter(text string) rune {
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		best, bestCount := ',', 0
		for _, cand := range []rune{',', ';', '\t', '|'} {
			if n := strings.Count(line, string(cand)); n > bestCount {
				best, bestCount = cand, n
			}
		}
		return best
	}
	return ','
}

// renderRows flattens header and rows into a whitespace-separated text
// block for cleaning and chunking.
func renderRows(header []string, rows [][]string) string {
	var sb strings.Builder
	sb.WriteString(strings.Join(header, " "))
	for _, row := range rows {
		sb.WriteByte('\n')
		sb.WriteString(strings.Join(row, " "))
	}
	return sb.String()
}
