package extractor

import (
	"encoding/json"
	"unicode/utf8"

	"github.com/aecintel/meropipe/textkit"
)

// extractJSON parses a JSON file into its generic structure plus a cleaned
// pretty-printed text rendering. Encoding detection runs only when the
// bytes are not valid UTF-8.
func (e *Extractor) extractJSON(data []byte) (*Result, error) {
	text := string(data)
	if !utf8.Valid(data) {
		decoded, err := decodeBytes(data)
		if err != nil {
			return nil, extractionErr(KindJSON, err)
		}
		text = decoded
	}

	var parsed any
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, extractionErr(KindJSON, err)
	}

	pretty, err := json.MarshalIndent(parsed, "", "  ")
	if err != nil {
		return nil, extractionErr(KindJSON, err)
	}
	cleaned := textkit.Clean(string(pretty), textkit.ModeTabular)

	e.logger.Debug("json extracted", "chars", len(cleaned))
	return &Result{Kind: KindJSON, Text: cleaned, Data: parsed}, nil
}
