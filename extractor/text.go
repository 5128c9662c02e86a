package extractor

import "github.com/aecintel/meropipe/textkit"

// extractText decodes a plain text file, cleans it, and chunks it.
func (e *Extractor) extractText(data []byte) (*Result, error) {
	text, err := decodeBytes(data)
	if err != nil {
		return nil, extractionErr(KindText, err)
	}
	cleaned := textkit.Clean(text, textkit.ModeDocument)
	chunks := textkit.Chunks(cleaned, e.cfg.ChunkSize)

	e.logger.Debug("text extracted", "chars", len(cleaned), "chunks", len(chunks))
	return &Result{Kind: KindText, Chunks: chunks}, nil
}
