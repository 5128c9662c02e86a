// Package textkit normalizes extracted document text: it strips characters
// outside a fixed allow-list, collapses whitespace runs, and splits the
// result into fixed-size chunks.
//
// Two cleaning modes exist. ModeDocument keeps the full punctuation set used
// for prose formats (pdf, docx, txt, image OCR). ModeTabular keeps only
// ". , -" and is applied to rendered CSV/JSON content, where currency signs
// and sentence punctuation are noise.
package textkit

import (
	"strings"
	"unicode"
)

// DefaultChunkSize is the fixed chunk window in runes.
const DefaultChunkSize = 10000

// Mode selects the punctuation allow-list.
type Mode int

const (
	// ModeDocument keeps . , - – — : ; ! ? ( ) ' " % € $ £
	ModeDocument Mode = iota
	// ModeTabular keeps only . , -
	ModeTabular
)

var documentPunct = map[rune]bool{
	'.': true, ',': true, '-': true, '–': true, '—': true,
	':': true, ';': true, '!': true, '?': true,
	'(': true, ')': true, '\'': true, '"': true,
	'%': true, '€': true, '$': true, '£': true,
}

var tabularPunct = map[rune]bool{
	'.': true, ',': true, '-': true,
}

// Clean filters text down to word characters, whitespace, and the mode's
// punctuation allow-list, then collapses whitespace runs to single spaces
// and trims the ends. Filtering runs before collapsing so that removing a
// character between two spaces never leaves a double space behind.
func Clean(text string, mode Mode) string {
	allowed := documentPunct
	if mode == ModeTabular {
		allowed = tabularPunct
	}

	var sb strings.Builder
	sb.Grow(len(text))
	for _, r := range text {
		if isWordRune(r) || unicode.IsSpace(r) || allowed[r] {
			sb.WriteRune(r)
		}
	}
	return normalizeWhitespace(sb.String())
}

// isWordRune reports whether r counts as a word character: Unicode letters,
// digits, and underscore.
func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}

func normalizeWhitespace(text string) string {
	var sb strings.Builder
	prevSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if !prevSpace && sb.Len() > 0 {
				sb.WriteByte(' ')
				prevSpace = true
			}
		} else {
			sb.WriteRune(r)
			prevSpace = false
		}
	}
	return strings.TrimSpace(sb.String())
}

// Chunks splits text into fixed-size windows of size runes. The final chunk
// may be shorter; no characters are dropped or duplicated at boundaries.
// size <= 0 defaults to DefaultChunkSize. Empty input yields no chunks.
func Chunks(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	out := make([]string, 0, (len(runes)+size-1)/size)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}
