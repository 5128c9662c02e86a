package extractor

import (
	"fmt"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"
)

// decodeBytes converts raw file bytes to a string. Valid UTF-8 passes
// through; otherwise the character encoding is detected from the content
// and the bytes are transcoded.
func decodeBytes(data []byte) (string, error) {
	if utf8.Valid(data) {
		return string(data), nil
	}
	enc, name, _ := charset.DetermineEncoding(data, "")
	decoded, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return "", fmt.Errorf("decode as %s: %w", name, err)
	}
	return string(decoded), nil
}
