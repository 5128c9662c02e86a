package extractor

import (
	"errors"
	"fmt"
)

// ErrUnsupportedFormat is returned for a file extension outside the
// supported set. Fatal, never retried.
var ErrUnsupportedFormat = errors.New("extractor: unsupported file type")

// ErrMissingCredentials is returned when PDF extraction is requested without
// document-understanding credentials. The check runs before any extraction
// attempt or client construction.
var ErrMissingCredentials = errors.New("extractor: document understanding endpoint and key required for pdf")

// Error wraps an underlying library or service failure during extraction.
// Extraction is input-dependent, not transient, so these are never retried.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extractor: %s extraction failed: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func extractionErr(kind Kind, err error) error {
	return &Error{Kind: kind, Err: err}
}
