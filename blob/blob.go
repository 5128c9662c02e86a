// Package blob abstracts where input files come from. A Source fetches raw
// bytes by reference and lists references under a prefix; references use "/"
// as the path separator regardless of platform.
//
// The reference path also carries metadata: the last segment is the file
// name used for format detection and document IDs, and the third-from-last
// segment is the market category the file belongs to (mirroring the
// container/category/date/file layout of the upstream object store).
package blob

import (
	"context"
	"errors"
	"strings"
)

// ErrListUnsupported is returned by sources that can only fetch by
// reference, not enumerate.
var ErrListUnsupported = errors.New("blob: listing not supported by this source")

// ErrNotFound is returned when a reference does not resolve to a file.
var ErrNotFound = errors.New("blob: not found")

// Source provides input files to the pipeline.
type Source interface {
	// Fetch returns the raw bytes for a reference.
	Fetch(ctx context.Context, ref string) ([]byte, error)

	// List returns all references under a prefix. Sources without
	// enumeration return ErrListUnsupported.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Name returns the file name of a reference: its last path segment.
func Name(ref string) string {
	parts := strings.Split(ref, "/")
	return parts[len(parts)-1]
}

// Category returns the market category of a reference: its third-from-last
// path segment. References with fewer than three segments have no category
// and yield "".
func Category(ref string) string {
	parts := strings.Split(ref, "/")
	if len(parts) < 3 {
		return ""
	}
	return parts[len(parts)-3]
}
