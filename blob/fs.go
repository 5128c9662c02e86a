package blob

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FSSource reads files from a directory tree. References are
// slash-separated paths relative to the root.
type FSSource struct {
	root string
}

// NewFSSource creates a filesystem source rooted at dir.
func NewFSSource(dir string) *FSSource {
	return &FSSource{root: dir}
}

// Fetch reads the file at ref. Refs escaping the root are rejected.
func (s *FSSource) Fetch(_ context.Context, ref string) ([]byte, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("blob: read %s: %w", ref, err)
	}
	return data, nil
}

// List walks the tree under prefix and returns all regular files as
// slash-separated refs, sorted.
func (s *FSSource) List(_ context.Context, prefix string) ([]string, error) {
	start, err := s.resolve(prefix)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(start)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, prefix)
	}
	if err != nil {
		return nil, fmt.Errorf("blob: stat %s: %w", prefix, err)
	}
	if !info.IsDir() {
		return []string{strings.Trim(prefix, "/")}, nil
	}

	var refs []string
	err = filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		refs = append(refs, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("blob: walk %s: %w", prefix, err)
	}
	sort.Strings(refs)
	return refs, nil
}

func (s *FSSource) resolve(ref string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.Trim(ref, "/")))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("blob: ref escapes root: %q", ref)
	}
	return filepath.Join(s.root, clean), nil
}
