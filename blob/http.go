package blob

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPSource fetches files over HTTP. A ref is either an absolute URL or a
// path joined onto the configured base URL. Object-store event payloads
// deliver absolute URLs, so enumeration is not supported.
type HTTPSource struct {
	base   string
	client *http.Client
}

// NewHTTPSource creates an HTTP source. base may be empty when every ref is
// an absolute URL.
func NewHTTPSource(base string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPSource{
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

// Fetch downloads the file at ref.
func (s *HTTPSource) Fetch(ctx context.Context, ref string) ([]byte, error) {
	url := ref
	if !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://") {
		if s.base == "" {
			return nil, fmt.Errorf("blob: relative ref %q without base url", ref)
		}
		url = s.base + "/" + strings.TrimLeft(ref, "/")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("blob: build request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("blob: fetch %s: %w", ref, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("blob: fetch %s: status %d: %s", ref, resp.StatusCode, string(body))
	}
	return io.ReadAll(resp.Body)
}

// List is not supported for HTTP sources.
func (s *HTTPSource) List(context.Context, string) ([]string, error) {
	return nil, ErrListUnsupported
}
