package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// client calls an OCR service over HTTP: POST /recognize with the image
// bytes, JSON response {text, words:[{text, line, ...}]}.
type client struct {
	endpoint string
	key      string
	language string
	http     *http.Client
}

// New creates an Engine backed by the configured HTTP OCR service.
func New(cfg Config) (Engine, error) {
	cfg.defaults()
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("ocr: endpoint is required")
	}
	return &client{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		key:      cfg.Key,
		language: cfg.Language,
		http:     &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (c *client) Recognize(ctx context.Context, image []byte) (*Result, error) {
	url := fmt.Sprintf("%s/recognize?lang=%s", c.endpoint, c.language)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(image))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if c.key != "" {
		req.Header.Set("Authorization", "Bearer "+c.key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP POST %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ocr: HTTP %d from %s: %s", resp.StatusCode, url, string(body))
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}
