package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RESTConfig configures the remote document-store client.
type RESTConfig struct {
	// Endpoint is the base URL of the document store.
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// Key is an optional API key sent as a bearer token.
	Key string `json:"key" yaml:"key"`

	// Timeout per HTTP request. Default: 30s.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// Logger for debug/error messages.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *RESTConfig) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// REST is a DocumentStore backed by a remote HTTP document store with
// upsert-by-ID semantics (PUT /documents/{id}).
type REST struct {
	endpoint string
	key      string
	client   *http.Client
}

// NewREST creates a REST store client. Endpoint must be set.
func NewREST(cfg RESTConfig) (*REST, error) {
	cfg.defaults()
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("store: endpoint is required")
	}
	return &REST{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		key:      cfg.Key,
		client:   &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Upsert inserts or overwrites the document under its ID.
func (r *REST) Upsert(ctx context.Context, doc *Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	u := r.endpoint + "/documents/" + url.PathEscape(doc.ID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.key != "" {
		req.Header.Set("Authorization", "Bearer "+r.key)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP PUT %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: string(respBody)}
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}
