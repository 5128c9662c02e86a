package docintel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client submits documents for layout analysis and polls for the result.
type Client struct {
	endpoint string
	key      string
	model    string
	client   *http.Client
	cfg      Config
}

// New creates a Client from config. Endpoint and Key must both be set.
func New(cfg Config) (*Client, error) {
	cfg.defaults()
	if !cfg.Configured() {
		return nil, fmt.Errorf("docintel: endpoint and key are required")
	}
	return &Client{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		key:      cfg.Key,
		model:    cfg.Model,
		client:   &http.Client{Timeout: 30 * time.Second},
		cfg:      cfg,
	}, nil
}

// analyzeStatus is the poll response envelope.
type analyzeStatus struct {
	Status string `json:"status"` // notStarted | running | succeeded | failed
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	AnalyzeResult *AnalyzeResult `json:"analyzeResult"`
}

// Analyze submits data and waits synchronously for the completed layout
// analysis. The overall wait is bounded by Config.Timeout.
func (c *Client) Analyze(ctx context.Context, data []byte) (*AnalyzeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	opURL, err := c.submit(ctx, data)
	if err != nil {
		return nil, err
	}

	for {
		st, err := c.poll(ctx, opURL)
		if err != nil {
			return nil, err
		}
		switch st.Status {
		case "succeeded":
			if st.AnalyzeResult == nil {
				return nil, fmt.Errorf("docintel: succeeded without analyzeResult")
			}
			return st.AnalyzeResult, nil
		case "failed":
			if st.Error != nil {
				return nil, fmt.Errorf("docintel: analysis failed: %s: %s", st.Error.Code, st.Error.Message)
			}
			return nil, fmt.Errorf("docintel: analysis failed")
		}

		select {
		case <-time.After(c.cfg.PollInterval):
		case <-ctx.Done():
			return nil, fmt.Errorf("docintel: waiting for analysis: %w", ctx.Err())
		}
	}
}

// submit POSTs the document bytes and returns the operation URL to poll.
func (c *Client) submit(ctx context.Context, data []byte) (string, error) {
	url := fmt.Sprintf("%s/documentintelligence/documentModels/%s:analyze?api-version=2024-02-29-preview", c.endpoint, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Ocp-Apim-Subscription-Key", c.key)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP POST %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("docintel: HTTP %d from %s: %s", resp.StatusCode, url, string(body))
	}

	opURL := resp.Header.Get("Operation-Location")
	if opURL == "" {
		return "", fmt.Errorf("docintel: missing Operation-Location header")
	}
	return opURL, nil
}

func (c *Client) poll(ctx context.Context, opURL string) (*analyzeStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.key)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP GET %s: %w", opURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("docintel: HTTP %d polling %s: %s", resp.StatusCode, opURL, string(body))
	}

	var st analyzeStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, fmt.Errorf("decode poll response: %w", err)
	}
	return &st, nil
}
