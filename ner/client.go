package ner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type client struct {
	endpoint     string
	key          string
	modelVersion string
	language     string
	http         *http.Client
}

func newClient(cfg Config) *client {
	return &client{
		endpoint:     strings.TrimRight(cfg.Endpoint, "/"),
		key:          cfg.Key,
		modelVersion: cfg.ModelVersion,
		language:     cfg.Language,
		http:         &http.Client{Timeout: cfg.Timeout},
	}
}

// analyzeRequest is the wire shape of the analyze-text call.
type analyzeRequest struct {
	Kind       string `json:"kind"`
	Parameters struct {
		ModelVersion string `json:"modelVersion"`
	} `json:"parameters"`
	AnalysisInput struct {
		Documents []analyzeDocument `json:"documents"`
	} `json:"analysisInput"`
}

type analyzeDocument struct {
	ID       string `json:"id"`
	Language string `json:"language"`
	Text     string `json:"text"`
}

type analyzeResponse struct {
	Results struct {
		Documents []struct {
			Entities []struct {
				Text     string `json:"text"`
				Category string `json:"category"`
			} `json:"entities"`
		} `json:"documents"`
	} `json:"results"`
}

func (c *client) Enabled() bool { return true }

func (c *client) Entities(ctx context.Context, text string) ([]Entity, error) {
	var reqBody analyzeRequest
	reqBody.Kind = "EntityRecognition"
	reqBody.Parameters.ModelVersion = c.modelVersion
	reqBody.AnalysisInput.Documents = []analyzeDocument{
		{ID: "1", Language: c.language, Text: text},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := c.endpoint + "/language/:analyze-text?api-version=2023-04-01-preview"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Ocp-Apim-Subscription-Key", c.key)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP POST %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(respBody)}
	}

	var result analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(result.Results.Documents) == 0 {
		return nil, nil
	}

	doc := result.Results.Documents[0]
	entities := make([]Entity, 0, len(doc.Entities))
	for _, e := range doc.Entities {
		entities = append(entities, Entity{Text: e.Text, Label: e.Category})
	}
	return entities, nil
}
