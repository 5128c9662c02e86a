package docintel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestAnalyzePollsToCompletion(t *testing.T) {
	polls := 0
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("POST /documentintelligence/documentModels/prebuilt-layout:analyze", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Ocp-Apim-Subscription-Key") != "k" {
			t.Error("missing subscription key on submit")
		}
		w.Header().Set("Operation-Location", srv.URL+"/op/1")
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("GET /op/1", func(w http.ResponseWriter, r *http.Request) {
		polls++
		if polls < 3 {
			json.NewEncoder(w).Encode(analyzeStatus{Status: "running"})
			return
		}
		json.NewEncoder(w).Encode(analyzeStatus{
			Status: "succeeded",
			AnalyzeResult: &AnalyzeResult{
				Paragraphs: []Paragraph{{Content: "first"}, {Content: "second"}},
				Tables: []Table{{
					RowCount:    1,
					ColumnCount: 2,
					Cells: []Cell{
						{Content: "a", RowIndex: 0, ColumnIndex: 0},
						{Content: "b", RowIndex: 0, ColumnIndex: 1},
					},
				}},
			},
		})
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	c, err := New(Config{Endpoint: srv.URL, Key: "k", PollInterval: time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	result, err := c.Analyze(context.Background(), []byte("%PDF-1.4"))
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Paragraphs) != 2 || result.Paragraphs[0].Content != "first" {
		t.Errorf("unexpected paragraphs: %+v", result.Paragraphs)
	}
	if len(result.Tables) != 1 || result.Tables[0].Cells[1].ColumnIndex != 1 {
		t.Errorf("unexpected tables: %+v", result.Tables)
	}
	if polls != 3 {
		t.Errorf("expected 3 polls, got %d", polls)
	}
}

func TestAnalyzeFailedStatus(t *testing.T) {
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("POST /documentintelligence/documentModels/prebuilt-layout:analyze", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Operation-Location", srv.URL+"/op/1")
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("GET /op/1", func(w http.ResponseWriter, r *http.Request) {
		resp := analyzeStatus{Status: "failed"}
		resp.Error = &struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}{Code: "InvalidContent", Message: "not a document"}
		json.NewEncoder(w).Encode(resp)
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	c, err := New(Config{Endpoint: srv.URL, Key: "k", PollInterval: time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.Analyze(context.Background(), []byte("junk"))
	if err == nil || !strings.Contains(err.Error(), "InvalidContent") {
		t.Fatalf("expected failure with service error code, got %v", err)
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	if _, err := New(Config{Endpoint: "http://x"}); err == nil {
		t.Error("expected error without key")
	}
	if _, err := New(Config{Key: "k"}); err == nil {
		t.Error("expected error without endpoint")
	}
}

func TestConfigured(t *testing.T) {
	if (Config{}).Configured() {
		t.Error("empty config reported configured")
	}
	if !(Config{Endpoint: "http://x", Key: "k"}).Configured() {
		t.Error("full config reported unconfigured")
	}
}
