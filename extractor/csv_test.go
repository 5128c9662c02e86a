package extractor

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestExtractCSV(t *testing.T) {
	data := []byte("name,value\nalpha,1\nbeta,2\n")
	e := New(Config{})
	res, err := e.Extract(context.Background(), data, "data.csv")
	if err != nil {
		t.Fatal(err)
	}
	if res.Kind != KindCSV {
		t.Fatalf("kind = %q", res.Kind)
	}
	if len(res.Records) != 2 {
		t.Fatalf("records = %v", res.Records)
	}
	if res.Records[0]["name"] != "alpha" || res.Records[1]["value"] != "2" {
		t.Errorf("records = %v", res.Records)
	}
	if !strings.Contains(res.Text, "alpha") {
		t.Errorf("text = %q", res.Text)
	}
}

func TestExtractCSVMissingCellsFilled(t *testing.T) {
	data := []byte("a,b,c\n1,2\n3\n")
	e := New(Config{})
	res, err := e.Extract(context.Background(), data, "ragged.csv")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Records) != 2 {
		t.Fatalf("records = %v", res.Records)
	}
	if res.Records[0]["c"] != "" || res.Records[1]["b"] != "" {
		t.Errorf("missing cells not filled with empty string: %v", res.Records)
	}
}

func TestExtractCSVFallbackParse(t *testing.T) {
	// A bare quote inside an unquoted field fails the strict primary
	// parse; the lenient fallback with the sniffed semicolon delimiter
	// recovers the rows.
	data := []byte("name;note\nalpha;say \"hi\" there\nbeta;fine\n")
	e := New(Config{})
	res, err := e.Extract(context.Background(), data, "semi.csv")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Records) != 2 {
		t.Fatalf("records = %v", res.Records)
	}
	if res.Records[1]["name"] != "beta" {
		t.Errorf("records = %v", res.Records)
	}
}

func TestDetectDelimiter(t *testing.T) {
	tests := []struct {
		line string
		want rune
	}{
		{"a;b;c\n1;2;3", ';'},
		{"a\tb\tc", '\t'},
		{"a,b,c", ','},
		{"a|b|c", '|'},
		{"", ','},
		{"single", ','},
	}
	for _, tt := range tests {
		if got := detectDelimiter(tt.line); got != tt.want {
			t.Errorf("detectDelimiter(%q) = %q, want %q", tt.line, got, tt.want)
		}
	}
}

func TestExtractCSVTabularCleaning(t *testing.T) {
	// The tabular allow-list keeps only . , - so currency and sentence
	// punctuation disappear from the rendered text.
	data := []byte("item,price\nsteel,\"€1.200,50!\"\n")
	e := New(Config{})
	res, err := e.Extract(context.Background(), data, "prices.csv")
	if err != nil {
		t.Fatal(err)
	}
	if strings.ContainsAny(res.Text, "€!") {
		t.Errorf("tabular cleaning left currency/punctuation: %q", res.Text)
	}
	// The parsed records keep the raw value.
	if res.Records[0]["price"] != "€1.200,50!" {
		t.Errorf("record value = %q", res.Records[0]["price"])
	}
}

func TestExtractCSVEmpty(t *testing.T) {
	e := New(Config{})
	res, err := e.Extract(context.Background(), []byte(""), "empty.csv")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Records) != 0 || len(res.TextChunks()) != 0 {
		t.Errorf("expected empty result, got %+v", res)
	}
}

func TestExtractJSON(t *testing.T) {
	data := []byte(`{"project": "harbour", "budget": 1200.5, "tags": ["aec", "infra"]}`)
	e := New(Config{})
	res, err := e.Extract(context.Background(), data, "feed.json")
	if err != nil {
		t.Fatal(err)
	}
	if res.Kind != KindJSON {
		t.Fatalf("kind = %q", res.Kind)
	}
	obj, ok := res.Data.(map[string]any)
	if !ok {
		t.Fatalf("data = %T", res.Data)
	}
	if obj["project"] != "harbour" {
		t.Errorf("data = %v", obj)
	}
	if !strings.Contains(res.Text, "harbour") || !strings.Contains(res.Text, "1200.5") {
		t.Errorf("text = %q", res.Text)
	}
	// Tabular cleaning strips JSON syntax characters.
	if strings.ContainsAny(res.Text, `{}[]":`) {
		t.Errorf("json syntax survived cleaning: %q", res.Text)
	}
}

func TestExtractJSONMalformed(t *testing.T) {
	e := New(Config{})
	_, err := e.Extract(context.Background(), []byte(`{"broken":`), "bad.json")
	var xe *Error
	if !errors.As(err, &xe) {
		t.Fatalf("expected extraction Error, got %v", err)
	}
	if xe.Kind != KindJSON {
		t.Errorf("error kind = %q", xe.Kind)
	}
}
