package extractor

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/aecintel/meropipe/docintel"
)

// fakeLayout is a canned LayoutAnalyzer.
type fakeLayout struct {
	result *docintel.AnalyzeResult
	err    error
	calls  int
}

func (f *fakeLayout) Analyze(context.Context, []byte) (*docintel.AnalyzeResult, error) {
	f.calls++
	return f.result, f.err
}

func pdfConfig(layout LayoutAnalyzer) Config {
	return Config{
		DocIntel: docintel.Config{Endpoint: "https://di.example.com", Key: "k"},
		NewLayout: func(docintel.Config) (LayoutAnalyzer, error) {
			return layout, nil
		},
	}
}

func TestExtractPDF(t *testing.T) {
	layout := &fakeLayout{result: &docintel.AnalyzeResult{
		Paragraphs: []docintel.Paragraph{
			{Content: "Concrete demand is rising. "},
			{Content: "Steel prices fell 3%."},
		},
		Tables: []docintel.Table{{
			RowCount:    1,
			ColumnCount: 2,
			Cells: []docintel.Cell{
				{Content: "material\t", RowIndex: 0, ColumnIndex: 0},
				{Content: "price#", RowIndex: 0, ColumnIndex: 1},
			},
		}},
	}}

	e := New(pdfConfig(layout))
	res, err := e.Extract(context.Background(), buildTextPDF(t, "ignored"), "report.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if res.Kind != KindPDF {
		t.Fatalf("kind = %q", res.Kind)
	}
	if layout.calls != 1 {
		t.Errorf("layout called %d times", layout.calls)
	}
	if len(res.Chunks) != 1 {
		t.Fatalf("chunks = %v", res.Chunks)
	}
	if res.Chunks[0] != "Concrete demand is rising. Steel prices fell 3%." {
		t.Errorf("chunk = %q", res.Chunks[0])
	}
	if len(res.Tables) != 1 {
		t.Fatalf("tables = %v", res.Tables)
	}
	tbl := res.Tables[0]
	if tbl.RowCount != 1 || tbl.ColumnCount != 2 || len(tbl.Cells) != 2 {
		t.Errorf("table = %+v", tbl)
	}
	// Cell content passes through the cleaning filter.
	if tbl.Cells[0].Content != "material" || tbl.Cells[1].Content != "price" {
		t.Errorf("cells = %+v", tbl.Cells)
	}
	if tbl.Cells[1].ColumnIndex != 1 {
		t.Errorf("cell indices = %+v", tbl.Cells[1])
	}
}

func TestExtractPDFInvalidBytesFailBeforeAnalysis(t *testing.T) {
	layout := &fakeLayout{}
	e := New(pdfConfig(layout))
	_, err := e.Extract(context.Background(), []byte("not a pdf"), "broken.pdf")
	var xe *Error
	if !errors.As(err, &xe) || xe.Kind != KindPDF {
		t.Fatalf("expected pdf extraction Error, got %v", err)
	}
	if layout.calls != 0 {
		t.Error("layout analysis called for invalid pdf bytes")
	}
}

func TestExtractPDFLayoutFailurePropagates(t *testing.T) {
	layout := &fakeLayout{err: errors.New("service unavailable")}
	e := New(pdfConfig(layout))
	_, err := e.Extract(context.Background(), buildTextPDF(t, "x"), "doc.pdf")
	var xe *Error
	if !errors.As(err, &xe) {
		t.Fatalf("expected extraction Error, got %v", err)
	}
	if !strings.Contains(xe.Error(), "service unavailable") {
		t.Errorf("cause lost: %v", xe)
	}
}

// buildTextPDF creates a minimal valid PDF with correct xref offsets, just
// enough to pass local validation.
func buildTextPDF(t *testing.T, text string) []byte {
	t.Helper()
	stream := "BT\n/F1 12 Tf\n72 720 Td\n(" + text + ") Tj\nET"

	var b strings.Builder
	b.WriteString("%PDF-1.4\n")

	offsets := make([]int, 6)
	write := func(i int, s string) {
		offsets[i] = b.Len()
		b.WriteString(s)
	}

	write(1, "1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	write(2, "2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n")
	write(3, "3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>\nendobj\n")
	write(4, "4 0 obj\n<< /Length "+strconv.Itoa(len(stream))+" >>\nstream\n"+stream+"\nendstream\nendobj\n")
	write(5, "5 0 obj\n<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>\nendobj\n")

	xref := b.Len()
	b.WriteString("xref\n0 6\n0000000000 65535 f \n")
	for i := 1; i <= 5; i++ {
		s := strconv.Itoa(offsets[i])
		for len(s) < 10 {
			s = "0" + s
		}
		b.WriteString(s + " 00000 n \n")
	}
	b.WriteString("trailer\n<< /Size 6 /Root 1 0 R >>\nstartxref\n" + strconv.Itoa(xref) + "\n%%EOF\n")
	return []byte(b.String())
}
