package extractor

// Kind identifies a source document format.
type Kind string

const (
	KindPDF   Kind = "pdf"
	KindDocx  Kind = "docx"
	KindImage Kind = "image"
	KindCSV   Kind = "csv"
	KindJSON  Kind = "json"
	KindText  Kind = "text"
)

// Cell is a table cell with zero-based indices, dense within the table's
// declared bounds.
type Cell struct {
	Content     string `json:"content"`
	RowIndex    int    `json:"row_index"`
	ColumnIndex int    `json:"column_index"`
}

// Table is a rectangular layout table.
type Table struct {
	RowCount    int    `json:"row_count"`
	ColumnCount int    `json:"column_count"`
	Cells       []Cell `json:"cells"`
}

// Result is the normalized output of one extraction. It is a tagged union
// keyed by Kind: exactly one of Chunks/Text is authoritative for downstream
// chunking, and the remaining fields are populated per format:
//
//	pdf   — Chunks, Tables
//	docx  — Chunks, Grids
//	text  — Chunks
//	image — Text, RawTables
//	csv   — Text, Records
//	json  — Text, Data
type Result struct {
	Kind Kind `json:"kind"`

	// Chunks is the pre-chunked cleaned text of document formats.
	Chunks []string `json:"chunks,omitempty"`

	// Text is the full cleaned text of flat formats.
	Text string `json:"text,omitempty"`

	// Tables are layout tables with indexed cells (pdf).
	Tables []Table `json:"tables,omitempty"`

	// Grids hold one row-major string grid per source table (docx).
	// Cell text is trimmed but deliberately not passed through the
	// cleaning filter — downstream consumers see the source verbatim.
	Grids [][][]string `json:"grids,omitempty"`

	// RawTables are best-effort table rows reconstructed from OCR word
	// boxes grouped by line number (image). Heuristic and possibly
	// malformed for multi-column layouts.
	RawTables [][]string `json:"raw_tables,omitempty"`

	// Records are CSV rows as column→value maps.
	Records []map[string]string `json:"records,omitempty"`

	// Data is the parsed JSON structure, preserved alongside the
	// pretty-printed Text rendering.
	Data any `json:"data,omitempty"`
}

// TextChunks collapses the Chunks/Text variants into one ordered chunk
// sequence: pre-chunked content wins, otherwise the flat text becomes a
// single chunk, otherwise the sequence is empty. An empty sequence is a
// valid outcome meaning "nothing to enrich", not an error.
func (r *Result) TextChunks() []string {
	if len(r.Chunks) > 0 {
		return r.Chunks
	}
	if r.Text != "" {
		return []string{r.Text}
	}
	return nil
}
