package extractor

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/aecintel/meropipe/textkit"
)

// extractDocx reads word/document.xml from the DOCX archive, joins all
// non-empty body paragraphs with a single space, cleans and chunks the
// result, and converts tables row-by-row into raw string grids. Table cell
// text is only trimmed, not cleaned — the grid carries the source verbatim.
func (e *Extractor) extractDocx(data []byte) (*Result, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, extractionErr(KindDocx, fmt.Errorf("open zip: %w", err))
	}

	var docFile *zip.File
	for _, f := range r.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return nil, extractionErr(KindDocx, fmt.Errorf("word/document.xml not found in archive"))
	}

	rc, err := docFile.Open()
	if err != nil {
		return nil, extractionErr(KindDocx, fmt.Errorf("open document.xml: %w", err))
	}
	defer rc.Close()

	paragraphs, tables, err := parseDocxBody(xml.NewDecoder(rc))
	if err != nil {
		return nil, extractionErr(KindDocx, err)
	}

	cleaned := textkit.Clean(strings.Join(paragraphs, " "), textkit.ModeDocument)
	chunks := textkit.Chunks(cleaned, e.cfg.ChunkSize)

	e.logger.Debug("docx extracted",
		"paragraphs", len(paragraphs), "chunks", len(chunks), "tables", len(tables))
	return &Result{Kind: KindDocx, Chunks: chunks, Grids: tables}, nil
}

// parseDocxBody walks the WordprocessingML token stream. Body paragraphs
// accumulate into the paragraph list; paragraphs inside w:tbl/w:tr/w:tc
// accumulate into the current cell instead. Each table becomes one grid.
func parseDocxBody(decoder *xml.Decoder) ([]string, [][][]string, error) {
	var paragraphs []string
	var tables [][][]string

	var tableDepth int
	var currentGrid [][]string
	var currentRow []string
	var cellText strings.Builder
	var paraText strings.Builder
	var inParagraph, inCell, inRun bool

	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				tableDepth++
				if tableDepth == 1 {
					currentGrid = nil
				}
			case "tr":
				if tableDepth > 0 {
					currentRow = nil
				}
			case "tc":
				if tableDepth > 0 {
					inCell = true
					cellText.Reset()
				}
			case "p":
				inParagraph = true
				if !inCell {
					paraText.Reset()
				}
			case "t":
				inRun = inParagraph
			}

		case xml.CharData:
			if !inRun {
				continue
			}
			if inCell {
				cellText.Write(t)
			} else {
				paraText.Write(t)
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inRun = false
			case "p":
				inParagraph = false
				if !inCell {
					if text := strings.TrimSpace(paraText.String()); text != "" {
						paragraphs = append(paragraphs, text)
					}
				}
			case "tc":
				if inCell {
					currentRow = append(currentRow, strings.TrimSpace(cellText.String()))
					inCell = false
				}
			case "tr":
				if tableDepth > 0 && len(currentRow) > 0 {
					currentGrid = append(currentGrid, currentRow)
					currentRow = nil
				}
			case "tbl":
				if tableDepth > 0 {
					tableDepth--
					if tableDepth == 0 && len(currentGrid) > 0 {
						tables = append(tables, currentGrid)
						currentGrid = nil
					}
				}
			}
		}
	}

	return paragraphs, tables, nil
}
