package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/manualforge/ragcore/internal/models"
)

// extractDOCX walks word/document.xml, collecting paragraph text and, for
// each table, its rows as pipe-delimited lines behind a [Table] marker.
func extractDOCX(data []byte) (string, models.Metadata, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", nil, fmt.Errorf("%w: not a valid docx container: %v", ErrExtractionFailed, err)
	}
	doc := findZipFile(zr, "word/document.xml")
	if doc == nil {
		return "", nil, fmt.Errorf("%w: word/document.xml missing", ErrExtractionFailed)
	}
	raw, err := readZipFile(doc)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	paragraphs, tables, err := walkDocumentXML(raw)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	var b strings.Builder
	for _, p := range paragraphs {
		b.WriteString(p)
		b.WriteString("\n\n")
	}
	for _, table := range tables {
		b.WriteString("[Table]\n")
		for _, row := range table {
			b.WriteString(strings.Join(row, " | "))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	meta := models.Metadata{
		"paragraphs": len(paragraphs),
		"tables":     len(tables),
	}
	return b.String(), meta, nil
}

// walkDocumentXML separates body paragraphs from table content. Text inside
// a table cell never double-counts as a body paragraph.
func walkDocumentXML(raw []byte) (paragraphs []string, tables [][][]string, err error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))

	var (
		tableDepth int
		para       strings.Builder
		cell       strings.Builder
		row        []string
		table      [][]string
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				tableDepth++
				if tableDepth == 1 {
					table = nil
				}
			case "tr":
				if tableDepth == 1 {
					row = nil
				}
			case "tc":
				if tableDepth == 1 {
					cell.Reset()
				}
			case "p":
				if tableDepth == 0 {
					para.Reset()
				}
			case "t":
				var v string
				if err := dec.DecodeElement(&v, &t); err != nil {
					return nil, nil, err
				}
				if tableDepth > 0 {
					cell.WriteString(v)
				} else {
					para.WriteString(v)
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				if tableDepth == 0 {
					if text := strings.TrimSpace(para.String()); text != "" {
						paragraphs = append(paragraphs, text)
					}
					para.Reset()
				}
			case "tc":
				if tableDepth == 1 {
					row = append(row, strings.TrimSpace(cell.String()))
				}
			case "tr":
				if tableDepth == 1 && len(row) > 0 {
					table = append(table, row)
				}
			case "tbl":
				if tableDepth == 1 && len(table) > 0 {
					tables = append(tables, table)
				}
				tableDepth--
			}
		}
	}
	return paragraphs, tables, nil
}

func findZipFile(zr *zip.Reader, name string) *zip.File {
	for _, f := range zr.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
