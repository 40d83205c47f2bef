package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/manualforge/ragcore/internal/models"
)

// extractXLSX emits one "[Sheet: name]" block per worksheet followed by its
// rows as pipe-delimited cell values, blanks preserved as empty strings.
func extractXLSX(data []byte) (string, models.Metadata, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", nil, fmt.Errorf("%w: not a valid xlsx container: %v", ErrExtractionFailed, err)
	}

	shared, err := loadSharedStrings(zr)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	sheets, err := listSheets(zr)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	if len(sheets) == 0 {
		return "", nil, fmt.Errorf("%w: workbook has no sheets", ErrExtractionFailed)
	}

	var b strings.Builder
	for _, sh := range sheets {
		f := findZipFile(zr, sh.target)
		if f == nil {
			continue
		}
		raw, err := readZipFile(f)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
		}
		rows, err := parseSheetRows(raw, shared)
		if err != nil {
			return "", nil, fmt.Errorf("%w: sheet %s: %v", ErrExtractionFailed, sh.name, err)
		}

		fmt.Fprintf(&b, "[Sheet: %s]\n", sh.name)
		for _, row := range rows {
			b.WriteString(strings.Join(row, " | "))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	return b.String(), models.Metadata{"sheets": len(sheets)}, nil
}

type sheetRef struct {
	name   string
	target string
}

// listSheets resolves workbook sheet names to worksheet part paths via the
// workbook relationships, falling back to sheetN.xml order when the rels
// part is unusable.
func listSheets(zr *zip.Reader) ([]sheetRef, error) {
	wb := findZipFile(zr, "xl/workbook.xml")
	if wb == nil {
		return nil, fmt.Errorf("xl/workbook.xml missing")
	}
	raw, err := readZipFile(wb)
	if err != nil {
		return nil, err
	}

	var workbook struct {
		Sheets struct {
			Sheet []struct {
				Name string `xml:"name,attr"`
				RID  string `xml:"http://schemas.openxmlformats.org/officeDocument/2006/relationships id,attr"`
			} `xml:"sheet"`
		} `xml:"sheets"`
	}
	if err := xml.Unmarshal(raw, &workbook); err != nil {
		return nil, fmt.Errorf("parse workbook.xml: %w", err)
	}

	targets := map[string]string{}
	if rels := findZipFile(zr, "xl/_rels/workbook.xml.rels"); rels != nil {
		if rraw, err := readZipFile(rels); err == nil {
			var relationships struct {
				Rel []struct {
					ID     string `xml:"Id,attr"`
					Target string `xml:"Target,attr"`
				} `xml:"Relationship"`
			}
			if xml.Unmarshal(rraw, &relationships) == nil {
				for _, r := range relationships.Rel {
					target := strings.TrimPrefix(r.Target, "/xl/")
					targets[r.ID] = path.Join("xl", target)
				}
			}
		}
	}

	var out []sheetRef
	for i, sh := range workbook.Sheets.Sheet {
		target := targets[sh.RID]
		if target == "" {
			target = fmt.Sprintf("xl/worksheets/sheet%d.xml", i+1)
		}
		out = append(out, sheetRef{name: sh.Name, target: target})
	}
	return out, nil
}

// loadSharedStrings reads xl/sharedStrings.xml; rich-text runs inside one
// entry are concatenated.
func loadSharedStrings(zr *zip.Reader) ([]string, error) {
	f := findZipFile(zr, "xl/sharedStrings.xml")
	if f == nil {
		return nil, nil
	}
	raw, err := readZipFile(f)
	if err != nil {
		return nil, err
	}

	dec := xml.NewDecoder(bytes.NewReader(raw))
	var (
		out []string
		cur strings.Builder
		in  bool
	)
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "si":
				in = true
				cur.Reset()
			case "t":
				if in {
					var v string
					if err := dec.DecodeElement(&v, &t); err != nil {
						return nil, err
					}
					cur.WriteString(v)
				}
			}
		case xml.EndElement:
			if t.Name.Local == "si" {
				out = append(out, cur.String())
				in = false
			}
		}
	}
	return out, nil
}

type cellXML struct {
	Ref       string `xml:"r,attr"`
	Type      string `xml:"t,attr"`
	Value     string `xml:"v"`
	InlineStr struct {
		T    string `xml:"t"`
		Runs []struct {
			T string `xml:"t"`
		} `xml:"r"`
	} `xml:"is"`
}

// parseSheetRows materializes each row with blanks filled in, so columns
// line up across rows of the pipe-delimited output.
func parseSheetRows(raw []byte, shared []string) ([][]string, error) {
	var sheet struct {
		SheetData struct {
			Rows []struct {
				Cells []cellXML `xml:"c"`
			} `xml:"row"`
		} `xml:"sheetData"`
	}
	if err := xml.Unmarshal(raw, &sheet); err != nil {
		return nil, err
	}

	var out [][]string
	for _, r := range sheet.SheetData.Rows {
		cells := map[int]string{}
		maxCol := -1
		for i, c := range r.Cells {
			col := i
			if c.Ref != "" {
				col = columnIndex(c.Ref)
			}
			if col > maxCol {
				maxCol = col
			}
			cells[col] = cellValue(c, shared)
		}
		if maxCol < 0 {
			continue
		}
		row := make([]string, maxCol+1)
		for col, v := range cells {
			row[col] = v
		}
		out = append(out, row)
	}
	return out, nil
}

func cellValue(c cellXML, shared []string) string {
	switch c.Type {
	case "s":
		idx, err := strconv.Atoi(strings.TrimSpace(c.Value))
		if err != nil || idx < 0 || idx >= len(shared) {
			return ""
		}
		return shared[idx]
	case "inlineStr":
		if c.InlineStr.T != "" {
			return c.InlineStr.T
		}
		var b strings.Builder
		for _, r := range c.InlineStr.Runs {
			b.WriteString(r.T)
		}
		return b.String()
	default:
		return strings.TrimSpace(c.Value)
	}
}

// columnIndex converts the letter part of a cell reference ("BC12") to a
// zero-based column number.
func columnIndex(ref string) int {
	n := 0
	for _, r := range ref {
		if r < 'A' || r > 'Z' {
			break
		}
		n = n*26 + int(r-'A') + 1
	}
	if n == 0 {
		return 0
	}
	return n - 1
}
