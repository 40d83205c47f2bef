package extract

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manualforge/ragcore/internal/models"
)

func writeTempFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func buildZip(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

const docxDocumentXML = `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>First paragraph of the procedure.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second paragraph with details.</w:t></w:r></w:p>
    <w:tbl>
      <w:tr>
        <w:tc><w:p><w:r><w:t>Part</w:t></w:r></w:p></w:tc>
        <w:tc><w:p><w:r><w:t>Qty</w:t></w:r></w:p></w:tc>
      </w:tr>
      <w:tr>
        <w:tc><w:p><w:r><w:t>Bolt</w:t></w:r></w:p></w:tc>
        <w:tc><w:p><w:r><w:t>4</w:t></w:r></w:p></w:tc>
      </w:tr>
    </w:tbl>
  </w:body>
</w:document>`

func TestExtractDOCX(t *testing.T) {
	data := buildZip(t, map[string]string{
		"word/document.xml": docxDocumentXML,
	})
	path := writeTempFile(t, "sample.docx", data)

	e := NewFileExtractor(nil)
	text, meta, err := e.Extract(path, models.FileTypeDOCX)
	require.NoError(t, err)

	assert.Contains(t, text, "First paragraph of the procedure.")
	assert.Contains(t, text, "Second paragraph with details.")
	assert.Contains(t, text, "[Table]")
	assert.Contains(t, text, "Part | Qty")
	assert.Contains(t, text, "Bolt | 4")

	assert.Equal(t, 2, meta["paragraphs"])
	assert.Equal(t, 1, meta["tables"])
}

func TestExtractDOCXMissingDocument(t *testing.T) {
	data := buildZip(t, map[string]string{
		"word/other.xml": "<x/>",
	})
	path := writeTempFile(t, "broken.docx", data)

	e := NewFileExtractor(nil)
	_, _, err := e.Extract(path, models.FileTypeDOCX)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtractionFailed)
}

func TestExtractDOCXNotAZip(t *testing.T) {
	path := writeTempFile(t, "junk.docx", []byte("this is not a zip archive"))

	e := NewFileExtractor(nil)
	_, _, err := e.Extract(path, models.FileTypeDOCX)
	assert.ErrorIs(t, err, ErrExtractionFailed)
}

const xlsxWorkbookXML = `<?xml version="1.0" encoding="UTF-8"?>
<workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"
          xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">
  <sheets>
    <sheet name="Inventory" sheetId="1" r:id="rId1"/>
  </sheets>
</workbook>`

const xlsxWorkbookRels = `<?xml version="1.0" encoding="UTF-8"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
  <Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/worksheet" Target="worksheets/sheet1.xml"/>
</Relationships>`

const xlsxSharedStrings = `<?xml version="1.0" encoding="UTF-8"?>
<sst xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" count="3" uniqueCount="3">
  <si><t>Item</t></si>
  <si><t>Count</t></si>
  <si><t>Bolt</t></si>
</sst>`

const xlsxSheet1 = `<?xml version="1.0" encoding="UTF-8"?>
<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">
  <sheetData>
    <row r="1">
      <c r="A1" t="s"><v>0</v></c>
      <c r="B1" t="s"><v>1</v></c>
    </row>
    <row r="2">
      <c r="A2" t="s"><v>2</v></c>
      <c r="B2"><v>4</v></c>
    </row>
  </sheetData>
</worksheet>`

func TestExtractXLSX(t *testing.T) {
	data := buildZip(t, map[string]string{
		"xl/workbook.xml":            xlsxWorkbookXML,
		"xl/_rels/workbook.xml.rels": xlsxWorkbookRels,
		"xl/sharedStrings.xml":       xlsxSharedStrings,
		"xl/worksheets/sheet1.xml":   xlsxSheet1,
	})
	path := writeTempFile(t, "sample.xlsx", data)

	e := NewFileExtractor(nil)
	text, meta, err := e.Extract(path, models.FileTypeXLSX)
	require.NoError(t, err)

	assert.Contains(t, text, "[Sheet: Inventory]")
	assert.Contains(t, text, "Item | Count")
	assert.Contains(t, text, "Bolt | 4")
	assert.Equal(t, 1, meta["sheets"])
}

func TestExtractXLSXNoSheets(t *testing.T) {
	data := buildZip(t, map[string]string{
		"xl/workbook.xml": `<workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"><sheets/></workbook>`,
	})
	path := writeTempFile(t, "empty.xlsx", data)

	e := NewFileExtractor(nil)
	_, _, err := e.Extract(path, models.FileTypeXLSX)
	assert.ErrorIs(t, err, ErrExtractionFailed)
}

func TestExtractCSVPassthrough(t *testing.T) {
	raw := "item,count\nbolt,4\nwasher,12\n"
	path := writeTempFile(t, "parts.csv", []byte(raw))

	e := NewFileExtractor(nil)
	text, meta, err := e.Extract(path, models.FileTypeCSV)
	require.NoError(t, err)
	assert.Equal(t, raw, text)
	assert.Equal(t, "csv", meta["format"])
}

func TestExtractUnsupportedFormat(t *testing.T) {
	path := writeTempFile(t, "notes.txt", []byte("plain text"))

	e := NewFileExtractor(nil)
	_, _, err := e.Extract(path, models.FileType("txt"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestExtractMissingFile(t *testing.T) {
	e := NewFileExtractor(nil)
	_, _, err := e.Extract(filepath.Join(t.TempDir(), "gone.pdf"), models.FileTypePDF)
	assert.ErrorIs(t, err, ErrExtractionFailed)
}

func TestColumnIndex(t *testing.T) {
	assert.Equal(t, 0, columnIndex("A1"))
	assert.Equal(t, 1, columnIndex("B12"))
	assert.Equal(t, 25, columnIndex("Z3"))
	assert.Equal(t, 26, columnIndex("AA1"))
}
