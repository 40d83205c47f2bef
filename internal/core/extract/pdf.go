package extract

import (
	"bytes"
	"fmt"
	"strings"

	"code.sajari.com/docconv"
	"github.com/ledongthuc/pdf"

	"github.com/manualforge/ragcore/internal/models"
)

// extractPDF tries the layout-aware converter first and falls back to the
// pure-Go stream reader. Both paths emit per-page text behind a page marker.
func (e *FileExtractor) extractPDF(data []byte) (string, models.Metadata, error) {
	text, pages, err := pdfViaDocconv(data)
	if err == nil {
		return text, models.Metadata{
			"pages":             pages,
			"extraction_method": "docconv",
		}, nil
	}
	e.log.Warn("docconv pdf extraction failed, using fallback reader", "error", err)

	text, pages, ferr := pdfViaFallback(data)
	if ferr != nil {
		return "", nil, fmt.Errorf("%w: docconv: %v; fallback: %v", ErrExtractionFailed, err, ferr)
	}
	return text, models.Metadata{
		"pages":             pages,
		"extraction_method": "pdf_fallback",
	}, nil
}

func pdfViaDocconv(data []byte) (string, int, error) {
	res, err := docconv.Convert(bytes.NewReader(data), "application/pdf", false)
	if err != nil {
		return "", 0, err
	}
	if strings.TrimSpace(res.Body) == "" {
		return "", 0, fmt.Errorf("empty body")
	}

	// pdftotext separates pages with form feeds; a body without them is
	// treated as a single page.
	pages := strings.Split(res.Body, "\f")
	var b strings.Builder
	n := 0
	for _, page := range pages {
		page = strings.TrimSpace(page)
		if page == "" {
			continue
		}
		n++
		fmt.Fprintf(&b, "[Page %d]\n%s\n\n", n, page)
	}
	if n == 0 {
		return "", 0, fmt.Errorf("no non-empty pages")
	}
	return b.String(), n, nil
}

func pdfViaFallback(data []byte) (string, int, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, fmt.Errorf("pdf reader: %w", err)
	}

	var b strings.Builder
	total := r.NumPage()
	extracted := 0
	for i := 1; i <= total; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		content = strings.TrimSpace(content)
		if content == "" {
			continue
		}
		extracted++
		fmt.Fprintf(&b, "[Page %d]\n%s\n\n", i, content)
	}
	if extracted == 0 {
		return "", 0, fmt.Errorf("no extractable pages out of %d", total)
	}
	return b.String(), total, nil
}
