// Package pdfx extracts per-page plain text from downloaded PDFs. Page
// numbers are preserved so retrieval results can cite their provenance.
package pdfx

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"paperdesk/internal/index"
	"paperdesk/internal/logging"
)

// ExtractPages returns the text of every non-empty page, 1-based. Pages
// whose text cannot be decoded are skipped; the error case is a file with
// no extractable text at all.
func ExtractPages(path string) ([]index.PageText, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer f.Close()

	var pages []index.PageText
	total := reader.NumPage()
	for num := 1; num <= total; num++ {
		page := reader.Page(num)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			logging.Index("page %d of %s not extractable: %v", num, path, err)
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		pages = append(pages, index.PageText{Page: num, Text: text})
	}

	if len(pages) == 0 {
		return nil, fmt.Errorf("no extractable text in %s", path)
	}
	logging.Index("extracted %d/%d pages from %s", len(pages), total, path)
	return pages, nil
}
