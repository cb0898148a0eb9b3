package ingestion

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

// Page is the text of one PDF page. Number is 1-based.
type Page struct {
	Number int
	Text   string
}

// IsPDFName reports whether filename carries a .pdf extension.
func IsPDFName(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), ".pdf")
}

// ExtractPDF returns the non-empty pages of a PDF along with the total page count.
// The parser panics on some malformed inputs; those surface as ErrUnsupportedFile.
func ExtractPDF(data []byte) (pages []Page, total int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			pages, err = nil, fmt.Errorf("%w: malformed PDF content: %v", ErrUnsupportedFile, rec)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrUnsupportedFile, err)
	}
	total = r.NumPage()
	pages, err = extractPages(total, func(i int) (string, bool, error) {
		p := r.Page(i)
		if p.V.IsNull() {
			return "", false, nil
		}
		text, err := p.GetPlainText(nil)
		return text, true, err
	})
	return pages, total, err
}

// extractPages collects the non-blank text of pages 1..total. pageText reports
// false for pages that have no content stream.
func extractPages(total int, pageText func(int) (string, bool, error)) (pages []Page, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			pages, err = nil, fmt.Errorf("%w: malformed PDF content: %v", ErrUnsupportedFile, rec)
		}
	}()

	for i := 1; i <= total; i++ {
		text, ok, err := pageText(i)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		if !ok {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		pages = append(pages, Page{Number: i, Text: text})
	}
	if len(pages) == 0 {
		return nil, ErrEmptyDocument
	}
	return pages, nil
}

// PDFDocuments converts extracted pages into documents tagged with their origin.
func PDFDocuments(filename string, pages []Page, totalPages int) []Document {
	docs := make([]Document, 0, len(pages))
	for _, p := range pages {
		docs = append(docs, Document{
			Text: p.Text,
			Metadata: map[string]interface{}{
				"source":      "pdf_upload",
				"filename":    filename,
				"page":        p.Number,
				"total_pages": totalPages,
			},
		})
	}
	return docs
}
