// Package pdfextract pulls plain text out of PDF documents page by page.
package pdfextract

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ledongthuc/pdf"

	"legalrag/internal/model"
)

var ErrMalformedPDF = errors.New("malformed pdf")

// ExtractPages returns one entry per page in document order, page numbers starting at 1.
// Pages without a content stream yield empty text. The underlying parser panics on some
// corrupt inputs; those panics are reported as ErrMalformedPDF.
func ExtractPages(data []byte) (pages []model.PageText, err error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrMalformedPDF)
	}
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("%w: %v", ErrMalformedPDF, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPDF, err)
	}

	total := reader.NumPage()
	pages = make([]model.PageText, 0, total)
	for i := 1; i <= total; i++ {
		p := reader.Page(i)
		if p.V.IsNull() {
			pages = append(pages, model.PageText{Page: i})
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %v", ErrMalformedPDF, i, err)
		}
		pages = append(pages, model.PageText{Page: i, Text: text})
	}
	return pages, nil
}

// HasText reports whether any page carries non-whitespace text.
func HasText(pages []model.PageText) bool {
	for _, p := range pages {
		if len(bytes.TrimSpace([]byte(p.Text))) > 0 {
			return true
		}
	}
	return false
}
