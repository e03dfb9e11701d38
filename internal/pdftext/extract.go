package pdftext

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

var openReader = func(data []byte) (*pdf.Reader, error) {
	return pdf.NewReader(bytes.NewReader(data), int64(len(data)))
}

// Extract decodes a PDF into a plain-text transcript, one page per line group.
// Pages that fail to decode contribute an empty string.
func Extract(data []byte) (string, error) {
	pages, err := Pages(data)
	if err != nil {
		return "", err
	}
	return strings.Join(pages, "\n"), nil
}

// Pages returns the text of every page in document order.
func Pages(data []byte) (pages []string, err error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("pdf: empty document")
	}
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("pdf: malformed document: %v", r)
		}
	}()
	reader, err := openReader(data)
	if err != nil {
		return nil, fmt.Errorf("pdf: open: %w", err)
	}
	total := reader.NumPage()
	pages = make([]string, 0, total)
	for i := 1; i <= total; i++ {
		pages = append(pages, pageText(reader, i))
	}
	return pages, nil
}

func pageText(reader *pdf.Reader, index int) (text string) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
		}
	}()
	page := reader.Page(index)
	if page.V.IsNull() {
		return ""
	}
	content, err := page.GetPlainText(nil)
	if err != nil {
		return ""
	}
	return content
}
