package extraction

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// pageTexts reads the embedded text layer of each page. Pages without a text
// layer come back empty; a document that cannot be parsed at all returns an
// error.
func pageTexts(data []byte) ([]string, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty document")
	}
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	numPages := reader.NumPage()
	if numPages <= 0 {
		return nil, fmt.Errorf("document has no pages")
	}

	texts := make([]string, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		texts[i-1] = flattenPageText(page)
	}
	return texts, nil
}

func flattenPageText(page pdf.Page) (text string) {
	defer func() {
		// malformed content streams panic inside the parser; treat as no text layer
		if r := recover(); r != nil {
			text = ""
		}
	}()
	content := page.Content()
	var b strings.Builder
	lastY := -1.0
	for _, t := range content.Text {
		if lastY >= 0 && t.Y != lastY {
			b.WriteString("\n")
		}
		b.WriteString(t.S)
		lastY = t.Y
	}
	return b.String()
}
