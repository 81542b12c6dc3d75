package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDF extracts the plain text of every page. Pages are separated by a
// blank line. The document title comes from the Info dictionary when set.
func PDF(data []byte) (content *Content, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			content = nil
			err = fmt.Errorf("%w: pdf: %v", ErrMalformed, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: pdf: %w", ErrMalformed, err)
	}

	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: pdf page %d: %w", ErrMalformed, i, err)
		}
		if strings.TrimSpace(text) != "" {
			pages = append(pages, text)
		}
	}

	title := strings.TrimSpace(reader.Trailer().Key("Info").Key("Title").Text())
	return &Content{Title: title, Text: strings.Join(pages, "\n\n")}, nil
}
