package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// BoilerplateSelector matches elements that never carry document content.
const BoilerplateSelector = "script, style, noscript, nav, header, footer, aside"

const blockSelector = "p, div, section, article, li, pre, blockquote, tr, br, h1, h2, h3, h4, h5, h6"

// HTML extracts the <title> and body text of an HTML page with navigation
// and script elements removed. Block elements end in a paragraph break.
func HTML(data []byte) (*Content, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: html: %w", ErrMalformed, err)
	}
	return FromDocument(doc), nil
}

// FromDocument extracts content from an already-parsed page. The document
// is modified in place.
func FromDocument(doc *goquery.Document) *Content {
	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}

	doc.Find(BoilerplateSelector).Remove()
	doc.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n\n")
	})

	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	return &Content{Title: title, Text: body.Text()}
}
