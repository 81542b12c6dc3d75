package rag

import (
	"strings"
	"unicode/utf8"

	"github.com/poiesic/lectern/core"
)

// Preview truncates text to PreviewLength runes, marking the cut with "...".
func Preview(text string) string {
	if utf8.RuneCountInString(text) <= PreviewLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:PreviewLength]) + "..."
}

// CountTokens approximates token usage as the number of whitespace
// separated words.
func CountTokens(text string) int {
	return len(strings.Fields(text))
}

// citations builds previews in rank order.
func citations(results []*core.SearchResult) []core.Citation {
	out := make([]core.Citation, len(results))
	for i, r := range results {
		out[i] = core.Citation{
			PassageId: r.Passage.Id,
			Preview:   Preview(r.Passage.Text),
			Score:     r.Score,
		}
	}
	return out
}
