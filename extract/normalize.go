package extract

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var paragraphBreak = regexp.MustCompile(`\n[ \t\r\f\v]*\n`)

const keptPunctuation = `.,!?;:-()'"_`

// Normalize applies NFKD, removes zero-width spaces, replaces symbols
// outside letters, digits and basic punctuation with spaces, and collapses
// whitespace. Paragraph breaks survive as a single blank line.
func Normalize(text string) string {
	text = norm.NFKD.String(text)
	text = strings.ReplaceAll(text, "\u200b", "")
	text = strings.ReplaceAll(text, "\u00a0", " ")
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var paragraphs []string
	for _, p := range paragraphBreak.Split(text, -1) {
		p = strings.Map(cleanRune, p)
		p = strings.Join(strings.Fields(p), " ")
		if p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	return strings.Join(paragraphs, "\n\n")
}

func cleanRune(r rune) rune {
	switch {
	case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsSpace(r):
		return r
	case unicode.Is(unicode.Mn, r):
		return r
	case strings.ContainsRune(keptPunctuation, r):
		return r
	}
	return ' '
}
