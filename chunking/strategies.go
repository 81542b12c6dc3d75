package chunking

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// fixed emits consecutive windows of size runes. Windows holding only
// whitespace are skipped. Content is not trimmed.
func fixed(text string, size int) []string {
	runes := []rune(text)
	var chunks []string
	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		window := string(runes[start:end])
		if strings.TrimSpace(window) != "" {
			chunks = append(chunks, window)
		}
	}
	return chunks
}

// overlapping slides a window of size runes forward by size-overlap. A
// final window shorter than size/2 is folded into the previous chunk.
func overlapping(text string, size, overlap int) []string {
	runes := []rune(text)
	step := size - overlap

	var chunks []string
	lastEnd := 0
	for start := 0; start < len(runes); start += step {
		end := min(start+size, len(runes))
		atEnd := end == len(runes)

		if atEnd && end-start < size/2 && len(chunks) > 0 {
			chunks[len(chunks)-1] += string(runes[lastEnd:end])
			break
		}

		window := string(runes[start:end])
		if strings.TrimSpace(window) != "" {
			chunks = append(chunks, window)
			lastEnd = end
		}
		if atEnd {
			break
		}
	}
	return chunks
}

// semantic packs paragraphs into passages of at most size runes. A buffer
// that still exceeds size is re-packed from its sentences.
func semantic(text string, size int) []string {
	var chunks []string
	emit := func(s string) {
		s = strings.TrimSpace(s)
		if utf8.RuneCountInString(s) > MinSemanticLength {
			chunks = append(chunks, s)
		}
	}
	flush := func(buf string) {
		if utf8.RuneCountInString(buf) <= size {
			emit(buf)
			return
		}
		for _, s := range accumulate(splitSentences(buf), " ", size) {
			emit(s)
		}
	}

	for _, buf := range accumulate(strings.Split(text, "\n\n"), "\n\n", size) {
		flush(buf)
	}
	return chunks
}

// accumulate joins consecutive non-blank parts with sep until adding the
// next part would exceed size, then starts a new buffer.
func accumulate(parts []string, sep string, size int) []string {
	var out []string
	var buf strings.Builder
	bufLen := 0
	sepLen := utf8.RuneCountInString(sep)

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		partLen := utf8.RuneCountInString(part)

		if bufLen > 0 && bufLen+sepLen+partLen > size {
			out = append(out, buf.String())
			buf.Reset()
			bufLen = 0
		}
		if bufLen > 0 {
			buf.WriteString(sep)
			bufLen += sepLen
		}
		buf.WriteString(part)
		bufLen += partLen
	}
	if bufLen > 0 {
		out = append(out, buf.String())
	}
	return out
}

// splitSentences breaks text after '.', '!' or '?' when followed by
// whitespace.
func splitSentences(text string) []string {
	runes := []rune(text)
	var sentences []string
	start := 0
	for i := 0; i < len(runes)-1; i++ {
		switch runes[i] {
		case '.', '!', '?':
			if unicode.IsSpace(runes[i+1]) {
				sentences = append(sentences, string(runes[start:i+1]))
				start = i + 1
			}
		}
	}
	if start < len(runes) {
		sentences = append(sentences, string(runes[start:]))
	}
	return sentences
}
