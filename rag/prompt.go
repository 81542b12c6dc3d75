package rag

import (
	"strings"

	"github.com/poiesic/lectern/core"
)

const (
	// NoInformationAnswer is returned without generation when retrieval
	// finds nothing.
	NoInformationAnswer = "No relevant information found in the document for your query."

	// FallbackSentence is what the generator is told to answer when the
	// context is insufficient.
	FallbackSentence = "I couldn't find relevant information in the provided text to answer your question."

	// PreviewLength is the number of runes kept in a citation preview.
	PreviewLength = 200

	contextSeparator = "\n\n"
)

// BuildPrompt returns the grounding prompt for question over context.
func BuildPrompt(context, question string) string {
	var b strings.Builder
	b.WriteString("Context information is below.\n")
	b.WriteString("---------------------\n")
	b.WriteString(context)
	b.WriteString("\n---------------------\n")
	b.WriteString("Given the context information and not prior knowledge, answer the question: ")
	b.WriteString(question)
	b.WriteString("\nIf the context does not provide enough information to answer the question, respond with: \"")
	b.WriteString(FallbackSentence)
	b.WriteString("\"")
	return b.String()
}

// JoinContext concatenates passage texts in rank order.
func JoinContext(results []*core.SearchResult) string {
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Passage.Text
	}
	return strings.Join(texts, contextSeparator)
}
