package main

import (
	"fmt"
	"io"

	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/rag"
)

// verboseMonitor prints each query stage.
type verboseMonitor struct {
	w io.Writer
}

var _ rag.QueryMonitor = (*verboseMonitor)(nil)

func newVerboseMonitor(w io.Writer) *verboseMonitor {
	return &verboseMonitor{w: w}
}

func (m *verboseMonitor) Start(mode core.QueryMode, question string) {
	fmt.Fprintf(m.w, "== %s: %s\n", mode, question)
}

func (m *verboseMonitor) AfterRetrieval(results []*core.SearchResult) {
	fmt.Fprintf(m.w, "== retrieved %d passages\n", len(results))
	for _, r := range results {
		fmt.Fprintf(m.w, "  #%d (%.3f) %s\n", r.Passage.Ordinal, r.Score, rag.Preview(r.Passage.Text))
	}
}

func (m *verboseMonitor) BeforeGeneration(prompt string) {
	fmt.Fprintf(m.w, "== prompt\n%s\n", prompt)
}

func (m *verboseMonitor) Finish(answer *core.Answer) {
	fmt.Fprintf(m.w, "== %d tokens in %v\n", answer.Tokens, answer.Latency)
}
