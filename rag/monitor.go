package rag

import (
	"github.com/poiesic/lectern/core"
)

// QueryMonitor provides hooks to observe a query.
// Implement this interface to trace intermediate steps, for example in a
// CLI verbose mode.
type QueryMonitor interface {
	Start(mode core.QueryMode, question string)
	AfterRetrieval(results []*core.SearchResult)
	BeforeGeneration(prompt string)
	Finish(answer *core.Answer)
}

// noopMonitor is a no-op implementation of QueryMonitor
type noopMonitor struct{}

var _ QueryMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ core.QueryMode, _ string)      {}
func (n *noopMonitor) AfterRetrieval(_ []*core.SearchResult) {}
func (n *noopMonitor) BeforeGeneration(_ string)             {}
func (n *noopMonitor) Finish(_ *core.Answer)                 {}
