package mock

import (
	"context"
	"sync"

	"github.com/poiesic/lectern/ai"
)

// DefaultAnswer is returned by MockGenerator when no GenerateFunc is set.
const DefaultAnswer = "This is a mock answer."

// MockGenerator is a test double for ai.Generator.
type MockGenerator struct {
	// GenerateFunc is called by Generate if set.
	GenerateFunc func(ctx context.Context, prompt string, opts ai.GenerateOptions) (string, error)

	mu        sync.Mutex
	callCount int
	prompts   []string
	options   []ai.GenerateOptions
}

// NewMockGenerator creates a generator that answers with DefaultAnswer.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

// Generate records the prompt and returns the scripted answer.
func (m *MockGenerator) Generate(ctx context.Context, prompt string, opts ai.GenerateOptions) (string, error) {
	m.mu.Lock()
	m.callCount++
	m.prompts = append(m.prompts, prompt)
	m.options = append(m.options, opts)
	m.mu.Unlock()

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, prompt, opts)
	}
	return DefaultAnswer, nil
}

// CallCount returns the number of Generate calls.
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Prompts returns every prompt seen, in call order.
func (m *MockGenerator) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// Options returns the options passed with each call.
func (m *MockGenerator) Options() []ai.GenerateOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ai.GenerateOptions(nil), m.options...)
}

// Reset clears recorded calls and the custom function.
func (m *MockGenerator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.prompts = nil
	m.options = nil
	m.GenerateFunc = nil
}
