// Package mock provides test double implementations of AI service interfaces.
//
// MockEmbedder, MockGenerator and MockProvider stand in for ai.Embedder,
// ai.Generator and ai.AIProvider so pipeline and retrieval tests run without
// a model server.
//
// # Usage in Tests
//
//	provider := mock.NewMockProvider()
//	vec, err := provider.Embedder().EmbedText(ctx, "test")
//
//	// Custom behavior injection
//	gen := mock.NewMockGenerator()
//	gen.GenerateFunc = func(ctx context.Context, prompt string, opts ai.GenerateOptions) (string, error) {
//	    return "forty-two", nil
//	}
//
//	// Assertions
//	count := gen.CallCount()
//	prompts := gen.Prompts()
//
// # Default Behavior
//
//   - MockEmbedder: deterministic unit vectors derived from a text hash
//   - MockGenerator: echoes a fixed answer and records every prompt
//   - MockProvider: aggregates a mock embedder and generator
package mock
