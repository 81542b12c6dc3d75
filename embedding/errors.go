package embedding

import (
	"errors"
	"fmt"

	"github.com/poiesic/lectern/core"
)

var (
	// ErrEmbedderRequired is returned when NewCoordinator gets a nil embedder.
	ErrEmbedderRequired = errors.New("embedder is required")

	// ErrEmbeddingFailure is returned once the retry budget is exhausted.
	ErrEmbeddingFailure = fmt.Errorf("embedding failure: %w", core.ErrTerminalFailure)

	// ErrCountMismatch means the provider returned a different number of
	// vectors than texts sent.
	ErrCountMismatch = errors.New("embedding count mismatch")

	// ErrEmptyVector means the provider returned a zero-length vector.
	ErrEmptyVector = errors.New("empty embedding vector")

	// ErrEmptyText is returned by EmbedQuery for blank input.
	ErrEmptyText = errors.New("text to embed is empty")
)
