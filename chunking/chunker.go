// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package chunking

import (
	"fmt"
	"strings"
	"time"

	"github.com/poiesic/lectern/core"
)

const (
	// DefaultSize is the default passage length in characters.
	DefaultSize = 1000
	// DefaultOverlap is the default overlap for the overlapping strategy.
	DefaultOverlap = 100
	// MinSemanticLength is the longest passage the semantic strategy still
	// discards as noise.
	MinSemanticLength = 10
)

// Chunker splits document text into passages. It is immutable after
// construction and safe for concurrent use.
type Chunker struct {
	strategy core.ChunkStrategy
	size     int
	overlap  int
}

// New validates the parameters and returns a Chunker. Invalid parameters
// produce an error wrapping core.ErrConfiguration.
func New(strategy core.ChunkStrategy, size, overlap int) (*Chunker, error) {
	if err := core.ValidateChunkStrategy(strategy); err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, fmt.Errorf("%w: %w: size must be positive, got %d", core.ErrConfiguration, ErrInvalidParameters, size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: %w: overlap cannot be negative, got %d", core.ErrConfiguration, ErrInvalidParameters, overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("%w: %w: overlap %d must be smaller than size %d", core.ErrConfiguration, ErrInvalidParameters, overlap, size)
	}
	return &Chunker{strategy: strategy, size: size, overlap: overlap}, nil
}

// Strategy returns the configured strategy.
func (c *Chunker) Strategy() core.ChunkStrategy {
	return c.strategy
}

// Chunk splits text into ordered passage texts. Whitespace-only input
// yields an empty result.
func (c *Chunker) Chunk(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	switch c.strategy {
	case core.ChunkOverlapping:
		return overlapping(text, c.size, c.overlap)
	case core.ChunkSemantic:
		return semantic(text, c.size)
	default:
		return fixed(text, c.size)
	}
}

// Passages chunks text and wraps each piece as a Passage owned by
// documentID. Ordinals are contiguous from zero. Every passage carries a
// copy of meta plus the creation time and strategy.
func (c *Chunker) Passages(documentID core.ID, text string, meta map[string]string, now time.Time) ([]*core.Passage, error) {
	texts := c.Chunk(text)
	passages := make([]*core.Passage, 0, len(texts))

	for i, t := range texts {
		md := make(map[string]string, len(meta)+2)
		for k, v := range meta {
			md[k] = v
		}
		md[core.MetaCreatedAt] = now.UTC().Format(time.RFC3339)
		md[core.MetaChunkStrategy] = string(c.strategy)

		p := &core.Passage{
			Id:         core.IDFromContent(t),
			DocumentId: documentID,
			Ordinal:    i,
			Text:       t,
			Metadata:   md,
			CreatedAt:  now,
		}
		if err := core.ValidatePassage(p); err != nil {
			return nil, err
		}
		passages = append(passages, p)
	}
	return passages, nil
}
