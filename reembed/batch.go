package reembed

import (
	"context"
	"fmt"

	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/embedding"
	"github.com/poiesic/lectern/storage"
)

// BatchProcessor embeds batches of passages and writes them to an index.
type BatchProcessor struct {
	coordinator *embedding.Coordinator
	index       storage.VectorIndex
}

// NewBatchProcessor creates a new batch processor. Retries and rate
// limiting come from the coordinator.
func NewBatchProcessor(coordinator *embedding.Coordinator, index storage.VectorIndex) *BatchProcessor {
	return &BatchProcessor{
		coordinator: coordinator,
		index:       index,
	}
}

// Process embeds passages owned by documentID and upserts their index
// entries. It returns how many passages were indexed.
func (bp *BatchProcessor) Process(ctx context.Context, documentID core.ID, passages []*core.Passage) (int, error) {
	if len(passages) == 0 {
		return 0, nil
	}

	batch, err := bp.coordinator.EmbedBatch(ctx, passages)
	if err != nil {
		return 0, fmt.Errorf("failed to embed passages: %w", err)
	}

	entries := make([]*core.IndexEntry, 0, len(passages))
	for i, p := range passages {
		if batch.Vectors[i] == nil {
			continue
		}
		entries = append(entries, &core.IndexEntry{
			PassageId:  p.Id,
			DocumentId: documentID,
			Ordinal:    p.Ordinal,
			Vector:     batch.Vectors[i],
		})
	}

	if err := bp.index.Upsert(ctx, entries...); err != nil {
		return 0, fmt.Errorf("failed to update index: %w", err)
	}

	return len(entries), nil
}
