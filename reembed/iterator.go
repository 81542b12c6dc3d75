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


package reembed

import (
	"context"

	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/storage"
)

const (
	// DefaultBatchSize is the default number of passages handed to fn at once
	DefaultBatchSize = 100
)

// PassageIterator iterates over the passages of READY documents in batches.
type PassageIterator struct {
	store     storage.RelationalStore
	batchSize int
}

// NewPassageIterator creates a new passage iterator.
// batchSize: number of passages per batch (values <= 0 use DefaultBatchSize)
func NewPassageIterator(store storage.RelationalStore, batchSize int) *PassageIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &PassageIterator{
		store:     store,
		batchSize: batchSize,
	}
}

// Documents returns the READY documents, oldest first.
func (it *PassageIterator) Documents(ctx context.Context) ([]*core.Document, error) {
	docs, err := it.store.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}

	ready := make([]*core.Document, 0, len(docs))
	for i := len(docs) - 1; i >= 0; i-- {
		if docs[i].Status == core.StatusReady {
			ready = append(ready, docs[i])
		}
	}
	return ready, nil
}

// Count returns the number of passages ForEach will visit.
func (it *PassageIterator) Count(ctx context.Context) (int, error) {
	docs, err := it.Documents(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, doc := range docs {
		total += doc.TotalChunks
	}
	return total, nil
}

// ForEach calls fn with each document's passages, at most batchSize at a
// time and in ordinal order. A batch never spans two documents.
// Iteration stops on first error from fn or when ctx is cancelled.
func (it *PassageIterator) ForEach(ctx context.Context, fn func(doc *core.Document, passages []*core.Passage) error) error {
	docs, err := it.Documents(ctx)
	if err != nil {
		return err
	}

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}

		passages, err := it.store.GetDocumentPassages(ctx, doc.Id)
		if err != nil {
			return err
		}

		for i := 0; i < len(passages); i += it.batchSize {
			end := min(i+it.batchSize, len(passages))
			if err := fn(doc, passages[i:end]); err != nil {
				return err
			}

			if err := ctx.Err(); err != nil {
				return err
			}
		}
	}

	return nil
}
