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


package badger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/storage"
)

// VectorIndex is a brute-force cosine index stored in BadgerDB. Vectors
// are normalized on write so the dot product is the cosine similarity.
type VectorIndex struct {
	backend *Backend

	mu        sync.RWMutex
	dimension int
}

var _ storage.VectorIndex = (*VectorIndex)(nil)

// NewVectorIndex opens the index stored in backend. The backend is not
// closed by VectorIndex.Close.
func NewVectorIndex(backend *Backend) (*VectorIndex, error) {
	idx := &VectorIndex{backend: backend}

	err := backend.View(func(tx *badger.Txn) error {
		item, err := tx.Get([]byte(dimensionKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			dim, err := storage.UnmarshalInt(val)
			idx.dimension = dim
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return idx, nil
}

// Dimension returns the width fixed by the first write, or 0.
func (v *VectorIndex) Dimension() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.dimension
}

func (v *VectorIndex) checkDimension(n int) error {
	if n == 0 {
		return fmt.Errorf("%w: empty vector", storage.ErrInvalidQuery)
	}
	if v.dimension != 0 && n != v.dimension {
		return fmt.Errorf("%w: %w: got %d, index has %d", core.ErrConfiguration, core.ErrDimensionMismatch, n, v.dimension)
	}
	return nil
}

// Upsert writes entries keyed by (document, passage).
func (v *VectorIndex) Upsert(ctx context.Context, entries ...*core.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	for _, e := range entries {
		if err := v.checkDimension(len(e.Vector)); err != nil {
			return err
		}
		if v.dimension == 0 {
			v.dimension = len(e.Vector)
		}
	}
	dim := v.dimension

	return v.backend.Update(func(tx *badger.Txn) error {
		if err := tx.Set([]byte(dimensionKey), storage.MarshalInt(dim)); err != nil {
			return err
		}
		for _, e := range entries {
			normalized := *e
			normalized.Vector = core.NormalizeVector(e.Vector)
			if err := tx.Set(makeVectorKey(e.DocumentId, e.PassageId), storage.MarshalIndexEntry(&normalized)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Query scans the entries under documentID (or all entries) and returns
// the limit best matches. Ties keep key order.
func (v *VectorIndex) Query(ctx context.Context, vector []float32, documentID core.ID, limit int) ([]core.SimilarityMatch, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidQuery)
	}

	v.mu.RLock()
	err := v.checkDimension(len(vector))
	v.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	query := core.NormalizeVector(vector)
	var matches []core.SimilarityMatch

	err = v.backend.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeVectorScanPrefix(documentID)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var entry *core.IndexEntry
			err := iter.Item().Value(func(val []byte) error {
				var err error
				entry, err = storage.UnmarshalIndexEntry(val)
				return err
			})
			if err != nil {
				return err
			}

			matches = append(matches, core.SimilarityMatch{
				PassageId:  entry.PassageId,
				DocumentId: entry.DocumentId,
				Ordinal:    entry.Ordinal,
				Score:      core.DotProduct(query, entry.Vector),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(matches, func(a, b core.SimilarityMatch) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// DeleteDocument removes every entry of documentID.
func (v *VectorIndex) DeleteDocument(ctx context.Context, documentID core.ID) error {
	if documentID == "" {
		return fmt.Errorf("%w: document id is required", storage.ErrInvalidQuery)
	}

	var keys [][]byte
	err := v.backend.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = makeVectorScanPrefix(documentID)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			keys = append(keys, iter.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return err
	}

	return v.backend.Update(func(tx *badger.Txn) error {
		for _, key := range keys {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close is a no-op; the owner of the Backend closes it.
func (v *VectorIndex) Close() error {
	return nil
}
