package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/lectern/core"
)

// WriteReport describes the outcome of DualStore.Store.
type WriteReport struct {
	// Indexed is the number of vectors written to the vector index.
	Indexed int
	// Stored is the number of passages upserted into the relational store.
	Stored int
	// Skipped lists input positions that had no vector.
	Skipped []int
}

// Durable reports whether every non-skipped passage reached both stores.
func (r *WriteReport) Durable() bool {
	return r.Indexed == r.Stored
}

// DualStore keeps a vector index and a relational store in step under
// shared passage ids.
type DualStore struct {
	index      VectorIndex
	relational RelationalStore
	logger     *slog.Logger
}

// DualOption configures a DualStore.
type DualOption func(*DualStore)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) DualOption {
	return func(d *DualStore) {
		if logger == nil {
			logger = slog.Default()
		}
		d.logger = logger
	}
}

// NewDualStore pairs index and relational.
func NewDualStore(index VectorIndex, relational RelationalStore, opts ...DualOption) (*DualStore, error) {
	if index == nil {
		return nil, ErrIndexRequired
	}
	if relational == nil {
		return nil, ErrRelationalRequired
	}

	d := &DualStore{
		index:      index,
		relational: relational,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "dual-store")
	return d, nil
}

// Index returns the vector half.
func (d *DualStore) Index() VectorIndex {
	return d.index
}

// Relational returns the relational half.
func (d *DualStore) Relational() RelationalStore {
	return d.relational
}

// Store writes passages and their vectors: the vector index first, then
// the relational upsert. vectors must align with passages; positions with
// a nil vector are skipped and reported. A lost relational connection is
// reconnected and the upsert retried once.
func (d *DualStore) Store(ctx context.Context, passages []*core.Passage, vectors [][]float32) (*WriteReport, error) {
	if len(passages) != len(vectors) {
		return nil, fmt.Errorf("%w: %d passages, %d vectors", ErrLengthMismatch, len(passages), len(vectors))
	}

	report := &WriteReport{}
	entries := make([]*core.IndexEntry, 0, len(passages))
	kept := make([]*core.Passage, 0, len(passages))
	for i, p := range passages {
		if p == nil || vectors[i] == nil {
			report.Skipped = append(report.Skipped, i)
			continue
		}
		entries = append(entries, &core.IndexEntry{
			PassageId:  p.Id,
			DocumentId: p.DocumentId,
			Ordinal:    p.Ordinal,
			Vector:     vectors[i],
		})
		kept = append(kept, p)
	}

	if len(report.Skipped) > 0 {
		d.logger.Warn("passages without vectors not stored", "count", len(report.Skipped))
	}
	if len(entries) == 0 {
		return report, nil
	}

	if err := d.index.Upsert(ctx, entries...); err != nil {
		return report, fmt.Errorf("vector index write: %w", err)
	}
	report.Indexed = len(entries)

	err := d.withReconnect(ctx, func() error {
		return d.relational.UpsertPassages(ctx, kept...)
	})
	if err != nil {
		return report, fmt.Errorf("relational write: %w", err)
	}
	report.Stored = len(kept)

	return report, nil
}

// Search finds the passages closest to vector and hydrates their text.
// Rank order from the index is preserved. Index hits with no relational
// row are logged and left out.
func (d *DualStore) Search(ctx context.Context, vector []float32, documentID core.ID, limit int) ([]*core.SearchResult, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", ErrInvalidQuery)
	}

	matches, err := d.index.Query(ctx, vector, documentID, limit)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}
	if len(matches) == 0 {
		return []*core.SearchResult{}, nil
	}

	ids := make([]core.ID, len(matches))
	for i, m := range matches {
		ids[i] = m.PassageId
	}

	var passages []*core.Passage
	err = d.withReconnect(ctx, func() error {
		var err error
		passages, err = d.relational.GetPassages(ctx, ids...)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("hydrate passages: %w", err)
	}

	byID := make(map[core.ID]*core.Passage, len(passages))
	for _, p := range passages {
		byID[p.Id] = p
	}

	results := make([]*core.SearchResult, 0, len(matches))
	for _, m := range matches {
		p, ok := byID[m.PassageId]
		if !ok {
			d.logger.Warn("indexed passage missing from relational store",
				"err", core.ErrConsistencyAnomaly, "passage", m.PassageId, "document", m.DocumentId)
			continue
		}
		// The relational row belongs to whichever document wrote it last.
		hydrated := *p
		hydrated.DocumentId = m.DocumentId
		hydrated.Ordinal = m.Ordinal
		results = append(results, &core.SearchResult{Passage: &hydrated, Score: m.Score})
	}
	return results, nil
}

func (d *DualStore) withReconnect(ctx context.Context, op func() error) error {
	err := op()
	if err == nil || !errors.Is(err, ErrConnectionLost) {
		return err
	}

	d.logger.Warn("relational connection lost, reconnecting", "err", err)
	if rerr := d.relational.Reconnect(ctx); rerr != nil {
		return fmt.Errorf("%w (reconnect failed: %w)", err, rerr)
	}
	return op()
}

// Close closes both halves.
func (d *DualStore) Close() error {
	return errors.Join(d.index.Close(), d.relational.Close())
}
