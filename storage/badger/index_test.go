package badger

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T) (*VectorIndex, *Ledger) {
	t.Helper()
	index, ledger, backend, err := NewMemoryIndex()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return index, ledger
}

func entry(doc, passage string, ordinal int, vector ...float32) *core.IndexEntry {
	return &core.IndexEntry{
		PassageId:  core.ID(passage),
		DocumentId: core.ID(doc),
		Ordinal:    ordinal,
		Vector:     vector,
	}
}

func TestQuery_EmptyIndex(t *testing.T) {
	index, _ := newTestIndex(t)

	matches, err := index.Query(context.Background(), []float32{1, 0}, "", 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestQuery_RanksByCosine(t *testing.T) {
	index, _ := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, index.Upsert(ctx,
		entry("doc", "far", 0, 0, 1, 0),
		entry("doc", "near", 1, 10, 1, 0),
		entry("doc", "exact", 2, 3, 0, 0),
	))

	matches, err := index.Query(ctx, []float32{1, 0, 0}, "doc", 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, core.ID("exact"), matches[0].PassageId)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
	assert.Equal(t, core.ID("near"), matches[1].PassageId)
	assert.Equal(t, 1, matches[1].Ordinal)
	assert.Greater(t, matches[0].Score, matches[1].Score)
}

func TestQuery_ScopedToDocument(t *testing.T) {
	index, _ := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, index.Upsert(ctx,
		entry("a", "p1", 0, 1, 0),
		entry("b", "p2", 0, 1, 0),
		entry("b", "p3", 1, 0, 1),
	))

	matches, err := index.Query(ctx, []float32{1, 0}, "a", 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, core.ID("a"), matches[0].DocumentId)

	all, err := index.Query(ctx, []float32{1, 0}, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestUpsert_SharedPassageKeptPerDocument(t *testing.T) {
	index, _ := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, index.Upsert(ctx, entry("a", "shared", 0, 1, 0)))
	require.NoError(t, index.Upsert(ctx, entry("b", "shared", 4, 1, 0)))

	for doc, ordinal := range map[string]int{"a": 0, "b": 4} {
		matches, err := index.Query(ctx, []float32{1, 0}, core.ID(doc), 10)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, ordinal, matches[0].Ordinal)
	}
}

func TestUpsert_Overwrites(t *testing.T) {
	index, _ := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, index.Upsert(ctx, entry("a", "p", 0, 1, 0)))
	require.NoError(t, index.Upsert(ctx, entry("a", "p", 0, 0, 1)))

	matches, err := index.Query(ctx, []float32{0, 1}, "a", 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
}

func TestUpsert_DimensionMismatch(t *testing.T) {
	index, _ := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, index.Upsert(ctx, entry("a", "p", 0, 1, 0, 0)))
	assert.Equal(t, 3, index.Dimension())

	err := index.Upsert(ctx, entry("a", "q", 1, 1, 0))
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
	assert.ErrorIs(t, err, core.ErrConfiguration)

	_, err = index.Query(ctx, []float32{1, 0}, "", 1)
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
}

func TestDimensionPersisted(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	backend, err := OpenBackend(dir, false)
	require.NoError(t, err)
	index, err := NewVectorIndex(backend)
	require.NoError(t, err)
	require.NoError(t, index.Upsert(ctx, entry("a", "p", 0, 1, 2, 3, 4)))
	require.NoError(t, backend.Close())

	backend, err = OpenBackend(dir, false)
	require.NoError(t, err)
	defer backend.Close()
	index, err = NewVectorIndex(backend)
	require.NoError(t, err)
	assert.Equal(t, 4, index.Dimension())

	matches, err := index.Query(ctx, []float32{1, 2, 3, 4}, "a", 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, core.ID("p"), matches[0].PassageId)
}

func TestQuery_InvalidArguments(t *testing.T) {
	index, _ := newTestIndex(t)
	ctx := context.Background()

	_, err := index.Query(ctx, []float32{1}, "", 0)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)

	_, err = index.Query(ctx, nil, "", 3)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestDeleteDocument(t *testing.T) {
	index, _ := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, index.Upsert(ctx,
		entry("a", "p1", 0, 1, 0),
		entry("a", "p2", 1, 0, 1),
		entry("ab", "p3", 0, 1, 1),
	))

	require.NoError(t, index.DeleteDocument(ctx, "a"))

	matches, err := index.Query(ctx, []float32{1, 0}, "", 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, core.ID("ab"), matches[0].DocumentId)

	assert.ErrorIs(t, index.DeleteDocument(ctx, ""), storage.ErrInvalidQuery)
}

func TestLedger(t *testing.T) {
	_, ledger := newTestIndex(t)
	ctx := context.Background()

	settled, err := ledger.Settled(ctx)
	require.NoError(t, err)
	assert.Empty(t, settled)

	require.NoError(t, ledger.MarkSettled(ctx, "https://example.com/a"))
	first, err := ledger.SettledAt(ctx, "https://example.com/a")
	require.NoError(t, err)

	require.NoError(t, ledger.MarkSettled(ctx, "https://example.com/a"))
	require.NoError(t, ledger.MarkSettled(ctx, "https://example.com/b"))

	again, err := ledger.SettledAt(ctx, "https://example.com/a")
	require.NoError(t, err)
	assert.True(t, first.Equal(again))

	settled, err = ledger.Settled(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{
		"https://example.com/a": {},
		"https://example.com/b": {},
	}, settled)

	_, err = ledger.SettledAt(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLedger_ConcurrentMarks(t *testing.T) {
	_, ledger := newTestIndex(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, ledger.MarkSettled(ctx, fmt.Sprintf("https://example.com/%d", i)))
		}()
	}
	wg.Wait()

	settled, err := ledger.Settled(ctx)
	require.NoError(t, err)
	assert.Len(t, settled, 20)
}
