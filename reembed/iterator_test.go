package reembed

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/lectern/ai/mock"
	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/embedding"
	"github.com/poiesic/lectern/storage/badger"
	"github.com/poiesic/lectern/storage/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 8

func setupTestDB(t *testing.T) *sqlite.Store {
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "lectern.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func setupIndex(t *testing.T) *badger.VectorIndex {
	index, _, backend, err := badger.NewMemoryIndex()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return index
}

func setupCoordinator(t *testing.T, embedder *mock.MockEmbedder) *embedding.Coordinator {
	embedder.Dimension = testDim
	coordinator, err := embedding.NewCoordinator(embedder,
		embedding.WithBaseDelay(time.Millisecond),
		embedding.WithMinDelay(0),
	)
	require.NoError(t, err)
	return coordinator
}

// addDocument stores n passages for a new document and settles it with
// status. PROCESSING leaves it unsettled.
func addDocument(t *testing.T, store *sqlite.Store, n int, status core.DocumentStatus) *core.Document {
	ctx := context.Background()
	doc := &core.Document{
		Id:            core.NewID(),
		Title:         "doc",
		ContentType:   core.ContentTypeText,
		ChunkStrategy: core.ChunkFixed,
	}
	require.NoError(t, store.CreateDocument(ctx, doc))

	passages := make([]*core.Passage, n)
	for i := range passages {
		text := fmt.Sprintf("passage %d of %s", i, doc.Id)
		passages[i] = &core.Passage{
			Id:         core.IDFromContent(text),
			DocumentId: doc.Id,
			Ordinal:    i,
			Text:       text,
			CreatedAt:  time.Now().UTC(),
		}
	}
	if n > 0 {
		require.NoError(t, store.UpsertPassages(ctx, passages...))
	}
	require.NoError(t, store.UpdateProgress(ctx, doc.Id, n, n))

	switch status {
	case core.StatusReady:
		require.NoError(t, store.CompleteDocument(ctx, doc.Id))
	case core.StatusError:
		require.NoError(t, store.FailDocument(ctx, doc.Id, "boom"))
	}

	got, err := store.GetDocument(ctx, doc.Id)
	require.NoError(t, err)
	return got
}

func TestPassageIterator_Basic(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	first := addDocument(t, store, 3, core.StatusReady)
	second := addDocument(t, store, 2, core.StatusReady)

	iter := NewPassageIterator(store, 2)
	var batches []int
	var owners []core.ID
	var ordinals []int

	err := iter.ForEach(ctx, func(doc *core.Document, passages []*core.Passage) error {
		batches = append(batches, len(passages))
		owners = append(owners, doc.Id)
		for _, p := range passages {
			assert.Equal(t, doc.Id, p.DocumentId)
			ordinals = append(ordinals, p.Ordinal)
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []int{2, 1, 2}, batches, "batches should not span documents")
	assert.Equal(t, []core.ID{first.Id, first.Id, second.Id}, owners, "oldest document first")
	assert.Equal(t, []int{0, 1, 2, 0, 1}, ordinals)

	count, err := iter.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestPassageIterator_SkipsUnsettledDocuments(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	ready := addDocument(t, store, 1, core.StatusReady)
	addDocument(t, store, 2, core.StatusProcessing)
	addDocument(t, store, 2, core.StatusError)

	iter := NewPassageIterator(store, 0)
	docs, err := iter.Documents(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, ready.Id, docs[0].Id)

	count, err := iter.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPassageIterator_StopsOnError(t *testing.T) {
	store := setupTestDB(t)
	addDocument(t, store, 5, core.StatusReady)

	calls := 0
	err := NewPassageIterator(store, 1).ForEach(context.Background(), func(*core.Document, []*core.Passage) error {
		calls++
		if calls == 2 {
			return assert.AnError
		}
		return nil
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 2, calls)
}

func TestPassageIterator_ContextCancelled(t *testing.T) {
	store := setupTestDB(t)
	addDocument(t, store, 3, core.StatusReady)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := NewPassageIterator(store, 1).ForEach(ctx, func(*core.Document, []*core.Passage) error {
		calls++
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
