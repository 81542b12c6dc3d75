package embedding

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/lectern/ai/mock"
	"github.com/poiesic/lectern/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastCoordinator(t *testing.T, embedder *mock.MockEmbedder, opts ...Option) *Coordinator {
	t.Helper()
	base := []Option{
		WithBaseDelay(time.Millisecond),
		WithMinDelay(0),
		WithCallTimeout(time.Second),
	}
	c, err := NewCoordinator(embedder, append(base, opts...)...)
	require.NoError(t, err)
	return c
}

func passages(texts ...string) []*core.Passage {
	out := make([]*core.Passage, len(texts))
	for i, text := range texts {
		out[i] = &core.Passage{Id: core.IDFromContent(text), Ordinal: i, Text: text}
	}
	return out
}

func TestNewCoordinator_RequiresEmbedder(t *testing.T) {
	_, err := NewCoordinator(nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)
}

func TestNewCoordinator_RejectsBadOptions(t *testing.T) {
	emb := mock.NewMockEmbedder()
	for _, opt := range []Option{WithBatchSize(0), WithMaxAttempts(0, 1), WithMinDelay(-time.Second), WithDimension(-1)} {
		_, err := NewCoordinator(emb, opt)
		assert.ErrorIs(t, err, core.ErrConfiguration)
	}
}

func TestEmbedBatch_PreservesAlignment(t *testing.T) {
	emb := mock.NewMockEmbedder()
	c := fastCoordinator(t, emb)

	batch, err := c.EmbedBatch(context.Background(), passages("alpha", "", "gamma", "   ", "epsilon"))
	require.NoError(t, err)

	require.Len(t, batch.Vectors, 5)
	assert.Equal(t, []int{1, 3}, batch.Skipped)
	assert.Equal(t, 3, batch.Embedded())

	assert.Equal(t, mock.Vector("alpha", mock.DefaultDimension), batch.Vectors[0])
	assert.Nil(t, batch.Vectors[1])
	assert.Equal(t, mock.Vector("gamma", mock.DefaultDimension), batch.Vectors[2])
	assert.Nil(t, batch.Vectors[3])
	assert.Equal(t, mock.Vector("epsilon", mock.DefaultDimension), batch.Vectors[4])

	require.Len(t, emb.Batches(), 1)
	assert.Equal(t, []string{"alpha", "gamma", "epsilon"}, emb.Batches()[0], "blank texts are not sent")
}

func TestEmbedBatch_SplitsIntoSubBatches(t *testing.T) {
	emb := mock.NewMockEmbedder()
	c := fastCoordinator(t, emb, WithBatchSize(2))

	batch, err := c.EmbedBatch(context.Background(), passages("a", "b", "c", "d", "e"))
	require.NoError(t, err)
	assert.Equal(t, 5, batch.Embedded())
	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, emb.Batches())
}

func TestEmbedBatch_AllBlank(t *testing.T) {
	emb := mock.NewMockEmbedder()
	c := fastCoordinator(t, emb)

	batch, err := c.EmbedBatch(context.Background(), passages("", " "))
	require.NoError(t, err)
	assert.Equal(t, 0, batch.Embedded())
	assert.Equal(t, 0, emb.CallCount())
}

func TestEmbedBatch_RecoversAfterTransientFailures(t *testing.T) {
	emb := mock.NewMockEmbedder()
	var calls atomic.Int32
	emb.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		if calls.Add(1) < 5 {
			return nil, errors.New("429 too many requests")
		}
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = mock.Vector(text, 8)
		}
		return out, nil
	}
	c := fastCoordinator(t, emb)

	batch, err := c.EmbedBatch(context.Background(), passages("one", "two"))
	require.NoError(t, err)
	assert.Equal(t, 2, batch.Embedded())
	assert.Equal(t, int32(5), calls.Load())
}

func TestEmbedBatch_TerminalFailure(t *testing.T) {
	emb := mock.NewMockEmbedder()
	emb.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("connection reset")
	}
	c := fastCoordinator(t, emb)

	_, err := c.EmbedBatch(context.Background(), passages("one"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbeddingFailure)
	assert.ErrorIs(t, err, core.ErrTerminalFailure)
	assert.Equal(t, DefaultMaxAttempts, emb.CallCount(), "exactly max attempts are made")
}

func TestEmbedBatch_TimeoutIsTransient(t *testing.T) {
	emb := mock.NewMockEmbedder()
	var calls atomic.Int32
	emb.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		if calls.Add(1) == 1 {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return [][]float32{{1, 0}}, nil
	}
	c := fastCoordinator(t, emb, WithCallTimeout(20*time.Millisecond))

	batch, err := c.EmbedBatch(context.Background(), passages("slow"))
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, batch.Vectors[0])
	assert.Equal(t, int32(2), calls.Load())
}

func TestEmbedBatch_CountMismatchRetried(t *testing.T) {
	emb := mock.NewMockEmbedder()
	emb.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return [][]float32{{1}}, nil
	}
	c := fastCoordinator(t, emb, WithMaxAttempts(2, 1))

	_, err := c.EmbedBatch(context.Background(), passages("a", "b"))
	assert.ErrorIs(t, err, ErrCountMismatch)
	assert.ErrorIs(t, err, ErrEmbeddingFailure)
	assert.Equal(t, 2, emb.CallCount())
}

func TestEmbedBatch_DimensionMismatchIsFatal(t *testing.T) {
	emb := mock.NewMockEmbedder()
	c := fastCoordinator(t, emb, WithDimension(16))

	_, err := c.EmbedBatch(context.Background(), passages("a"))
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
	assert.ErrorIs(t, err, core.ErrConfiguration)
	assert.NotErrorIs(t, err, core.ErrTerminalFailure)
	assert.Equal(t, 1, emb.CallCount(), "configuration errors are not retried")
}

func TestCoordinator_LearnsDimension(t *testing.T) {
	emb := mock.NewMockEmbedder()
	c := fastCoordinator(t, emb)
	assert.Equal(t, 0, c.Dimension())

	_, err := c.EmbedQuery(context.Background(), "first")
	require.NoError(t, err)
	assert.Equal(t, mock.DefaultDimension, c.Dimension())

	emb.Dimension = 12
	_, err = c.EmbedQuery(context.Background(), "second")
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
}

func TestEmbedQuery(t *testing.T) {
	emb := mock.NewMockEmbedder()
	c := fastCoordinator(t, emb)

	v, err := c.EmbedQuery(context.Background(), "What is photosynthesis?")
	require.NoError(t, err)
	assert.Equal(t, mock.Vector("What is photosynthesis?", mock.DefaultDimension), v)

	_, err = c.EmbedQuery(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestEmbedQuery_UsesQueryBudget(t *testing.T) {
	emb := mock.NewMockEmbedder()
	emb.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("unavailable")
	}
	c := fastCoordinator(t, emb)

	_, err := c.EmbedQuery(context.Background(), "question")
	assert.ErrorIs(t, err, ErrEmbeddingFailure)
	assert.Equal(t, DefaultQueryMaxAttempts, emb.CallCount())
}

func TestCoordinator_MinDelay(t *testing.T) {
	emb := mock.NewMockEmbedder()
	c := fastCoordinator(t, emb, WithMinDelay(25*time.Millisecond))

	start := time.Now()
	_, err := c.EmbedQuery(context.Background(), "one")
	require.NoError(t, err)
	_, err = c.EmbedQuery(context.Background(), "two")
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 45*time.Millisecond, "every call waits for the minimum delay")
}

func TestCoordinator_ContextCanceled(t *testing.T) {
	emb := mock.NewMockEmbedder()
	c := fastCoordinator(t, emb, WithMinDelay(time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := c.EmbedQuery(ctx, "never sent")
	require.Error(t, err)
	assert.Equal(t, 0, emb.CallCount())
}
