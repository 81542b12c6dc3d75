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


package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/poiesic/lectern/ai"
	"github.com/poiesic/lectern/core"
	"golang.org/x/time/rate"
)

const (
	DefaultBatchSize        = 64
	DefaultMaxAttempts      = 5
	DefaultQueryMaxAttempts = 3
	DefaultBaseDelay        = time.Second
	DefaultMinDelay         = time.Second
	DefaultCallTimeout      = 60 * time.Second
)

// Coordinator batches embedding requests and applies the rate limit and
// retry policy. It is safe for concurrent use; the minimum delay is shared
// by every caller.
type Coordinator struct {
	embedder         ai.Embedder
	batchSize        int
	maxAttempts      int
	queryMaxAttempts int
	baseDelay        time.Duration
	minDelay         time.Duration
	callTimeout      time.Duration
	limiter          *rate.Limiter
	dimension        atomic.Int64
	logger           *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator) error

// WithBatchSize sets how many texts go into one provider call.
func WithBatchSize(n int) Option {
	return func(c *Coordinator) error {
		if n <= 0 {
			return fmt.Errorf("%w: batch size must be positive", core.ErrConfiguration)
		}
		c.batchSize = n
		return nil
	}
}

// WithMaxAttempts sets the attempt budgets for batch and query embedding.
func WithMaxAttempts(batch, query int) Option {
	return func(c *Coordinator) error {
		if batch <= 0 || query <= 0 {
			return fmt.Errorf("%w: attempt budgets must be positive", core.ErrConfiguration)
		}
		c.maxAttempts = batch
		c.queryMaxAttempts = query
		return nil
	}
}

// WithBaseDelay sets the first backoff delay. It doubles on each retry.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Coordinator) error {
		c.baseDelay = d
		return nil
	}
}

// WithMinDelay sets the minimum spacing between provider calls.
func WithMinDelay(d time.Duration) Option {
	return func(c *Coordinator) error {
		if d < 0 {
			return fmt.Errorf("%w: min delay cannot be negative", core.ErrConfiguration)
		}
		c.minDelay = d
		return nil
	}
}

// WithCallTimeout bounds each provider call. Zero disables the bound.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Coordinator) error {
		c.callTimeout = d
		return nil
	}
}

// WithDimension fixes the expected vector width. Without it the width of
// the first response becomes the expected width.
func WithDimension(dim int) Option {
	return func(c *Coordinator) error {
		if dim < 0 {
			return fmt.Errorf("%w: dimension cannot be negative", core.ErrConfiguration)
		}
		c.dimension.Store(int64(dim))
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger.With("component", "embedding-coordinator")
		return nil
	}
}

// NewCoordinator creates a Coordinator around embedder.
func NewCoordinator(embedder ai.Embedder, opts ...Option) (*Coordinator, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	c := &Coordinator{
		embedder:         embedder,
		batchSize:        DefaultBatchSize,
		maxAttempts:      DefaultMaxAttempts,
		queryMaxAttempts: DefaultQueryMaxAttempts,
		baseDelay:        DefaultBaseDelay,
		minDelay:         DefaultMinDelay,
		callTimeout:      DefaultCallTimeout,
		logger:           slog.Default().With("component", "embedding-coordinator"),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	c.limiter = rate.NewLimiter(rate.Every(c.minDelay), 1)
	if c.minDelay > 0 {
		// Spend the initial token so the first call waits too.
		c.limiter.Allow()
	}
	return c, nil
}

// Dimension returns the enforced vector width, or 0 if none is known yet.
func (c *Coordinator) Dimension() int {
	return int(c.dimension.Load())
}

// Batch holds vectors aligned with the input of EmbedBatch.
type Batch struct {
	// Vectors has one entry per input position. Skipped positions are nil.
	Vectors [][]float32
	// Skipped lists the input positions that had no text.
	Skipped []int
}

// Embedded returns the number of positions that received a vector.
func (b *Batch) Embedded() int {
	return len(b.Vectors) - len(b.Skipped)
}

// EmbedBatch embeds the text of each passage. The result has the same
// length and order as passages.
func (c *Coordinator) EmbedBatch(ctx context.Context, passages []*core.Passage) (*Batch, error) {
	texts := make([]string, len(passages))
	for i, p := range passages {
		if p != nil {
			texts[i] = p.Text
		}
	}
	return c.EmbedTexts(ctx, texts)
}

// EmbedTexts embeds texts, skipping blank entries while keeping alignment.
func (c *Coordinator) EmbedTexts(ctx context.Context, texts []string) (*Batch, error) {
	batch := &Batch{Vectors: make([][]float32, len(texts))}

	positions := make([]int, 0, len(texts))
	request := make([]string, 0, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			batch.Skipped = append(batch.Skipped, i)
			continue
		}
		positions = append(positions, i)
		request = append(request, text)
	}

	if len(batch.Skipped) > 0 {
		c.logger.Warn("skipping empty passages", "count", len(batch.Skipped), "positions", batch.Skipped)
	}

	for start := 0; start < len(request); start += c.batchSize {
		end := min(start+c.batchSize, len(request))
		sub := request[start:end]

		vectors, err := c.call(ctx, c.maxAttempts, len(sub), func(callCtx context.Context) ([][]float32, error) {
			return c.embedder.EmbedTexts(callCtx, sub)
		})
		if err != nil {
			return nil, err
		}

		for i, v := range vectors {
			batch.Vectors[positions[start+i]] = v
		}
		c.logger.Debug("embedded sub-batch", "start", start, "count", len(sub))
	}

	return batch, nil
}

// EmbedQuery embeds a single question with the query attempt budget.
func (c *Coordinator) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	vectors, err := c.call(ctx, c.queryMaxAttempts, 1, func(callCtx context.Context) ([][]float32, error) {
		v, err := c.embedder.EmbedText(callCtx, text)
		if err != nil {
			return nil, err
		}
		return [][]float32{v}, nil
	})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// call runs fn under the limiter, timeout and retry policy and validates
// the result count and width.
func (c *Coordinator) call(ctx context.Context, attempts, want int, fn func(context.Context) ([][]float32, error)) ([][]float32, error) {
	var result [][]float32
	tries := 0

	err := ai.RetryWithBackoff(ctx, func() error {
		tries++
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		callCtx, cancel := c.callContext(ctx)
		defer cancel()

		vectors, err := fn(callCtx)
		if err != nil {
			c.logger.Warn("embedding call failed", "attempt", tries, "max_attempts", attempts, "err", err)
			return err
		}
		if len(vectors) != want {
			return fmt.Errorf("%w: got %d vectors for %d texts", ErrCountMismatch, len(vectors), want)
		}
		if err := c.checkDimension(vectors); err != nil {
			return err
		}
		result = vectors
		return nil
	}, attempts, c.baseDelay)

	if err != nil {
		if errors.Is(err, core.ErrConfiguration) || ctx.Err() != nil {
			return nil, err
		}
		c.logger.Error("embedding retries exhausted", "attempts", tries, "err", err)
		return nil, fmt.Errorf("%w after %d attempts: %w", ErrEmbeddingFailure, tries, err)
	}
	return result, nil
}

func (c *Coordinator) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout > 0 {
		return context.WithTimeout(ctx, c.callTimeout)
	}
	return context.WithCancel(ctx)
}

func (c *Coordinator) checkDimension(vectors [][]float32) error {
	for _, v := range vectors {
		if len(v) == 0 {
			return ErrEmptyVector
		}
		want := c.dimension.Load()
		if want == 0 && c.dimension.CompareAndSwap(0, int64(len(v))) {
			continue
		}
		want = c.dimension.Load()
		if int64(len(v)) != want {
			return fmt.Errorf("%w: %w: got %d, want %d", core.ErrConfiguration, core.ErrDimensionMismatch, len(v), want)
		}
	}
	return nil
}
