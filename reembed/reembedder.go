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
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/embedding"
	"github.com/poiesic/lectern/progress"
	"github.com/poiesic/lectern/storage"
)

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of passages to process in each batch
	BatchSize int

	// ReportInterval is how often to report progress (number of passages)
	ReportInterval int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      100,
		ReportInterval: 100,
	}
}

// Report summarizes a reembedding run.
type Report struct {
	Documents int
	Passages  int
	Elapsed   time.Duration
}

// Reembedder orchestrates the reembedding of all stored passages.
type Reembedder struct {
	store     storage.RelationalStore
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
	iterator  *PassageIterator
	logger    *slog.Logger
}

// NewReembedder creates a new reembedder.
// progress: where to write progress output (typically os.Stderr, nil to discard)
func NewReembedder(
	store storage.RelationalStore,
	coordinator *embedding.Coordinator,
	index storage.VectorIndex,
	config *Config,
	progress io.Writer,
) (*Reembedder, error) {
	if store == nil {
		return nil, ErrRelationalRequired
	}
	if coordinator == nil {
		return nil, ErrCoordinatorRequired
	}
	if index == nil {
		return nil, ErrIndexRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Reembedder{
		store:     store,
		config:    config,
		progress:  progress,
		processor: NewBatchProcessor(coordinator, index),
		iterator:  NewPassageIterator(store, config.BatchSize),
		logger:    slog.Default().With("component", "reembed"),
	}, nil
}

// Run executes the reembedding operation.
// Every passage of every READY document is embedded again and upserted
// into the index. Progress is reported to the configured writer.
func (r *Reembedder) Run(ctx context.Context) (*Report, error) {
	docs, err := r.iterator.Documents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	total, err := r.iterator.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count passages: %w", err)
	}
	report := &Report{Documents: len(docs)}
	if total == 0 {
		fmt.Fprintf(r.progress, "No passages found (0 passages)\n")
		return report, nil
	}

	fmt.Fprintf(r.progress, "Starting reembedding of %d passages from %d documents (batch size: %d)\n",
		total, len(docs), r.config.BatchSize)

	tracker := progress.New(r.progress, total, r.config.ReportInterval, "passages")
	tracker.Start()

	err = r.iterator.ForEach(ctx, func(doc *core.Document, passages []*core.Passage) error {
		n, err := r.processor.Process(ctx, doc.Id, passages)
		if err != nil {
			r.logger.Error("error reembedding batch", "document", doc.Id, "err", err)
			return fmt.Errorf("failed to process batch: %w", err)
		}
		report.Passages += n
		tracker.Increment(len(passages))
		return nil
	})
	if err != nil {
		return report, err
	}

	tracker.Finish()

	report.Elapsed = tracker.Elapsed()
	fmt.Fprintf(r.progress, "Reembedding complete. Processed %d passages in %v (%.1f passages/sec)\n",
		report.Passages, report.Elapsed.Round(time.Second), float64(report.Passages)/report.Elapsed.Seconds())

	return report, nil
}
