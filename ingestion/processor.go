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


package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/lectern/chunking"
	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/embedding"
	"github.com/poiesic/lectern/extract"
	"github.com/poiesic/lectern/storage"
)

// job is one accepted request and the document created for it.
type job struct {
	doc     *core.Document
	req     *Request
	chunker *chunking.Chunker
}

// processor is an internal interface for the processing half of a job.
type processor interface {
	// process takes the job's document from raw content to stored
	// passages. It does not settle the document status.
	process(ctx context.Context, j *job) error
}

// documentProcessor runs extract, chunk, embed and store for a document.
type documentProcessor struct {
	documents   storage.DocumentStore
	store       *storage.DualStore
	coordinator *embedding.Coordinator
	extractor   *extract.Extractor
	fetcher     Fetcher
	batchSize   int
	logger      *slog.Logger
}

var _ processor = (*documentProcessor)(nil)

func (dp *documentProcessor) process(ctx context.Context, j *job) error {
	doc := j.doc
	logger := dp.logger.With("document", doc.Id)

	raw, err := dp.content(ctx, j.req)
	if err != nil {
		return err
	}

	content, err := dp.extractor.Extract(doc.ContentType, raw)
	if err != nil {
		return fmt.Errorf("extracting text: %w", err)
	}
	if j.req.Title == "" && content.Title != "" && content.Title != doc.Title {
		if err := dp.documents.RenameDocument(ctx, doc.Id, content.Title); err != nil {
			return err
		}
		doc.Title = content.Title
	}

	meta := make(map[string]string, len(j.req.Metadata)+2)
	for k, v := range j.req.Metadata {
		meta[k] = v
	}
	meta[core.MetaContentType] = string(doc.ContentType)
	if doc.Source != "" {
		meta[core.MetaSource] = doc.Source
	}

	passages, err := j.chunker.Passages(doc.Id, content.Text, meta, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("chunking: %w", err)
	}
	total := len(passages)
	if total == 0 {
		return fmt.Errorf("chunking: %w", extract.ErrNoText)
	}

	if err := dp.documents.UpdateProgress(ctx, doc.Id, total, 0); err != nil {
		return err
	}
	logger.Info("processing passages", "count", total)

	stored := 0
	for start := 0; start < total; start += dp.batchSize {
		end := min(start+dp.batchSize, total)
		batch := passages[start:end]

		embedded, err := dp.coordinator.EmbedBatch(ctx, batch)
		if err != nil {
			return fmt.Errorf("embedding passages %d-%d: %w", start, end-1, err)
		}

		report, err := dp.store.Store(ctx, batch, embedded.Vectors)
		if err != nil {
			return fmt.Errorf("storing passages %d-%d: %w", start, end-1, err)
		}
		stored += report.Stored

		if err := dp.documents.UpdateProgress(ctx, doc.Id, total, stored); err != nil {
			return err
		}
		logger.Debug("stored batch", "start", start, "stored", report.Stored, "skipped", len(report.Skipped))
	}

	if stored != total {
		return fmt.Errorf("%w: %d of %d", ErrIncompleteStore, stored, total)
	}
	return nil
}

// content returns the request's bytes, fetching URL documents when needed.
func (dp *documentProcessor) content(ctx context.Context, req *Request) ([]byte, error) {
	if len(req.Content) > 0 {
		return req.Content, nil
	}
	if dp.fetcher == nil {
		return nil, ErrFetcherRequired
	}
	page, err := dp.fetcher.Fetch(ctx, req.Source)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", req.Source, err)
	}
	return page.Body, nil
}
