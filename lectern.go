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


// Package lectern ingests documents and answers questions about them with
// retrieval-augmented generation.
package lectern

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/poiesic/lectern/ai"
	"github.com/poiesic/lectern/ai/openai"
	"github.com/poiesic/lectern/config"
	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/crawl"
	"github.com/poiesic/lectern/embedding"
	"github.com/poiesic/lectern/ingestion"
	"github.com/poiesic/lectern/rag"
	"github.com/poiesic/lectern/reembed"
	"github.com/poiesic/lectern/storage"
	"github.com/poiesic/lectern/storage/badger"
	"github.com/poiesic/lectern/storage/milvus"
	"github.com/poiesic/lectern/storage/postgres"
	"github.com/poiesic/lectern/storage/sqlite"
)

// Library is an open lectern instance.
type Library struct {
	config      *config.Config
	provider    ai.AIProvider
	backend     *badger.Backend
	relational  storage.RelationalStore
	index       storage.VectorIndex
	store       *storage.DualStore
	coordinator *embedding.Coordinator
	fetcher     *crawl.Fetcher
	pipeline    *ingestion.Pipeline
	service     *rag.Service
	closers     []io.Closer
	logger      *slog.Logger
}

// Option configures Open.
type Option func(*options)

type options struct {
	provider ai.AIProvider
	monitor  rag.QueryMonitor
	logger   *slog.Logger
}

// WithProvider replaces the OpenAI-compatible provider built from the
// configuration.
func WithProvider(p ai.AIProvider) Option {
	return func(o *options) {
		o.provider = p
	}
}

// WithQueryMonitor observes every question.
func WithQueryMonitor(m rag.QueryMonitor) Option {
	return func(o *options) {
		o.monitor = m
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Open validates cfg and wires the stores, AI provider and pipelines.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (lib *Library, err error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	l := &Library{config: cfg, logger: o.logger.With("component", "lectern")}
	defer func() {
		if err != nil {
			l.Close()
		}
	}()

	l.provider = o.provider
	if l.provider == nil {
		l.provider, err = openai.NewProvider(cfg.AIProviderConfig())
		if err != nil {
			return nil, err
		}
	}

	if err = l.openStores(ctx); err != nil {
		return nil, err
	}

	l.coordinator, err = embedding.NewCoordinator(l.provider.Embedder(),
		embedding.WithBatchSize(cfg.Embedding.BatchSize),
		embedding.WithMaxAttempts(cfg.Embedding.MaxAttempts, cfg.Embedding.QueryMaxAttempts),
		embedding.WithBaseDelay(cfg.Embedding.BaseDelay),
		embedding.WithMinDelay(cfg.Embedding.MinDelay),
		embedding.WithCallTimeout(cfg.Embedding.CallTimeout),
		embedding.WithDimension(cfg.AI.Dimension),
		embedding.WithLogger(o.logger),
	)
	if err != nil {
		return nil, err
	}

	l.fetcher = crawl.NewFetcher(crawl.WithMaxBytes(cfg.Ingestion.MaxSizeBytes))

	pipelineOpts := []ingestion.Option{
		ingestion.WithChunking(cfg.Ingestion.ChunkSize, cfg.Ingestion.ChunkOverlap),
		ingestion.WithBatchSize(cfg.Ingestion.BatchSize),
		ingestion.WithMaxSize(cfg.Ingestion.MaxSizeBytes),
		ingestion.WithFetcher(l.fetcher),
		ingestion.WithLogger(o.logger),
	}
	if cfg.Ingestion.PoolSize > 0 {
		pipelineOpts = append(pipelineOpts, ingestion.WithPoolSize(cfg.Ingestion.PoolSize))
	}
	l.pipeline, err = ingestion.NewPipeline(l.relational, l.store, l.coordinator, pipelineOpts...)
	if err != nil {
		return nil, err
	}

	retriever, err := rag.NewRetriever(l.coordinator, l.store)
	if err != nil {
		return nil, err
	}
	l.service, err = rag.NewService(retriever, l.provider.Generator(), l.relational,
		rag.WithMaxTokens(cfg.Query.MaxTokens),
		rag.WithRetry(cfg.Query.MaxAttempts, cfg.Query.BaseDelay),
		rag.WithCallTimeout(cfg.Query.CallTimeout),
		rag.WithMonitor(o.monitor),
		rag.WithLogger(o.logger),
	)
	if err != nil {
		return nil, err
	}

	l.logger.Info("library open",
		"relational", cfg.Storage.Relational, "index", cfg.Storage.Index,
		"embedding_model", cfg.AI.EmbeddingModel, "generation_model", cfg.AI.GenerationModel)
	return l, nil
}

// openStores opens the configured relational store and vector index.
func (l *Library) openStores(ctx context.Context) error {
	s := l.config.Storage

	var pg *postgres.Store
	switch s.Relational {
	case config.BackendSQLite:
		store, err := sqlite.Open(s.SQLitePath,
			sqlite.WithLogger(l.logger), sqlite.WithRefreshTimestamps(s.RefreshTimestamps))
		if err != nil {
			return err
		}
		l.relational = store
	case config.BackendPostgres:
		store, err := postgres.Open(ctx, s.PostgresDSN,
			postgres.WithLogger(l.logger), postgres.WithRefreshTimestamps(s.RefreshTimestamps))
		if err != nil {
			return err
		}
		pg = store
		l.relational = store
	}

	switch s.Index {
	case config.BackendBadger:
		backend, err := badger.OpenBackend(s.BadgerPath, s.BadgerPath == "",
			badger.WithSyncWrites(s.BadgerSyncWrites))
		if err != nil {
			return err
		}
		l.backend = backend
		index, err := badger.NewVectorIndex(backend)
		if err != nil {
			return err
		}
		l.index = index
	case config.BackendPostgres:
		if pg == nil {
			store, err := postgres.Open(ctx, s.PostgresDSN, postgres.WithLogger(l.logger))
			if err != nil {
				return err
			}
			pg = store
			l.closers = append(l.closers, store)
		}
		index, err := postgres.NewVectorIndex(ctx, pg)
		if err != nil {
			return err
		}
		l.index = index
	case config.BackendMilvus:
		index, err := milvus.Open(ctx, s.MilvusAddress,
			milvus.WithCollection(s.MilvusCollection), milvus.WithLogger(l.logger))
		if err != nil {
			return err
		}
		l.index = index
	}

	store, err := storage.NewDualStore(l.index, l.relational, storage.WithLogger(l.logger))
	if err != nil {
		return err
	}
	l.store = store
	return nil
}

// Config returns the configuration the library was opened with.
func (l *Library) Config() *config.Config {
	return l.config
}

// SubmitDocument validates req and schedules its ingestion.
func (l *Library) SubmitDocument(ctx context.Context, req *ingestion.Request) (core.ID, error) {
	return l.pipeline.Submit(ctx, req)
}

// IngestDocument ingests req before returning the settled document.
func (l *Library) IngestDocument(ctx context.Context, req *ingestion.Request) (*core.Document, error) {
	return l.pipeline.Ingest(ctx, req)
}

// Status reports a document's progress.
func (l *Library) Status(ctx context.Context, id core.ID) (*core.StatusReport, error) {
	return l.pipeline.Status(ctx, id)
}

// Documents lists every document, newest first.
func (l *Library) Documents(ctx context.Context) ([]*core.Document, error) {
	return l.relational.ListDocuments(ctx)
}

// QueryFull answers a question from one document's passages.
func (l *Library) QueryFull(ctx context.Context, q *rag.FullQuery) (*core.Answer, error) {
	return l.service.QueryFull(ctx, q)
}

// QuerySelected answers a question about selectedText alone.
func (l *Library) QuerySelected(ctx context.Context, selectedText, question string, temperature float64) (*core.Answer, error) {
	return l.service.QuerySelected(ctx, selectedText, question, temperature)
}

// NewFullQuery returns a query carrying the configured result count and
// temperature.
func (l *Library) NewFullQuery(documentID core.ID, question string) *rag.FullQuery {
	q := rag.NewFullQuery(documentID, question)
	q.MaxResults = l.config.Query.MaxResults
	q.Temperature = l.config.Query.Temperature
	return q
}

// Crawl ingests every page under root, skipping pages settled by earlier
// runs. Progress lines go to progress when it is non-nil.
func (l *Library) Crawl(ctx context.Context, root string, progress io.Writer) (*ingestion.CrawlReport, error) {
	cfg := l.config.Crawl

	var ledger storage.Ledger
	switch {
	case cfg.LedgerPath != "":
		fl, err := ingestion.OpenFileLedger(cfg.LedgerPath, l.logger)
		if err != nil {
			return nil, err
		}
		defer fl.Close()
		ledger = fl
	case l.backend != nil:
		ledger = badger.NewLedger(l.backend)
	default:
		return nil, fmt.Errorf("%w: crawl.ledger_path is required without a badger index", core.ErrConfiguration)
	}

	discoverer := crawl.NewDiscoverer(
		crawl.WithDelay(cfg.Delay),
		crawl.WithMaxPages(cfg.MaxPages),
		crawl.WithFetcher(l.fetcher),
		crawl.WithLogger(l.logger),
	)
	crawler, err := ingestion.NewCrawler(l.pipeline, discoverer, l.fetcher, ledger,
		ingestion.WithCrawlBatchSize(cfg.BatchSize),
		ingestion.WithCrawlPause(cfg.Pause),
		ingestion.WithCrawlStrategy(core.ChunkStrategy(cfg.Strategy)),
		ingestion.WithProgress(progress),
		ingestion.WithCrawlLogger(l.logger),
	)
	if err != nil {
		return nil, err
	}
	return crawler.Run(ctx, root)
}

// Reembed rebuilds the vector index entries of every READY document.
func (l *Library) Reembed(ctx context.Context, progress io.Writer) (*reembed.Report, error) {
	r, err := reembed.NewReembedder(l.relational, l.coordinator, l.index, &reembed.Config{
		BatchSize:      l.config.Embedding.BatchSize,
		ReportInterval: l.config.Embedding.BatchSize,
	}, progress)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx)
}

// Wait blocks until every submitted document has settled.
func (l *Library) Wait() {
	if l.pipeline != nil {
		l.pipeline.Wait()
	}
}

// Close stops ingestion and releases stores and the AI provider.
func (l *Library) Close() error {
	var errs []error

	if l.pipeline != nil {
		l.pipeline.Release()
	}
	if l.provider != nil {
		if err := l.provider.Close(); err != nil {
			l.logger.Error("error closing AI provider", "err", err)
			errs = append(errs, err)
		}
	}

	switch {
	case l.store != nil:
		if err := l.store.Close(); err != nil {
			l.logger.Error("error closing stores", "err", err)
			errs = append(errs, err)
		}
	default:
		if l.index != nil {
			errs = append(errs, l.index.Close())
		}
		if l.relational != nil {
			errs = append(errs, l.relational.Close())
		}
	}

	for _, c := range l.closers {
		errs = append(errs, c.Close())
	}
	if l.backend != nil {
		if err := l.backend.Close(); err != nil {
			l.logger.Error("error closing backend storage", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
