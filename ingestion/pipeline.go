package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"runtime"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/lectern/chunking"
	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/crawl"
	"github.com/poiesic/lectern/embedding"
	"github.com/poiesic/lectern/extract"
	"github.com/poiesic/lectern/storage"
)

// DefaultBatchSize is the number of passages embedded and stored per step.
const DefaultBatchSize = 32

// Fetcher downloads the content of URL documents.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*crawl.Page, error)
}

// Request describes a document to ingest.
type Request struct {
	// Title is optional. Without it the title embedded in the content is
	// used, falling back to the last element of Source.
	Title string
	// Source names where the content came from. For URL documents it is
	// the URL to fetch when Content is empty.
	Source        string
	ContentType   core.ContentType
	ChunkStrategy core.ChunkStrategy
	Content       []byte
	// Metadata is copied onto every passage.
	Metadata map[string]string
}

// Pipeline orchestrates document ingestion.
type Pipeline struct {
	documents   storage.DocumentStore
	store       *storage.DualStore
	coordinator *embedding.Coordinator
	fetcher     Fetcher
	pool        *ants.Pool
	proc        processor

	chunkSize    int
	chunkOverlap int
	batchSize    int
	maxSize      int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the number of documents processed concurrently.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}

		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if p.pool != nil {
			p.pool.Release()
		}
		p.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithChunking sets the chunk size and overlap in runes. Overlap only
// affects the overlapping strategy.
func WithChunking(size, overlap int) Option {
	return func(p *Pipeline) error {
		if _, err := chunking.New(core.ChunkOverlapping, size, overlap); err != nil {
			return err
		}
		p.chunkSize = size
		p.chunkOverlap = overlap
		return nil
	}
}

// WithBatchSize sets how many passages are embedded and stored per step.
func WithBatchSize(n int) Option {
	return func(p *Pipeline) error {
		if n < 1 {
			return fmt.Errorf("%w: batch size must be positive", core.ErrConfiguration)
		}
		p.batchSize = n
		return nil
	}
}

// WithFetcher sets the fetcher for URL documents submitted without content.
func WithFetcher(f Fetcher) Option {
	return func(p *Pipeline) error {
		p.fetcher = f
		return nil
	}
}

// WithMaxSize caps the raw content size in bytes.
func WithMaxSize(n int64) Option {
	return func(p *Pipeline) error {
		if n < 1 {
			return fmt.Errorf("%w: max size must be positive", core.ErrConfiguration)
		}
		p.maxSize = n
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(
	documents storage.DocumentStore,
	store *storage.DualStore,
	coordinator *embedding.Coordinator,
	opts ...Option,
) (*Pipeline, error) {
	if documents == nil {
		return nil, ErrDocumentStoreRequired
	}
	if store == nil {
		return nil, ErrDualStoreRequired
	}
	if coordinator == nil {
		return nil, ErrCoordinatorRequired
	}

	poolSize := max(runtime.NumCPU()/2, 1)
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		documents:    documents,
		store:        store,
		coordinator:  coordinator,
		pool:         pool,
		chunkSize:    chunking.DefaultSize,
		chunkOverlap: chunking.DefaultOverlap,
		batchSize:    DefaultBatchSize,
		maxSize:      extract.DefaultMaxSize,
		ctx:          ctx,
		cancel:       cancel,
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}
	p.logger = p.logger.With("component", "ingestion")

	if p.fetcher == nil {
		p.fetcher = crawl.NewFetcher(crawl.WithMaxBytes(p.maxSize))
	}

	p.proc = &documentProcessor{
		documents:   documents,
		store:       store,
		coordinator: coordinator,
		extractor:   extract.New(extract.WithMaxSize(p.maxSize)),
		fetcher:     p.fetcher,
		batchSize:   p.batchSize,
		logger:      p.logger,
	}
	return p, nil
}

// prepare validates req and creates its document in PROCESSING state.
func (p *Pipeline) prepare(ctx context.Context, req *Request) (*job, error) {
	if req == nil {
		return nil, ErrEmptyRequest
	}
	if err := core.ValidateContentType(req.ContentType); err != nil {
		return nil, err
	}
	chunker, err := chunking.New(req.ChunkStrategy, p.chunkSize, p.chunkOverlap)
	if err != nil {
		return nil, err
	}
	if len(req.Content) == 0 && (req.ContentType != core.ContentTypeURL || strings.TrimSpace(req.Source) == "") {
		return nil, fmt.Errorf("%w: %w", ErrEmptyRequest, core.ErrEmptyContent)
	}
	if int64(len(req.Content)) > p.maxSize {
		return nil, fmt.Errorf("%w: %d bytes", extract.ErrTooLarge, len(req.Content))
	}

	title := req.Title
	if title == "" && req.Source != "" {
		title = path.Base(strings.TrimRight(req.Source, "/"))
	}

	doc := &core.Document{
		Id:            core.NewID(),
		Title:         title,
		ContentType:   req.ContentType,
		ChunkStrategy: req.ChunkStrategy,
		Source:        req.Source,
	}
	if err := p.documents.CreateDocument(ctx, doc); err != nil {
		return nil, err
	}

	p.logger.Info("document created", "document", doc.Id, "content_type", doc.ContentType, "strategy", doc.ChunkStrategy)
	return &job{doc: doc, req: req, chunker: chunker}, nil
}

// Submit validates req, creates its document and schedules processing.
// Configuration problems are returned synchronously; processing failures
// are recorded on the document.
func (p *Pipeline) Submit(ctx context.Context, req *Request) (core.ID, error) {
	j, err := p.prepare(ctx, req)
	if err != nil {
		return "", err
	}

	p.wg.Add(1)
	err = p.pool.Submit(func() {
		defer p.wg.Done()
		p.run(p.ctx, j)
	})
	if err != nil {
		p.wg.Done()
		p.fail(ctx, j.doc.Id, err)
		return "", fmt.Errorf("scheduling document %s: %w", j.doc.Id, err)
	}
	return j.doc.Id, nil
}

// Ingest processes req in the calling goroutine and returns the final
// document. The returned error is the processing failure, if any; the
// document is returned whenever it was created.
func (p *Pipeline) Ingest(ctx context.Context, req *Request) (*core.Document, error) {
	j, err := p.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	runErr := p.run(ctx, j)

	doc, err := p.documents.GetDocument(context.WithoutCancel(ctx), j.doc.Id)
	if err != nil {
		return j.doc, errors.Join(runErr, err)
	}
	return doc, runErr
}

// run processes one job and settles its document.
func (p *Pipeline) run(ctx context.Context, j *job) error {
	if err := p.proc.process(ctx, j); err != nil {
		p.logger.Error("document failed", "document", j.doc.Id, "err", err)
		p.fail(ctx, j.doc.Id, err)
		return err
	}

	if err := p.documents.CompleteDocument(ctx, j.doc.Id); err != nil {
		p.logger.Error("error completing document", "document", j.doc.Id, "err", err)
		p.fail(ctx, j.doc.Id, err)
		return err
	}
	p.logger.Info("document ready", "document", j.doc.Id)
	return nil
}

// fail records cause on the document even when ctx is already cancelled.
func (p *Pipeline) fail(ctx context.Context, id core.ID, cause error) {
	if err := p.documents.FailDocument(context.WithoutCancel(ctx), id, cause.Error()); err != nil {
		p.logger.Error("error recording document failure", "document", id, "err", err)
	}
}

// Status returns the progress of a document. Unknown ids return
// storage.ErrNotFound.
func (p *Pipeline) Status(ctx context.Context, id core.ID) (*core.StatusReport, error) {
	doc, err := p.documents.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	return doc.Report(), nil
}

// Wait blocks until every submitted document has settled.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Release cancels in-flight processing and releases the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.cancel != nil {
		p.cancel()
	}
	if p.pool != nil {
		p.pool.Release()
	}
}
