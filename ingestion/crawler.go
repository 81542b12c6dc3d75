package ingestion

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/progress"
	"github.com/poiesic/lectern/storage"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultCrawlBatchSize = 5
	DefaultCrawlPause     = 2 * time.Second
)

// Discoverer lists the URLs under a root.
type Discoverer interface {
	Discover(ctx context.Context, root string) ([]string, error)
}

// CrawlReport summarizes a crawl run.
type CrawlReport struct {
	// Discovered is the number of URLs found under the root.
	Discovered int
	// AlreadySettled is the number skipped because the ledger had them.
	AlreadySettled int
	// Documents maps each successfully ingested URL to its document.
	Documents map[string]core.ID
	// Failed maps each URL that gave up to its error message.
	Failed map[string]string
}

// Crawler ingests every page of a site through a Pipeline, resuming from
// a ledger of settled URLs.
type Crawler struct {
	pipeline   *Pipeline
	discoverer Discoverer
	fetcher    Fetcher
	ledger     storage.Ledger

	batchSize int
	pause     time.Duration
	strategy  core.ChunkStrategy
	progress  io.Writer
	logger    *slog.Logger
}

// CrawlerOption configures a Crawler.
type CrawlerOption func(*Crawler) error

// WithCrawlBatchSize sets how many URLs are processed concurrently
// between pauses.
func WithCrawlBatchSize(n int) CrawlerOption {
	return func(c *Crawler) error {
		if n < 1 {
			return fmt.Errorf("%w: crawl batch size must be positive", core.ErrConfiguration)
		}
		c.batchSize = n
		return nil
	}
}

// WithCrawlPause sets the pause between batches.
func WithCrawlPause(d time.Duration) CrawlerOption {
	return func(c *Crawler) error {
		c.pause = max(d, 0)
		return nil
	}
}

// WithCrawlStrategy sets the chunk strategy for crawled pages.
func WithCrawlStrategy(s core.ChunkStrategy) CrawlerOption {
	return func(c *Crawler) error {
		if err := core.ValidateChunkStrategy(s); err != nil {
			return err
		}
		c.strategy = s
		return nil
	}
}

// WithProgress reports progress lines to w.
func WithProgress(w io.Writer) CrawlerOption {
	return func(c *Crawler) error {
		c.progress = w
		return nil
	}
}

// WithCrawlLogger sets a custom logger.
func WithCrawlLogger(logger *slog.Logger) CrawlerOption {
	return func(c *Crawler) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// NewCrawler creates a Crawler.
func NewCrawler(pipeline *Pipeline, discoverer Discoverer, fetcher Fetcher, ledger storage.Ledger, opts ...CrawlerOption) (*Crawler, error) {
	if pipeline == nil {
		return nil, ErrPipelineRequired
	}
	if discoverer == nil {
		return nil, ErrDiscovererRequired
	}
	if fetcher == nil {
		return nil, ErrFetcherRequired
	}
	if ledger == nil {
		return nil, ErrLedgerRequired
	}

	c := &Crawler{
		pipeline:   pipeline,
		discoverer: discoverer,
		fetcher:    fetcher,
		ledger:     ledger,
		batchSize:  DefaultCrawlBatchSize,
		pause:      DefaultCrawlPause,
		strategy:   core.ChunkSemantic,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.logger = c.logger.With("component", "crawler")
	return c, nil
}

// Run discovers the URLs under root and ingests those not yet settled, in
// discovery order. A URL is settled once it succeeds or fails; a
// cancelled URL is left for the next run.
func (c *Crawler) Run(ctx context.Context, root string) (*CrawlReport, error) {
	urls, err := c.discoverer.Discover(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("discovering %s: %w", root, err)
	}

	settled, err := c.ledger.Settled(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading ledger: %w", err)
	}

	report := &CrawlReport{
		Discovered: len(urls),
		Documents:  make(map[string]core.ID),
		Failed:     make(map[string]string),
	}
	pending := make([]string, 0, len(urls))
	for _, u := range urls {
		if _, ok := settled[u]; ok {
			report.AlreadySettled++
			continue
		}
		pending = append(pending, u)
	}
	c.logger.Info("crawl planned", "root", root, "discovered", len(urls), "pending", len(pending))

	tracker := progress.New(c.progress, len(pending), 1, "pages")
	tracker.Start()
	defer tracker.Finish()

	var mu sync.Mutex
	for start := 0; start < len(pending); start += c.batchSize {
		if start > 0 && c.pause > 0 {
			select {
			case <-ctx.Done():
				return report, ctx.Err()
			case <-time.After(c.pause):
			}
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}

		batch := pending[start:min(start+c.batchSize, len(pending))]
		var g errgroup.Group
		g.SetLimit(len(batch))
		for _, u := range batch {
			g.Go(func() error {
				id, err := c.ingest(ctx, u)
				if ctx.Err() != nil {
					return nil
				}

				mu.Lock()
				if err != nil {
					report.Failed[u] = err.Error()
					tracker.Fail(1)
				} else {
					report.Documents[u] = id
					tracker.Increment(1)
				}
				mu.Unlock()

				if err := c.ledger.MarkSettled(ctx, u); err != nil {
					return fmt.Errorf("settling %s: %w", u, err)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return report, err
		}
	}

	if err := ctx.Err(); err != nil {
		return report, err
	}
	c.logger.Info("crawl finished", "root", root, "ingested", len(report.Documents), "failed", len(report.Failed))
	return report, nil
}

func (c *Crawler) ingest(ctx context.Context, url string) (core.ID, error) {
	page, err := c.fetcher.Fetch(ctx, url)
	if err != nil {
		c.logger.Warn("fetch failed", "url", url, "err", err)
		return "", err
	}

	doc, err := c.pipeline.Ingest(ctx, &Request{
		Source:        url,
		ContentType:   core.ContentTypeHTML,
		ChunkStrategy: c.strategy,
		Content:       page.Body,
	})
	if err != nil {
		c.logger.Warn("ingest failed", "url", url, "err", err)
		return "", err
	}
	return doc.Id, nil
}
