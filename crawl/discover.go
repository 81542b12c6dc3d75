package crawl

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"
)

const (
	DefaultDelay    = 500 * time.Millisecond
	DefaultMaxPages = 100
)

// Discoverer lists the pages under a root URL. A root ending in .xml is
// read as a sitemap; any other root is walked breadth-first, following
// links that stay on the root's host and under its path.
type Discoverer struct {
	fetcher  *Fetcher
	limiter  *rate.Limiter
	maxPages int
	logger   *slog.Logger
}

// DiscovererOption configures a Discoverer.
type DiscovererOption func(*Discoverer)

// WithDelay sets the minimum spacing between requests.
func WithDelay(d time.Duration) DiscovererOption {
	return func(c *Discoverer) {
		if d <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// WithMaxPages caps the number of discovered URLs.
func WithMaxPages(n int) DiscovererOption {
	return func(c *Discoverer) {
		if n > 0 {
			c.maxPages = n
		}
	}
}

// WithFetcher sets the fetcher used for sitemaps and link walking.
func WithFetcher(f *Fetcher) DiscovererOption {
	return func(c *Discoverer) {
		if f != nil {
			c.fetcher = f
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) DiscovererOption {
	return func(c *Discoverer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewDiscoverer creates a Discoverer.
func NewDiscoverer(opts ...DiscovererOption) *Discoverer {
	d := &Discoverer{
		fetcher:  NewFetcher(),
		limiter:  rate.NewLimiter(rate.Every(DefaultDelay), 1),
		maxPages: DefaultMaxPages,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "discoverer")
	return d
}

// Discover returns page URLs in discovery order, without duplicates.
func (d *Discoverer) Discover(ctx context.Context, root string) ([]string, error) {
	u, err := parseHTTPURL(root)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(strings.ToLower(u.Path), ".xml") {
		return d.sitemap(ctx, u.String())
	}
	return d.walk(ctx, u)
}

func (d *Discoverer) fetch(ctx context.Context, rawURL string) (*Page, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return d.fetcher.Fetch(ctx, rawURL)
}

type sitemapDoc struct {
	URLs     []sitemapLoc `xml:"url"`
	Sitemaps []sitemapLoc `xml:"sitemap"`
}

type sitemapLoc struct {
	Loc string `xml:"loc"`
}

// sitemap reads a urlset, following one level of sitemap index.
func (d *Discoverer) sitemap(ctx context.Context, rawURL string) ([]string, error) {
	doc, err := d.readSitemap(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var urls []string
	add := func(locs []sitemapLoc) bool {
		for _, l := range locs {
			loc := strings.TrimSpace(l.Loc)
			if loc == "" {
				continue
			}
			if _, ok := seen[loc]; ok {
				continue
			}
			seen[loc] = struct{}{}
			urls = append(urls, loc)
			if len(urls) >= d.maxPages {
				return false
			}
		}
		return true
	}

	if !add(doc.URLs) {
		return urls, nil
	}
	for _, child := range doc.Sitemaps {
		childDoc, err := d.readSitemap(ctx, strings.TrimSpace(child.Loc))
		if err != nil {
			d.logger.Warn("skipping child sitemap", "url", child.Loc, "err", err)
			continue
		}
		if !add(childDoc.URLs) {
			break
		}
	}
	return urls, nil
}

func (d *Discoverer) readSitemap(ctx context.Context, rawURL string) (*sitemapDoc, error) {
	page, err := d.fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	var doc sitemapDoc
	if err := xml.Unmarshal(page.Body, &doc); err != nil {
		return nil, fmt.Errorf("parsing sitemap %s: %w", rawURL, err)
	}
	return &doc, nil
}

// walk follows links breadth-first from root. Pages that fail to load are
// logged and still listed; the root itself must load.
func (d *Discoverer) walk(ctx context.Context, root *url.URL) ([]string, error) {
	root.Fragment = ""
	prefix := root.Path
	if prefix == "" {
		prefix = "/"
	}

	start := root.String()
	seen := map[string]struct{}{start: {}}
	urls := []string{start}
	queue := []string{start}

	for len(queue) > 0 && len(urls) < d.maxPages {
		current := queue[0]
		queue = queue[1:]

		page, err := d.fetch(ctx, current)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if current == start {
				return nil, err
			}
			d.logger.Warn("link walk fetch failed", "url", current, "err", err)
			continue
		}

		for _, link := range links(page) {
			if len(urls) >= d.maxPages {
				break
			}
			if link.Host != root.Host || !strings.HasPrefix(link.Path, prefix) {
				continue
			}
			s := link.String()
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			urls = append(urls, s)
			queue = append(queue, s)
		}
	}

	d.logger.Debug("link walk finished", "root", start, "count", len(urls))
	return urls, nil
}

// links returns the absolute http(s) targets of a page's anchors with
// fragments removed.
func links(page *Page) []*url.URL {
	if ct := page.ContentType; ct != "" && !strings.Contains(ct, "html") {
		return nil
	}
	base, err := url.Parse(page.URL)
	if err != nil {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil
	}

	var out []*url.URL
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		abs.Fragment = ""
		out = append(out, abs)
	})
	return out
}
