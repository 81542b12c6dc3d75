package ingestion

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDiscoverer struct {
	urls []string
}

func (d *stubDiscoverer) Discover(ctx context.Context, root string) ([]string, error) {
	return d.urls, nil
}

func page(text string) string {
	return "<html><body><p>" + text + "</p></body></html>"
}

func TestCrawler_SettlesSuccessAndFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	urls := []string{
		"https://example.com/a",
		"https://example.com/broken",
		"https://example.com/c",
	}
	fetcher := &stubFetcher{pages: map[string]string{
		urls[0]: page("Xylem carries water upward from the roots."),
		urls[2]: page("Phloem distributes sugars throughout the plant."),
	}}

	ledger, err := OpenFileLedger(filepath.Join(t.TempDir(), "crawl.ledger"), nil)
	require.NoError(t, err)
	defer ledger.Close()

	var out bytes.Buffer
	crawler, err := NewCrawler(env.pipeline, &stubDiscoverer{urls: urls}, fetcher, ledger,
		WithCrawlBatchSize(2), WithCrawlPause(0), WithProgress(&out))
	require.NoError(t, err)

	report, err := crawler.Run(ctx, "https://example.com/")
	require.NoError(t, err)
	assert.Equal(t, 3, report.Discovered)
	assert.Equal(t, 0, report.AlreadySettled)
	assert.Len(t, report.Documents, 2)
	assert.Contains(t, report.Failed, urls[1])
	assert.Contains(t, out.String(), "3/3")

	settled, err := ledger.Settled(ctx)
	require.NoError(t, err)
	assert.Len(t, settled, 3)

	for _, u := range []string{urls[0], urls[2]} {
		status, err := env.pipeline.Status(ctx, report.Documents[u])
		require.NoError(t, err)
		assert.Equal(t, core.StatusReady, status.Status)
	}
}

func TestCrawler_ResumesFromLedger(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	urls := []string{"https://example.com/a", "https://example.com/b"}
	fetcher := &stubFetcher{pages: map[string]string{
		urls[0]: page("Stomata open during the day."),
		urls[1]: page("Guard cells control the stomata."),
	}}

	_, ledger, backend, err := badger.NewMemoryIndex()
	require.NoError(t, err)
	defer backend.Close()
	require.NoError(t, ledger.MarkSettled(ctx, urls[0]))

	crawler, err := NewCrawler(env.pipeline, &stubDiscoverer{urls: urls}, fetcher, ledger, WithCrawlPause(0))
	require.NoError(t, err)

	report, err := crawler.Run(ctx, "https://example.com/")
	require.NoError(t, err)
	assert.Equal(t, 1, report.AlreadySettled)
	assert.Len(t, report.Documents, 1)
	assert.Contains(t, report.Documents, urls[1])
	assert.Equal(t, int32(1), fetcher.calls.Load())

	again, err := crawler.Run(ctx, "https://example.com/")
	require.NoError(t, err)
	assert.Equal(t, 2, again.AlreadySettled)
	assert.Empty(t, again.Documents)
}

func TestCrawler_CancelledLeavesURLsPending(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ledger, err := OpenFileLedger(filepath.Join(t.TempDir(), "crawl.ledger"), nil)
	require.NoError(t, err)
	defer ledger.Close()

	crawler, err := NewCrawler(env.pipeline, &stubDiscoverer{urls: []string{"https://example.com/a"}},
		&stubFetcher{}, ledger, WithCrawlPause(0))
	require.NoError(t, err)

	_, err = crawler.Run(ctx, "https://example.com/")
	assert.ErrorIs(t, err, context.Canceled)

	settled, err := ledger.Settled(context.Background())
	require.NoError(t, err)
	assert.Empty(t, settled)
}

func TestNewCrawler_Validation(t *testing.T) {
	env := newTestEnv(t, nil)
	ledger, err := OpenFileLedger(filepath.Join(t.TempDir(), "l"), nil)
	require.NoError(t, err)
	defer ledger.Close()

	_, err = NewCrawler(nil, nil, nil, nil)
	assert.ErrorIs(t, err, ErrPipelineRequired)

	_, err = NewCrawler(env.pipeline, &stubDiscoverer{}, &stubFetcher{}, ledger, WithCrawlBatchSize(0))
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestFileLedger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "crawl.ledger")
	ctx := context.Background()

	ledger, err := OpenFileLedger(path, nil)
	require.NoError(t, err)

	require.NoError(t, ledger.MarkSettled(ctx, "https://example.com/a"))
	require.NoError(t, ledger.MarkSettled(ctx, "https://example.com/a"))
	require.NoError(t, ledger.MarkSettled(ctx, "https://example.com/b"))
	assert.Error(t, ledger.MarkSettled(ctx, "bad\nkey"))
	require.NoError(t, ledger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a\nhttps://example.com/b\n", string(data))

	ledger, err = OpenFileLedger(path, nil)
	require.NoError(t, err)
	defer ledger.Close()

	settled, err := ledger.Settled(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{
		"https://example.com/a": {},
		"https://example.com/b": {},
	}, settled)
}

func TestFileLedger_TornTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crawl.ledger")
	require.NoError(t, os.WriteFile(path, []byte("https://example.com/a\nhttps://exa"), 0o644))
	ctx := context.Background()

	ledger, err := OpenFileLedger(path, nil)
	require.NoError(t, err)
	defer ledger.Close()

	settled, err := ledger.Settled(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"https://example.com/a": {}}, settled)

	require.NoError(t, ledger.MarkSettled(ctx, "https://example.com/b"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a\nhttps://example.com/b\n", string(data))
}

func TestFileLedger_ConcurrentAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crawl.ledger")
	ctx := context.Background()

	ledger, err := OpenFileLedger(path, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, ledger.MarkSettled(ctx, "https://example.com/"+string(rune('a'+i%26))+"/"+string(rune('0'+i/26))))
		}()
	}
	wg.Wait()
	require.NoError(t, ledger.Close())

	reopened, err := OpenFileLedger(path, nil)
	require.NoError(t, err)
	defer reopened.Close()

	settled, err := reopened.Settled(ctx)
	require.NoError(t, err)
	assert.Len(t, settled, 50)
}
