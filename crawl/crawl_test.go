package crawl

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var srv *httptest.Server

	page := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, body)
		}
	}

	mux.HandleFunc("/docs/", page(`<html><body>
		<a href="/docs/a">A</a>
		<a href="b#section">B</a>
		<a href="/blog/post">outside prefix</a>
		<a href="mailto:x@example.com">mail</a>
		<a href="https://other.example.com/docs/c">other host</a>
	</body></html>`))
	mux.HandleFunc("/docs/a", page(`<a href="/docs/b">B again</a><a href="/docs/c">C</a>`))
	mux.HandleFunc("/docs/b", page(`<p>leaf</p>`))
	mux.HandleFunc("/docs/c", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>%[1]s/docs/a</loc></url>
  <url><loc> %[1]s/docs/b </loc></url>
  <url><loc>%[1]s/docs/a</loc></url>
</urlset>`, srv.URL)
	})
	mux.HandleFunc("/index.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<sitemapindex><sitemap><loc>%s/sitemap.xml</loc></sitemap></sitemapindex>`, srv.URL)
	})

	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetcher_Fetch(t *testing.T) {
	srv := newSite(t)
	f := NewFetcher()

	page, err := f.Fetch(context.Background(), srv.URL+"/docs/b")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/docs/b", page.URL)
	assert.Contains(t, string(page.Body), "leaf")
	assert.Contains(t, page.ContentType, "text/html")
}

func TestFetcher_Errors(t *testing.T) {
	srv := newSite(t)
	ctx := context.Background()

	_, err := NewFetcher().Fetch(ctx, srv.URL+"/docs/c")
	assert.ErrorIs(t, err, ErrUnexpectedStatus)

	_, err = NewFetcher().Fetch(ctx, "ftp://example.com/file")
	assert.ErrorIs(t, err, ErrInvalidURL)

	_, err = NewFetcher(WithMaxBytes(4)).Fetch(ctx, srv.URL+"/docs/b")
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestDiscover_LinkWalk(t *testing.T) {
	srv := newSite(t)
	d := NewDiscoverer(WithDelay(0))

	urls, err := d.Discover(context.Background(), srv.URL+"/docs/")
	require.NoError(t, err)
	assert.Equal(t, []string{
		srv.URL + "/docs/",
		srv.URL + "/docs/a",
		srv.URL + "/docs/b",
		srv.URL + "/docs/c",
	}, urls)
}

func TestDiscover_MaxPages(t *testing.T) {
	srv := newSite(t)
	d := NewDiscoverer(WithDelay(0), WithMaxPages(2))

	urls, err := d.Discover(context.Background(), srv.URL+"/docs/")
	require.NoError(t, err)
	assert.Len(t, urls, 2)
}

func TestDiscover_Sitemap(t *testing.T) {
	srv := newSite(t)
	d := NewDiscoverer(WithDelay(0))

	urls, err := d.Discover(context.Background(), srv.URL+"/sitemap.xml")
	require.NoError(t, err)
	assert.Equal(t, []string{srv.URL + "/docs/a", srv.URL + "/docs/b"}, urls)

	urls, err = d.Discover(context.Background(), srv.URL+"/index.xml")
	require.NoError(t, err)
	assert.Equal(t, []string{srv.URL + "/docs/a", srv.URL + "/docs/b"}, urls)
}

func TestDiscover_RootFailure(t *testing.T) {
	srv := newSite(t)
	d := NewDiscoverer(WithDelay(0))

	_, err := d.Discover(context.Background(), srv.URL+"/docs/c")
	assert.ErrorIs(t, err, ErrUnexpectedStatus)

	_, err = d.Discover(context.Background(), "not a url")
	assert.ErrorIs(t, err, ErrInvalidURL)
}
