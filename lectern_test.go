package lectern

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/lectern/ai/mock"
	"github.com/poiesic/lectern/config"
	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/ingestion"
	"github.com/poiesic/lectern/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleText = `Photosynthesis converts light energy into chemical energy. It happens in the chloroplasts of plant cells.

The light reactions take place in the thylakoid membranes. They produce ATP and NADPH.

The Calvin cycle runs in the stroma. It fixes carbon dioxide into sugars.`

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage.SQLitePath = filepath.Join(dir, "lectern.db")
	cfg.Storage.BadgerPath = filepath.Join(dir, "index")
	cfg.Ingestion.ChunkSize = 120
	cfg.Ingestion.ChunkOverlap = 20
	cfg.Embedding.BaseDelay = time.Millisecond
	cfg.Embedding.MinDelay = 0
	cfg.Query.BaseDelay = time.Millisecond
	cfg.Crawl.Delay = 0
	cfg.Crawl.Pause = 0
	cfg.Crawl.LedgerPath = filepath.Join(dir, "crawl.ledger")
	return cfg
}

func openTestLibrary(t *testing.T, cfg *config.Config) (*Library, *mock.MockProvider) {
	t.Helper()
	embedder := mock.NewMockEmbedder()
	embedder.Dimension = 16
	provider := mock.NewMockProviderWithServices(embedder, mock.NewMockGenerator())

	lib, err := Open(context.Background(), cfg, WithProvider(provider))
	require.NoError(t, err)
	t.Cleanup(func() { lib.Close() })
	return lib, provider
}

func textRequest() *ingestion.Request {
	return &ingestion.Request{
		Title:         "Photosynthesis",
		Source:        "photosynthesis.txt",
		ContentType:   core.ContentTypeText,
		ChunkStrategy: core.ChunkSemantic,
		Content:       []byte(sampleText),
	}
}

func TestOpen_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Index = "faiss"

	lib, err := Open(context.Background(), cfg, WithProvider(mock.NewMockProvider()))
	assert.ErrorIs(t, err, core.ErrConfiguration)
	assert.Nil(t, lib)
}

func TestOpen_BadgerPathIsFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.BadgerPath = cfg.Storage.SQLitePath
	provider := mock.NewMockProviderWithServices(mock.NewMockEmbedder(), mock.NewMockGenerator())

	// SQLite creates the file first, so badger cannot use it as a directory.
	_, err := Open(context.Background(), cfg, WithProvider(provider))
	assert.Error(t, err)
	assert.True(t, provider.Closed())
}

func TestLibrary_IngestAndQuery(t *testing.T) {
	lib, provider := openTestLibrary(t, testConfig(t))
	ctx := context.Background()

	doc, err := lib.IngestDocument(ctx, textRequest())
	require.NoError(t, err)
	assert.Equal(t, core.StatusReady, doc.Status)
	assert.Greater(t, doc.TotalChunks, 1)

	answer, err := lib.QueryFull(ctx, lib.NewFullQuery(doc.Id, "Where does the Calvin cycle run?"))
	require.NoError(t, err)
	assert.Equal(t, mock.DefaultAnswer, answer.Text)
	assert.NotEmpty(t, answer.Citations)
	assert.LessOrEqual(t, len(answer.Citations), lib.Config().Query.MaxResults)

	prompt := provider.GetMockGenerator().Prompts()[0]
	assert.Contains(t, prompt, "Where does the Calvin cycle run?")

	selected, err := lib.QuerySelected(ctx, "The sky is blue.", "What color is the sky?", 0)
	require.NoError(t, err)
	assert.Equal(t, core.ModeSelectedText, selected.Mode)
	assert.Empty(t, selected.Citations)

	_, err = lib.QueryFull(ctx, lib.NewFullQuery(core.NewID(), "anything"))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLibrary_SubmitAndStatus(t *testing.T) {
	lib, _ := openTestLibrary(t, testConfig(t))
	ctx := context.Background()

	id, err := lib.SubmitDocument(ctx, textRequest())
	require.NoError(t, err)
	lib.Wait()

	report, err := lib.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusReady, report.Status)
	assert.Equal(t, report.TotalChunks, report.ProcessedChunks)

	docs, err := lib.Documents(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, id, docs[0].Id)
}

func TestLibrary_Reembed(t *testing.T) {
	lib, provider := openTestLibrary(t, testConfig(t))
	ctx := context.Background()

	doc, err := lib.IngestDocument(ctx, textRequest())
	require.NoError(t, err)
	before := provider.GetMockEmbedder().CallCount()

	var out bytes.Buffer
	report, err := lib.Reembed(ctx, &out)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Documents)
	assert.Equal(t, doc.TotalChunks, report.Passages)
	assert.Greater(t, provider.GetMockEmbedder().CallCount(), before)
	assert.Contains(t, out.String(), "Reembedding complete")
}

func TestLibrary_Crawl(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/docs/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><p>Index of plant topics.</p><a href="/docs/roots">roots</a><a href="/docs/leaves">leaves</a><a href="/elsewhere">out</a></body></html>`)
	})
	mux.HandleFunc("/docs/roots", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><p>Roots absorb water and minerals.</p></body></html>`)
	})
	mux.HandleFunc("/docs/leaves", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><p>Leaves capture sunlight.</p></body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	lib, _ := openTestLibrary(t, testConfig(t))
	ctx := context.Background()

	report, err := lib.Crawl(ctx, srv.URL+"/docs/", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Discovered)
	assert.Len(t, report.Documents, 3)
	assert.Empty(t, report.Failed)

	again, err := lib.Crawl(ctx, srv.URL+"/docs/", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, again.AlreadySettled)
	assert.Empty(t, again.Documents)

	docs, err := lib.Documents(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 3)
}

func TestLibrary_Close(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	provider := mock.NewMockProviderWithServices(embedder, mock.NewMockGenerator())
	lib, err := Open(context.Background(), testConfig(t), WithProvider(provider))
	require.NoError(t, err)

	assert.NoError(t, lib.Close())
	assert.True(t, provider.Closed())
}
