package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/datascout/internal/config"
	"github.com/deusflow/datascout/internal/news"
	"github.com/deusflow/datascout/internal/storage"
)

type stubModel struct {
	reply string
	calls int
}

func (m *stubModel) Generate(_ context.Context, prompt string) (string, error) {
	m.calls++
	return m.reply, nil
}

type recordingNotifier struct {
	messages []string
}

func (n *recordingNotifier) SendMessage(_ context.Context, text string) error {
	n.messages = append(n.messages, text)
	return nil
}

type failingNotifier struct {
	calls int
}

func (n *failingNotifier) SendMessage(context.Context, string) error {
	n.calls++
	return errors.New("telegram API error: status 502")
}

const feedDoc = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Wire</title><link>https://wire.example</link><description>d</description>
<item><title>Open data portal launches</title><link>https://wire.example/portal</link><description>A new &lt;b&gt;portal&lt;/b&gt;.</description><pubDate>%s</pubDate></item>
<item><title>Celebrity gossip roundup</title><link>https://wire.example/gossip</link><description>Nothing to see.</description><pubDate>%s</pubDate></item>
</channel></rss>`

const modelReply = "```json\n" + `[
  {"index": 0, "summary": "A national portal went live.", "why": "New public data", "score": 4, "location": "world", "category": "data"},
  {"index": 1, "summary": "Gossip.", "why": "Not relevant", "score": 2, "location": "WORLD", "category": "OTHER"}
]` + "\n```"

func newTestPipeline(t *testing.T, model *stubModel, notifier Notifier) (*Pipeline, *config.Config, storage.SeenStore) {
	t.Helper()

	pub := time.Now().UTC().Add(-time.Hour).Format(time.RFC1123Z)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprintf(w, feedDoc, pub, pub)
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	cfg := &config.Config{
		Provider:       config.ProviderGemini,
		Sources:        config.Sources{Feeds: []config.Feed{{Name: "Wire", URL: srv.URL + "/feed.xml"}}},
		Lookback:       48 * time.Hour,
		MinFeedItems:   1,
		MaxFeedEntries: 20,
		MaxCatalogRows: 20,
		UserAgent:      "DataScout/1.0",
		FeedTimeout:    5 * time.Second,
		CatalogTimeout: 5 * time.Second,
		ModelTimeout:   5 * time.Second,
		RetryAttempts:  1,
		StateFile:      filepath.Join(dir, "data", "seen_items.json"),
		SeenRetention:  14 * 24 * time.Hour,
		DocsDir:        filepath.Join(dir, "docs"),
		ArchiveDir:     filepath.Join(dir, "docs", "archive"),
		ArchiveLinks:   30,
		PageURL:        "https://scout.example/",
	}

	store, err := storage.NewFileStore(cfg.StateFile, cfg.SeenRetention)
	require.NoError(t, err)

	return NewPipeline(cfg, store, model, notifier), cfg, store
}

func TestPipelineEndToEnd(t *testing.T) {
	model := &stubModel{reply: modelReply}
	notifier := &recordingNotifier{}
	p, cfg, store := newTestPipeline(t, model, notifier)

	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, 1, model.calls)

	page, err := os.ReadFile(filepath.Join(cfg.DocsDir, "index.html"))
	require.NoError(t, err)
	html := string(page)

	top := html[strings.Index(html, `id="top-stories"`):strings.Index(html, `id="canadian-data"`)]
	assert.Contains(t, top, "Open data portal launches")
	assert.Contains(t, top, "A national portal went live.")
	assert.NotContains(t, html, "Celebrity gossip roundup")

	archives, err := os.ReadDir(cfg.ArchiveDir)
	require.NoError(t, err)
	assert.Len(t, archives, 1)

	// every fetched item is recorded, including the one left off the page
	assert.Equal(t, 2, store.Len())
	assert.True(t, store.Has(news.ItemID("Celebrity gossip roundup", "https://wire.example/gossip")))
	_, err = os.Stat(cfg.StateFile)
	require.NoError(t, err)

	require.Len(t, notifier.messages, 1)
	assert.Contains(t, notifier.messages[0], "Top stories: 1")
	assert.Contains(t, notifier.messages[0], "Open data portal launches")
	assert.Contains(t, notifier.messages[0], "https://scout.example/")
}

func TestPipelineSecondRunSkipsSeen(t *testing.T) {
	model := &stubModel{reply: modelReply}
	p, cfg, _ := newTestPipeline(t, model, nil)

	require.NoError(t, p.Run(context.Background()))
	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, 1, model.calls)

	page, err := os.ReadFile(filepath.Join(cfg.DocsDir, "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(page), "Nothing stood out today.")
}

func TestPipelineFallbackWhenModelReplyIsGarbage(t *testing.T) {
	model := &stubModel{reply: "I cannot help with that."}
	p, cfg, _ := newTestPipeline(t, model, nil)

	require.NoError(t, p.Run(context.Background()))

	page, err := os.ReadFile(filepath.Join(cfg.DocsDir, "index.html"))
	require.NoError(t, err)
	// neutral score 3 backfills both items into top stories
	assert.Contains(t, string(page), "Open data portal launches")
	assert.Contains(t, string(page), "Celebrity gossip roundup")
}

func TestPipelineDoesNotMarkSeenWhenPageFails(t *testing.T) {
	model := &stubModel{reply: modelReply}
	p, cfg, store := newTestPipeline(t, model, nil)

	// a regular file where the docs directory should be
	require.NoError(t, os.WriteFile(cfg.DocsDir, []byte("x"), 0o644))

	err := p.Run(context.Background())
	require.Error(t, err)
	assert.Zero(t, store.Len())
	_, statErr := os.Stat(cfg.StateFile)
	assert.True(t, os.IsNotExist(statErr))
}

func TestPipelineNotifierFailureIsNotFatal(t *testing.T) {
	notifier := &failingNotifier{}
	p, cfg, store := newTestPipeline(t, &stubModel{reply: modelReply}, notifier)

	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, 1, notifier.calls)

	// the page and the seen-state are still written
	_, err := os.Stat(filepath.Join(cfg.DocsDir, "index.html"))
	require.NoError(t, err)
	assert.Equal(t, 2, store.Len())
	_, err = os.Stat(cfg.StateFile)
	assert.NoError(t, err)
}

func TestPipelineWritesMetricsTextfile(t *testing.T) {
	p, cfg, _ := newTestPipeline(t, &stubModel{reply: modelReply}, nil)
	cfg.MetricsTextfile = filepath.Join(t.TempDir(), "textfile", "datascout.prom")

	require.NoError(t, p.Run(context.Background()))

	body, err := os.ReadFile(cfg.MetricsTextfile)
	require.NoError(t, err)
	assert.Contains(t, string(body), "datascout_last_success_timestamp_seconds")
	assert.Contains(t, string(body), `datascout_section_items{section="top_stories"} 1`)
}
