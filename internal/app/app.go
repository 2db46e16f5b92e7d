package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/deusflow/datascout/internal/briefing"
	"github.com/deusflow/datascout/internal/ckan"
	"github.com/deusflow/datascout/internal/config"
	"github.com/deusflow/datascout/internal/gemini"
	"github.com/deusflow/datascout/internal/logger"
	"github.com/deusflow/datascout/internal/metrics"
	"github.com/deusflow/datascout/internal/news"
	"github.com/deusflow/datascout/internal/openai"
	"github.com/deusflow/datascout/internal/ratelimit"
	"github.com/deusflow/datascout/internal/relevance"
	"github.com/deusflow/datascout/internal/retry"
	"github.com/deusflow/datascout/internal/rss"
	"github.com/deusflow/datascout/internal/storage"
	"github.com/deusflow/datascout/internal/telegram"
)

const maxDigestHeadlines = 5

// Notifier delivers the run digest. nil disables it.
type Notifier interface {
	SendMessage(ctx context.Context, text string) error
}

// Pipeline is one fetch, rank, publish and record pass.
type Pipeline struct {
	cfg      *config.Config
	store    storage.SeenStore
	limiter  *ratelimit.HostRateLimiter
	feeds    *rss.Fetcher
	catalogs *ckan.Fetcher
	filter   *relevance.Filter
	builder  *briefing.Builder
	notifier Notifier
	now      func() time.Time
}

func NewPipeline(cfg *config.Config, store storage.SeenStore, model relevance.Model, notifier Notifier) *Pipeline {
	limiter := ratelimit.NewHostRateLimiter(cfg.HostInterval)
	client := &http.Client{}
	retryCfg := retry.RetryConfig{
		MaxAttempts: cfg.RetryAttempts,
		Delay:       cfg.RetryDelay,
		Backoff:     true,
	}

	catalogRetry := retryCfg
	catalogRetry.Name = "catalog search"

	return &Pipeline{
		cfg:     cfg,
		store:   store,
		limiter: limiter,
		feeds: rss.NewFetcher(rss.Options{
			MaxEntries: cfg.MaxFeedEntries,
			MinItems:   cfg.MinFeedItems,
			Timeout:    cfg.FeedTimeout,
			UserAgent:  cfg.UserAgent,
			Limiter:    limiter,
			Client:     client,
		}),
		catalogs: ckan.NewFetcher(ckan.Options{
			Rows:    cfg.MaxCatalogRows,
			Timeout: cfg.CatalogTimeout,
			Limiter: limiter,
			Retry:   catalogRetry,
			Client:  client,
		}),
		filter: relevance.NewFilter(model, retryCfg, cfg.ModelTimeout),
		builder: briefing.NewBuilder(briefing.Options{
			DocsDir:      cfg.DocsDir,
			ArchiveDir:   cfg.ArchiveDir,
			ArchiveLinks: cfg.ArchiveLinks,
			SourceCount:  cfg.Sources.Count(),
		}),
		notifier: notifier,
		now:      time.Now,
	}
}

// Run executes the pipeline once. Items are marked seen only after the page
// has been written.
func (p *Pipeline) Run(ctx context.Context) error {
	started := p.now()
	cutoff := started.UTC().Add(-p.cfg.Lookback)

	logger.Info("Data Scout run starting",
		"date", started.UTC().Format("2006-01-02"),
		"lookback", p.cfg.Lookback,
		"cutoff", cutoff.Format(time.RFC3339),
		"previously_seen", p.store.Len(),
	)

	feedItems := p.feeds.FetchAll(ctx, p.cfg.Sources.Feeds, cutoff, p.store)
	logger.Info("Total new RSS items", "count", len(feedItems))

	datasetItems := p.catalogs.FetchAll(ctx, p.cfg.Sources.Catalogs, cutoff, p.store)
	logger.Info("Total new catalog items", "count", len(datasetItems))
	logger.Debug("Fetch finished", "hosts", p.limiter.Hosts())

	all := make([]news.Item, 0, len(feedItems)+len(datasetItems))
	all = append(all, feedItems...)
	all = append(all, datasetItems...)

	var scored []news.Item
	if len(all) == 0 {
		logger.Info("No new items found, building empty briefing")
	} else {
		scored = p.filter.Score(ctx, all)
		logger.Info("Items scored", "count", len(scored))
	}

	sections, err := p.builder.Build(scored)
	if err != nil {
		return fmt.Errorf("build briefing: %w", err)
	}

	if p.notifier != nil {
		p.notify(ctx, started, sections)
	}

	seenAt := p.now().UTC()
	for _, it := range all {
		p.store.Mark(it.ID, seenAt)
	}
	if err := p.store.Save(ctx); err != nil {
		return fmt.Errorf("save seen items: %w", err)
	}
	logger.Info("State saved", "seen_items", p.store.Len())

	finished := p.now()
	metrics.Global.RunFinished(finished.Sub(started), finished)
	if p.cfg.MetricsTextfile != "" {
		if err := metrics.Global.WriteTextfile(p.cfg.MetricsTextfile); err != nil {
			logger.Warn("Failed to write metrics textfile", "path", p.cfg.MetricsTextfile, "error", err)
		}
	}
	return nil
}

func (p *Pipeline) notify(ctx context.Context, at time.Time, s briefing.Sections) {
	digest := telegram.Digest{
		Date:         at.Local().Format("Monday, January 2, 2006"),
		TopStories:   len(s.TopStories),
		CanadianData: len(s.CanadianData),
		WorthALook:   len(s.WorthALook),
		PageURL:      p.cfg.PageURL,
	}
	for i, it := range s.TopStories {
		if i == maxDigestHeadlines {
			break
		}
		digest.Headlines = append(digest.Headlines, telegram.Headline{Title: it.Title, Link: it.Link})
	}

	if err := p.notifier.SendMessage(ctx, telegram.FormatDigest(digest)); err != nil {
		logger.Error("Failed to send Telegram digest", "error", err)
	}
}

// Run loads configuration, wires the real dependencies and executes one pass.
func Run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger.Debug("configuration loaded", "provider", cfg.Provider, "sources", cfg.Sources.Count(), "postgres", cfg.DatabaseURL != "")

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("Failed to close seen store", "error", err)
		}
	}()

	model, closeModel, err := newModel(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeModel()

	var notifier Notifier
	if cfg.TelegramEnabled() {
		notifier = telegram.NewClient(cfg.TelegramToken, cfg.TelegramChatID)
	}

	return NewPipeline(cfg, store, model, notifier).Run(ctx)
}

func openStore(ctx context.Context, cfg *config.Config) (storage.SeenStore, error) {
	if cfg.DatabaseURL != "" {
		logger.Info("Using PostgreSQL seen store")
		store, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL, cfg.SeenRetention)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store, nil
	}

	store, err := storage.NewFileStore(cfg.StateFile, cfg.SeenRetention)
	if err != nil {
		return nil, fmt.Errorf("open seen file: %w", err)
	}
	return store, nil
}

func newModel(ctx context.Context, cfg *config.Config) (relevance.Model, func(), error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		logger.Info("Using OpenAI ranking model", "model", cfg.OpenAIModel)
		return openai.NewClient(cfg.APIKey(), cfg.OpenAIModel, cfg.Temperature), func() {}, nil
	default:
		logger.Info("Using Gemini ranking model", "model", cfg.GeminiModel)
		client, err := gemini.NewClient(ctx, cfg.APIKey(), cfg.GeminiModel, cfg.Temperature)
		if err != nil {
			return nil, nil, err
		}
		return client, func() {
			if err := client.Close(); err != nil {
				logger.Warn("Failed to close Gemini client", "error", err)
			}
		}, nil
	}
}
