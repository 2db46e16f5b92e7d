package rss

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/deusflow/datascout/internal/config"
	"github.com/deusflow/datascout/internal/htmltext"
	"github.com/deusflow/datascout/internal/logger"
	"github.com/deusflow/datascout/internal/metrics"
	"github.com/deusflow/datascout/internal/news"
	"github.com/deusflow/datascout/internal/ratelimit"
)

const summaryLimit = 500

// SeenChecker reports whether an item id was processed by an earlier run.
type SeenChecker interface {
	Has(id string) bool
}

type Options struct {
	MaxEntries int           // entries read per feed
	MinItems   int           // backfill threshold
	Timeout    time.Duration // per-feed request timeout
	UserAgent  string
	Limiter    *ratelimit.HostRateLimiter
	Client     *http.Client
}

type Fetcher struct {
	opts   Options
	client *http.Client
	parser *gofeed.Parser
}

func NewFetcher(opts Options) *Fetcher {
	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}
	return &Fetcher{
		opts:   opts,
		client: client,
		parser: gofeed.NewParser(),
	}
}

// FetchAll reads every feed and returns the unseen items inside the lookback
// window (entries without a date count as inside it). When fewer than
// MinItems qualify, the newest out-of-window unseen entries are appended
// until the threshold is met. A failing feed is logged and skipped.
func (f *Fetcher) FetchAll(ctx context.Context, feeds []config.Feed, cutoff time.Time, seen SeenChecker) []news.Item {
	var recent, older []news.Item
	collected := make(map[string]struct{})
	successCount := 0

	for _, feed := range feeds {
		parsed, err := f.fetchFeed(ctx, feed)
		if err != nil {
			logger.Error("error fetching feed", "source", feed.Name, "url", feed.URL, "error", err)
			metrics.Global.SourceError(metrics.KindFeed)
			continue
		}
		successCount++

		entries := parsed.Items
		if f.opts.MaxEntries > 0 && len(entries) > f.opts.MaxEntries {
			entries = entries[:f.opts.MaxEntries]
		}

		for _, entry := range entries {
			item, ok := toItem(feed, entry)
			if !ok {
				continue
			}
			if seen.Has(item.ID) {
				metrics.Global.DuplicateFiltered()
				continue
			}
			if _, dup := collected[item.ID]; dup {
				continue
			}
			collected[item.ID] = struct{}{}

			if item.Published == nil || !item.Published.Before(cutoff) {
				recent = append(recent, item)
			} else {
				older = append(older, item)
			}
		}
		logger.Info("fetched feed", "source", feed.Name, "entries", len(parsed.Items))
	}

	logger.Info("processed feeds", "ok", successCount, "total", len(feeds), "in_window", len(recent), "older", len(older))
	items := Backfill(recent, older, f.opts.MinItems)
	metrics.Global.ItemsFetched(metrics.KindFeed, len(items))
	return items
}

// Backfill pads recent with the newest items of older until it holds minItems
// items. Items without a date sort last.
func Backfill(recent, older []news.Item, minItems int) []news.Item {
	if len(recent) >= minItems || len(older) == 0 {
		return recent
	}

	sorted := make([]news.Item, len(older))
	copy(sorted, older)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].Published, sorted[j].Published
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return a.After(*b)
	})

	needed := minItems - len(recent)
	if needed > len(sorted) {
		needed = len(sorted)
	}
	return append(recent, sorted[:needed]...)
}

func (f *Fetcher) fetchFeed(ctx context.Context, feed config.Feed) (*gofeed.Feed, error) {
	if err := f.opts.Limiter.WaitForHost(ctx, feed.URL); err != nil {
		return nil, fmt.Errorf("rate limiting: %w", err)
	}

	if f.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("request creation failed: %w", err)
	}
	if f.opts.UserAgent != "" {
		req.Header.Set("User-Agent", f.opts.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	parsed, err := f.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("feed parse failed: %w", err)
	}
	return parsed, nil
}

func toItem(feed config.Feed, entry *gofeed.Item) (news.Item, bool) {
	title := strings.TrimSpace(entry.Title)
	link := strings.TrimSpace(entry.Link)
	if title == "" || link == "" {
		return news.Item{}, false
	}

	summary := entry.Description
	if summary == "" {
		summary = entry.Content
	}

	return news.Item{
		ID:             news.ItemID(title, link),
		Title:          title,
		Link:           link,
		Source:         feed.Name,
		SummaryRaw:     news.Truncate(htmltext.PlainText(summary), summaryLimit),
		IsCanadianData: feed.Canadian,
		Published:      publishDate(entry),
	}, true
}

func publishDate(entry *gofeed.Item) *time.Time {
	var t *time.Time
	switch {
	case entry.PublishedParsed != nil:
		t = entry.PublishedParsed
	case entry.UpdatedParsed != nil:
		t = entry.UpdatedParsed
	default:
		return nil
	}
	utc := t.UTC()
	return &utc
}
