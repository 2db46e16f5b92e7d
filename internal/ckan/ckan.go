package ckan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/deusflow/datascout/internal/config"
	"github.com/deusflow/datascout/internal/htmltext"
	"github.com/deusflow/datascout/internal/logger"
	"github.com/deusflow/datascout/internal/metrics"
	"github.com/deusflow/datascout/internal/news"
	"github.com/deusflow/datascout/internal/ratelimit"
	"github.com/deusflow/datascout/internal/retry"
)

const (
	summaryLimit = 500
	// CKAN's Solr filter wants a UTC timestamp without offset.
	cutoffLayout = "2006-01-02T15:04:05"
)

type SeenChecker interface {
	Has(id string) bool
}

type Options struct {
	Rows    int
	Timeout time.Duration
	Limiter *ratelimit.HostRateLimiter
	Retry   retry.RetryConfig
	Client  *http.Client
}

type Fetcher struct {
	opts   Options
	client *http.Client
}

func NewFetcher(opts Options) *Fetcher {
	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}
	return &Fetcher{opts: opts, client: client}
}

// searchResponse is the subset of package_search we read.
type searchResponse struct {
	Success bool `json:"success"`
	Result  struct {
		Count   int   `json:"count"`
		Results []pkg `json:"results"`
	} `json:"result"`
}

type pkg struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Title   json.RawMessage `json:"title"`
	Excerpt json.RawMessage `json:"excerpt"`
	Notes   json.RawMessage `json:"notes"`
}

// FetchAll returns the unseen datasets modified after cutoff across all
// catalogs. A failing catalog is logged and contributes nothing.
func (f *Fetcher) FetchAll(ctx context.Context, catalogs []config.Catalog, cutoff time.Time, seen SeenChecker) []news.Item {
	var items []news.Item
	collected := make(map[string]struct{})

	for _, cat := range catalogs {
		packages, err := f.search(ctx, cat, cutoff)
		if err != nil {
			logger.Error("error fetching catalog", "source", cat.Name, "error", err)
			metrics.Global.SourceError(metrics.KindDataset)
			continue
		}

		for _, p := range packages {
			item := toItem(cat, p)
			if seen.Has(item.ID) {
				metrics.Global.DuplicateFiltered()
				continue
			}
			if _, dup := collected[item.ID]; dup {
				continue
			}
			collected[item.ID] = struct{}{}
			items = append(items, item)
		}
		logger.Info("fetched catalog", "source", cat.Name, "datasets", len(packages))
	}

	metrics.Global.ItemsFetched(metrics.KindDataset, len(items))
	return items
}

// SearchURL builds the package_search query for datasets modified since cutoff.
func SearchURL(searchURL string, cutoff time.Time, rows int) (string, error) {
	u, err := url.Parse(searchURL)
	if err != nil {
		return "", fmt.Errorf("invalid search url: %w", err)
	}
	q := u.Query()
	q.Set("sort", "metadata_modified desc")
	q.Set("rows", strconv.Itoa(rows))
	q.Set("fq", fmt.Sprintf("metadata_modified:[%sZ TO NOW]", cutoff.UTC().Format(cutoffLayout)))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (f *Fetcher) search(ctx context.Context, cat config.Catalog, cutoff time.Time) ([]pkg, error) {
	rows := f.opts.Rows
	if rows <= 0 {
		rows = 20
	}
	target, err := SearchURL(cat.SearchURL, cutoff, rows)
	if err != nil {
		return nil, err
	}

	cfg := f.opts.Retry
	cfg.Name = "ckan " + cat.Name

	var resp searchResponse
	err = retry.WithRetry(ctx, cfg, func(ctx context.Context) error {
		return f.get(ctx, target, &resp)
	})
	if err != nil {
		return nil, err
	}
	return resp.Result.Results, nil
}

func (f *Fetcher) get(ctx context.Context, target string, out *searchResponse) error {
	if err := f.opts.Limiter.WaitForHost(ctx, target); err != nil {
		return retry.Permanent(fmt.Errorf("rate limiting: %w", err))
	}

	if f.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return retry.Permanent(fmt.Errorf("request creation failed: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("catalog API %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
		if resp.StatusCode >= 500 {
			return err
		}
		return retry.Permanent(err)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return retry.Permanent(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func toItem(cat config.Catalog, p pkg) news.Item {
	name := p.Name
	if name == "" {
		name = p.ID
	}

	title := Localized(p.Title, name)
	link := strings.TrimRight(cat.BaseURL, "/") + "/" + name

	excerptRaw := p.Excerpt
	if isEmpty(excerptRaw) {
		excerptRaw = p.Notes
	}
	excerpt := news.Truncate(htmltext.PlainText(Localized(excerptRaw, "")), summaryLimit)
	if excerpt == "" {
		excerpt = "Dataset updated on " + cat.Name
	}

	return news.Item{
		ID:             news.ItemID(title, link),
		Title:          title,
		Link:           link,
		Source:         cat.Name,
		SummaryRaw:     excerpt,
		IsCanadianData: true,
	}
}

// Localized reads a CKAN field that is either a plain string or a
// {"en": ..., "fr": ...} object, preferring English, then French. fallback is
// returned for missing, null or empty values.
func Localized(raw json.RawMessage, fallback string) string {
	if isEmpty(raw) {
		return fallback
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return fallback
		}
		return s
	}

	var m map[string]string
	if err := json.Unmarshal(raw, &m); err == nil {
		if v := m["en"]; v != "" {
			return v
		}
		if v := m["fr"]; v != "" {
			return v
		}
	}
	return fallback
}

func isEmpty(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null" || trimmed == `""`
}
