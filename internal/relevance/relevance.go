package relevance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/deusflow/datascout/internal/logger"
	"github.com/deusflow/datascout/internal/metrics"
	"github.com/deusflow/datascout/internal/news"
	"github.com/deusflow/datascout/internal/retry"
)

const (
	excerptLimit  = 300
	fallbackLimit = 100
)

// Model is the external language model that ranks items.
type Model interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Verdict is one entry of the model's JSON reply.
type Verdict struct {
	Index    *int   `json:"index"`
	Summary  string `json:"summary"`
	Why      string `json:"why"`
	Score    Score  `json:"score"`
	Location string `json:"location"`
	Category string `json:"category"`
}

// Score accepts 4, 4.0 and "4". Fractions are floored. Set is false when the
// model sent no usable value.
type Score struct {
	Value int
	Set   bool
}

func (s *Score) UnmarshalJSON(b []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if raw == "" || raw == "null" {
		*s = Score{}
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("score %q: %w", raw, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		*s = Score{}
		return nil
	}
	*s = Score{Value: int(math.Floor(f)), Set: true}
	return nil
}

type Filter struct {
	model   Model
	retry   retry.RetryConfig
	timeout time.Duration
}

func NewFilter(model Model, retryCfg retry.RetryConfig, timeout time.Duration) *Filter {
	retryCfg.Name = "relevance model"
	return &Filter{model: model, retry: retryCfg, timeout: timeout}
}

// Score asks the model to rank items and returns the scored copies. An empty
// input makes no call. Any model or parse failure yields every item with the
// neutral score instead of an error.
func (f *Filter) Score(ctx context.Context, items []news.Item) []news.Item {
	if len(items) == 0 {
		return nil
	}

	verdicts, err := f.rank(ctx, items)
	if err != nil {
		logger.Warn("ranking failed, using neutral scores", "items", len(items), "error", err)
		metrics.Global.ScoringFallback()
		verdicts = Fallback(items)
	}

	scored := Merge(items, verdicts)
	metrics.Global.ItemsScored(len(scored))
	return scored
}

func (f *Filter) rank(ctx context.Context, items []news.Item) ([]Verdict, error) {
	prompt := BuildPrompt(items)

	var verdicts []Verdict
	err := retry.WithRetry(ctx, f.retry, func(ctx context.Context) error {
		callCtx := ctx
		if f.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, f.timeout)
			defer cancel()
		}

		text, err := f.model.Generate(callCtx, prompt)
		if err != nil {
			return err
		}
		parsed, err := ParseResponse(text)
		if err != nil {
			logger.Debug("unparseable model reply", "reply", news.Truncate(text, 500))
			return err
		}
		verdicts = parsed
		return nil
	})
	return verdicts, err
}

// ParseResponse decodes the model reply, tolerating a surrounding code fence.
func ParseResponse(text string) ([]Verdict, error) {
	text = stripCodeFence(text)
	if text == "" {
		return nil, errors.New("empty model response")
	}

	var verdicts []Verdict
	if err := json.Unmarshal([]byte(text), &verdicts); err != nil {
		return nil, fmt.Errorf("model response is not a JSON array: %w", err)
	}
	return verdicts, nil
}

func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	// drop the opening fence line, including any language tag
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	} else {
		text = strings.TrimPrefix(text, "```")
	}
	text = strings.TrimSpace(text)
	if strings.HasSuffix(text, "```") {
		text = text[:strings.LastIndex(text, "```")]
	}
	return strings.TrimSpace(text)
}

// Fallback gives every item the neutral verdict.
func Fallback(items []news.Item) []Verdict {
	out := make([]Verdict, len(items))
	for i, it := range items {
		idx := i
		out[i] = Verdict{
			Index:    &idx,
			Summary:  news.Truncate(it.SummaryRaw, fallbackLimit),
			Score:    Score{Value: news.DefaultScore, Set: true},
			Location: it.DefaultLocation(),
		}
	}
	return out
}

// Merge applies verdicts to copies of the referenced items, in verdict order.
// Verdicts without an index, with an out-of-range index, or repeating an
// index already used are ignored.
func Merge(items []news.Item, verdicts []Verdict) []news.Item {
	used := make(map[int]bool, len(verdicts))
	var out []news.Item

	for _, v := range verdicts {
		if v.Index == nil {
			continue
		}
		idx := *v.Index
		if idx < 0 || idx >= len(items) || used[idx] {
			continue
		}
		used[idx] = true

		it := items[idx]
		it.Summary = v.Summary
		if it.Summary == "" {
			it.Summary = news.Truncate(it.SummaryRaw, fallbackLimit)
		}
		it.Why = v.Why
		it.Score = clampScore(v.Score)
		it.Location = strings.ToUpper(strings.TrimSpace(v.Location))
		if it.Location == "" {
			it.Location = it.DefaultLocation()
		}
		it.Category = strings.ToUpper(strings.TrimSpace(v.Category))
		out = append(out, it)
	}
	return out
}

// clampScore maps a missing score to the neutral one and bounds the rest
// to 1..5.
func clampScore(s Score) int {
	switch {
	case !s.Set:
		return news.DefaultScore
	case s.Value < 1:
		return 1
	case s.Value > 5:
		return 5
	}
	return s.Value
}
