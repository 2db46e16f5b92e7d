package relevance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/datascout/internal/news"
	"github.com/deusflow/datascout/internal/retry"
)

type stubModel struct {
	reply   string
	err     error
	calls   int
	prompts []string
}

func (s *stubModel) Generate(_ context.Context, prompt string) (string, error) {
	s.calls++
	s.prompts = append(s.prompts, prompt)
	return s.reply, s.err
}

func sampleItems() []news.Item {
	return []news.Item{
		{ID: "a", Title: "Offshore leaks", Link: "https://icij.example/a", Source: "ICIJ", SummaryRaw: "A leak of records."},
		{ID: "b", Title: "CPI update", Link: "https://open.canada.example/cpi", Source: "Canada Open Data", SummaryRaw: "Monthly CPI.", IsCanadianData: true},
		{ID: "c", Title: "Podcast ad", Link: "https://x.example/c", Source: "BBC More or Less", SummaryRaw: "Sponsored."},
	}
}

func newFilter(m Model) *Filter {
	return NewFilter(m, retry.RetryConfig{MaxAttempts: 1}, time.Second)
}

func TestScoreEmptyMakesNoCall(t *testing.T) {
	m := &stubModel{}
	assert.Nil(t, newFilter(m).Score(context.Background(), nil))
	assert.Equal(t, 0, m.calls)
}

func TestScoreMergesVerdicts(t *testing.T) {
	m := &stubModel{reply: "```json\n" + `[
		{"index": 1, "summary": "Prices up 2%", "why": "Inflation watch", "score": 4, "location": "canada", "category": "economics"},
		{"index": 0, "summary": "Leak", "why": "Big data dig", "score": "5", "location": "WORLD", "category": "TRANSPARENCY"},
		{"index": 7, "summary": "out of range", "score": 5},
		{"index": 0, "summary": "duplicate", "score": 1},
		{"summary": "no index", "score": 5}
	]` + "\n```"}

	got := newFilter(m).Score(context.Background(), sampleItems())

	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, 4, got[0].Score)
	assert.Equal(t, "Prices up 2%", got[0].Summary)
	assert.Equal(t, "CANADA", got[0].Location)
	assert.Equal(t, "ECONOMICS", got[0].Category)

	assert.Equal(t, "a", got[1].ID)
	assert.Equal(t, 5, got[1].Score)
	assert.Equal(t, "Big data dig", got[1].Why)
	assert.Equal(t, "Leak", got[1].Summary)

	require.Len(t, m.prompts, 1)
	assert.Contains(t, m.prompts[0], "[0] Title: Offshore leaks")
	assert.Contains(t, m.prompts[0], "    Source: Canada Open Data")
	assert.Contains(t, m.prompts[0], "    Link: https://x.example/c")
	assert.Contains(t, m.prompts[0], "    Excerpt: Sponsored.")
}

func TestScoreDefaultsMissingFields(t *testing.T) {
	m := &stubModel{reply: `[{"index": 1}, {"index": 0, "score": 9}, {"index": 2, "score": -2}]`}

	got := newFilter(m).Score(context.Background(), sampleItems())
	require.Len(t, got, 3)

	assert.Equal(t, news.DefaultScore, got[0].Score)
	assert.Equal(t, "Monthly CPI.", got[0].Summary)
	assert.Equal(t, news.LocationCanada, got[0].Location)
	assert.Empty(t, got[0].Why)

	assert.Equal(t, 5, got[1].Score)
	assert.Equal(t, news.LocationWorld, got[1].Location)
	assert.Equal(t, 1, got[2].Score)
}

func TestScoreZeroIsNotMissing(t *testing.T) {
	m := &stubModel{reply: `[{"index": 0, "score": 0}, {"index": 2, "score": -1}, {"index": 1, "score": 0.4}, {"index": 3, "score": null}]`}
	items := append(sampleItems(), news.Item{ID: "d", Title: "D", SummaryRaw: "d"})

	got := newFilter(m).Score(context.Background(), items)
	require.Len(t, got, 4)

	assert.Equal(t, 1, got[0].Score)
	assert.Equal(t, 1, got[1].Score)
	assert.Equal(t, 1, got[2].Score)
	assert.Equal(t, news.DefaultScore, got[3].Score)
}

func TestScoreFractionsAreFloored(t *testing.T) {
	cases := []struct {
		raw  string
		want int
	}{
		{`3.5`, 3},
		{`4.9`, 4},
		{`"4.5"`, 4},
		{`5.0`, 5},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			m := &stubModel{reply: `[{"index": 0, "score": ` + tc.raw + `}]`}
			got := newFilter(m).Score(context.Background(), sampleItems())
			require.Len(t, got, 1)
			assert.Equal(t, tc.want, got[0].Score)
		})
	}
}

func TestScoreFallbackOnModelError(t *testing.T) {
	m := &stubModel{err: errors.New("503 from upstream")}
	items := sampleItems()

	got := NewFilter(m, retry.RetryConfig{MaxAttempts: 2, Delay: time.Millisecond}, time.Second).Score(context.Background(), items)

	assert.Equal(t, 2, m.calls)
	requireNeutral(t, items, got)
}

func TestScoreFallbackOnNonJSON(t *testing.T) {
	m := &stubModel{reply: "Sure! Here are the most newsworthy items: ..."}
	items := sampleItems()

	got := newFilter(m).Score(context.Background(), items)
	requireNeutral(t, items, got)
}

func TestScoreFallbackOnWrongShape(t *testing.T) {
	m := &stubModel{reply: `{"items": []}`}
	items := sampleItems()

	got := newFilter(m).Score(context.Background(), items)
	requireNeutral(t, items, got)
}

func requireNeutral(t *testing.T, items, got []news.Item) {
	t.Helper()
	require.Len(t, got, len(items))
	for i := range items {
		assert.Equal(t, items[i].ID, got[i].ID)
		assert.Equal(t, news.DefaultScore, got[i].Score)
		assert.Empty(t, got[i].Why)
		assert.Equal(t, items[i].DefaultLocation(), got[i].Location)
	}
}

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`[1]`, `[1]`},
		{"```\n[1]\n```", `[1]`},
		{"```json\n[1]\n```\n", `[1]`},
		{"```json\n[1]", `[1]`},
		{"  [1]  ", `[1]`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, stripCodeFence(tt.in), "input %q", tt.in)
	}
}

func TestBuildPromptTruncatesExcerpt(t *testing.T) {
	long := make([]rune, 400)
	for i := range long {
		long[i] = 'x'
	}
	p := BuildPrompt([]news.Item{{Title: "T", SummaryRaw: string(long)}})
	assert.Contains(t, p, "Excerpt: "+string(long[:300])+"\n")
	assert.NotContains(t, p, string(long[:301]))
}
