package briefing

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/datascout/internal/news"
)

func item(title string, score int, canadian bool) news.Item {
	return news.Item{ID: news.ItemID(title, "https://x/"+title), Title: title, Score: score, IsCanadianData: canadian}
}

func titles(items []news.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Title
	}
	return out
}

func sizes(items []news.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Size
	}
	return out
}

func TestPartitionSections(t *testing.T) {
	items := []news.Item{
		item("w4", 4, false),
		item("w5", 5, false),
		item("w3", 3, false),
		item("w2", 2, false),
		item("c3", 3, true),
		item("c5", 5, true),
		item("c2", 2, true),
		item("w1", 1, false),
	}

	s := Partition(items)

	assert.Equal(t, []string{"w5", "w4"}, titles(s.TopStories))
	assert.Equal(t, []string{"c5", "c3"}, titles(s.CanadianData))
	assert.Equal(t, []string{"w3"}, titles(s.WorthALook))
	assert.Equal(t, 5, s.Total())
}

func TestPartitionBackfillsTopStories(t *testing.T) {
	items := []news.Item{
		item("a", 3, false),
		item("b", 4, false),
		item("c", 3, false),
		item("d", 3, false),
		item("ca", 4, true),
	}

	s := Partition(items)

	assert.Equal(t, []string{"b", "a"}, titles(s.TopStories))
	assert.Equal(t, []string{"c", "d"}, titles(s.WorthALook))
	assert.Equal(t, []string{"ca"}, titles(s.CanadianData))
}

func TestPartitionBackfillNeedsScoreThree(t *testing.T) {
	s := Partition([]news.Item{item("a", 2, false), item("b", 1, false)})
	assert.Empty(t, s.TopStories)
	assert.Empty(t, s.WorthALook)
	assert.Zero(t, s.Total())
}

func TestPartitionEachItemAtMostOnce(t *testing.T) {
	var items []news.Item
	for i := 0; i < 40; i++ {
		items = append(items, item(fmt.Sprintf("i%d", i), i%6, i%3 == 0))
	}

	s := Partition(items)

	counts := make(map[string]int)
	for _, sec := range [][]news.Item{s.TopStories, s.CanadianData, s.WorthALook} {
		for _, it := range sec {
			counts[it.ID]++
		}
	}
	for _, it := range items {
		n := counts[it.ID]
		require.LessOrEqual(t, n, 1, it.Title)
		if it.Score < 3 {
			assert.Zero(t, n, it.Title)
		} else {
			assert.Equal(t, 1, n, it.Title)
		}
	}
}

func TestPartitionSizes(t *testing.T) {
	var items []news.Item
	for i := 0; i < 5; i++ {
		items = append(items, item(fmt.Sprintf("top%d", i), 5, false))
		items = append(items, item(fmt.Sprintf("ca%d", i), 4, true))
		items = append(items, item(fmt.Sprintf("look%d", i), 3, false))
	}

	s := Partition(items)

	assert.Equal(t, []string{news.SizeLead, news.SizeMid, news.SizeMid, news.SizeCompact, news.SizeCompact}, sizes(s.TopStories))
	assert.Equal(t, []string{news.SizeMid, news.SizeMid, news.SizeCompact, news.SizeCompact, news.SizeCompact}, sizes(s.CanadianData))
	for _, sz := range sizes(s.WorthALook) {
		assert.Equal(t, news.SizeCompact, sz)
	}
}

func TestPartitionStableWithinScore(t *testing.T) {
	items := []news.Item{item("first", 4, false), item("second", 4, false), item("third", 5, false)}
	s := Partition(items)
	assert.Equal(t, []string{"third", "first", "second"}, titles(s.TopStories))
}
