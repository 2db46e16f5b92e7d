package briefing

import (
	"sort"

	"github.com/deusflow/datascout/internal/news"
)

const minTopStories = 2

// Sections is the scored item list split the way the page shows it.
type Sections struct {
	TopStories   []news.Item
	CanadianData []news.Item
	WorthALook   []news.Item
}

func (s Sections) Total() int {
	return len(s.TopStories) + len(s.CanadianData) + len(s.WorthALook)
}

// Partition splits scored items into page sections, sorts each by score
// descending and tags card sizes. Items scored below 3 land nowhere, and no
// item lands in more than one section.
func Partition(items []news.Item) Sections {
	var s Sections
	inTop := make(map[int]bool)

	for i, it := range items {
		if it.Score >= 4 && !it.IsCanadianData {
			s.TopStories = append(s.TopStories, it)
			inTop[i] = true
		}
	}

	// a quiet day still gets two top stories
	if len(s.TopStories) < minTopStories {
		var extras []int
		for i, it := range items {
			if it.Score >= 3 && !it.IsCanadianData && !inTop[i] {
				extras = append(extras, i)
			}
		}
		sort.SliceStable(extras, func(a, b int) bool {
			return items[extras[a]].Score > items[extras[b]].Score
		})
		for _, i := range extras {
			if len(s.TopStories) >= minTopStories {
				break
			}
			s.TopStories = append(s.TopStories, items[i])
			inTop[i] = true
		}
	}

	for i, it := range items {
		switch {
		case it.IsCanadianData && it.Score >= 3:
			s.CanadianData = append(s.CanadianData, it)
		case !it.IsCanadianData && it.Score == 3 && !inTop[i]:
			s.WorthALook = append(s.WorthALook, it)
		}
	}

	sortByScore(s.TopStories)
	sortByScore(s.CanadianData)
	sortByScore(s.WorthALook)

	for i := range s.TopStories {
		switch {
		case i == 0:
			s.TopStories[i].Size = news.SizeLead
		case i < 3:
			s.TopStories[i].Size = news.SizeMid
		default:
			s.TopStories[i].Size = news.SizeCompact
		}
	}
	for i := range s.CanadianData {
		if i < 2 {
			s.CanadianData[i].Size = news.SizeMid
		} else {
			s.CanadianData[i].Size = news.SizeCompact
		}
	}
	for i := range s.WorthALook {
		s.WorthALook[i].Size = news.SizeCompact
	}

	return s
}

func sortByScore(items []news.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Score > items[j].Score
	})
}
