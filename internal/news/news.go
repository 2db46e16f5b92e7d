package news

import (
	"crypto/md5"
	"encoding/hex"
	"time"
)

// Location tags returned by the ranking model.
const (
	LocationCanada = "CANADA"
	LocationWorld  = "WORLD"
)

// Layout hints for the briefing grid.
const (
	SizeLead    = "lead"
	SizeMid     = "mid"
	SizeCompact = "compact"
)

// DefaultScore is the neutral score used when the ranking service gives none.
const DefaultScore = 3

// Item is one feed entry or dataset record considered for the briefing.
type Item struct {
	ID             string
	Title          string
	Link           string
	Source         string
	SummaryRaw     string
	IsCanadianData bool

	// Published is only used for windowing and backfill; nil when the feed
	// entry carries no date.
	Published *time.Time

	// Filled in by the relevance filter.
	Summary  string
	Why      string
	Score    int
	Location string
	Category string

	// Filled in by the page builder.
	Size string
}

// ItemID returns the stable dedup key for a title/link pair.
func ItemID(title, link string) string {
	sum := md5.Sum([]byte(title + "|" + link))
	return hex.EncodeToString(sum[:])
}

// DefaultLocation derives the location tag from the provenance flag.
func (it Item) DefaultLocation() string {
	if it.IsCanadianData {
		return LocationCanada
	}
	return LocationWorld
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
