package relevance

import (
	"fmt"
	"strings"

	"github.com/deusflow/datascout/internal/news"
)

const promptHeader = `You are a data editor at a Canadian newspaper building a morning briefing. From these items, select the most newsworthy.

IMPORTANT: You MUST include a mix of:
- At least 2-3 international data journalism stories or investigations (from sources like ProPublica, ICIJ, OCCRP, NYT Upshot, Our World in Data, Nieman Lab, The Pudding). These are valuable even if not Canada-specific; data journalists learn from great work worldwide.
- Canadian news and data updates

For each item worth including, provide:
- index: the item number from the list
- summary: a one-line summary (max 25 words)
- why: why it matters (max 20 words); for international stories, explain the data angle or technique
- score: relevance score 1-5 (5 = most relevant). Score excellent data journalism/investigations 4-5 regardless of geography.
- location: one of "CANADA", "WORLD"
- category: one of "ECONOMICS", "BUSINESS", "CLIMATE", "HOUSING", "HEALTHCARE", "POLITICS", "TECHNOLOGY", "DEMOGRAPHICS", "TRANSPARENCY", "METHODS"

Skip items that are clearly irrelevant, promotional, or not data/journalism-related.
Aim for 15-20 items total.

Return ONLY valid JSON: an array of objects with keys: index, summary, why, score, location, category.
Example: [{"index": 0, "summary": "...", "why": "...", "score": 4, "location": "WORLD", "category": "METHODS"}]

Items to evaluate:
`

// BuildPrompt embeds every item, numbered by position, into the ranking prompt.
func BuildPrompt(items []news.Item) string {
	var b strings.Builder
	b.WriteString(promptHeader)
	for i, it := range items {
		fmt.Fprintf(&b, "\n[%d] Title: %s\n", i, it.Title)
		fmt.Fprintf(&b, "    Source: %s\n", it.Source)
		fmt.Fprintf(&b, "    Link: %s\n", it.Link)
		fmt.Fprintf(&b, "    Excerpt: %s\n", news.Truncate(it.SummaryRaw, excerptLimit))
	}
	return b.String()
}
