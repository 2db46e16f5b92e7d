package htmltext

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

var policy = bluemonday.UGCPolicy()

// PlainText converts an HTML fragment (feed summary, dataset notes) into
// whitespace-separated plain text. Text of adjacent elements is separated by
// a single space, entities are decoded and script/style content is dropped.
func PlainText(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.ContainsAny(raw, "<&") {
		return normalizeWhitespace(raw)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(policy.Sanitize(raw)))
	if err != nil {
		return normalizeWhitespace(raw)
	}

	var parts []string
	collectText(doc.Selection, &parts)
	return normalizeWhitespace(strings.Join(parts, " "))
}

// collectText walks s in document order, appending every text node.
func collectText(s *goquery.Selection, parts *[]string) {
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		switch goquery.NodeName(c) {
		case "#text":
			if t := strings.TrimSpace(c.Text()); t != "" {
				*parts = append(*parts, t)
			}
		case "#comment", "script", "style":
		default:
			collectText(c, parts)
		}
	})
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
