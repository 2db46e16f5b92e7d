package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/deusflow/datascout/internal/logger"
)

const (
	defaultAPIBase = "https://api.telegram.org"
	maxRetries     = 3
	maxTopTitles   = 5
)

type Client struct {
	token     string
	chatID    string
	apiBase   string
	http      *http.Client
	baseDelay time.Duration
}

func NewClient(token, chatID string) *Client {
	return &Client{
		token:     token,
		chatID:    chatID,
		apiBase:   defaultAPIBase,
		http:      &http.Client{Timeout: 30 * time.Second},
		baseDelay: time.Second,
	}
}

// SendMessage sends an HTML message to the chat, retrying with exponential
// backoff.
func (c *Client) SendMessage(ctx context.Context, text string) error {
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		lastErr = c.sendMessageOnce(ctx, text)
		if lastErr == nil {
			logger.Info("Message sent to Telegram", "attempt", attempt)
			return nil
		}

		logger.Warn("Telegram send failed", "attempt", attempt, "max", maxRetries, "error", lastErr)

		if attempt < maxRetries {
			// 2^attempt base delays
			wait := time.Duration(1<<attempt) * c.baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
	}

	return fmt.Errorf("can't send message after %d tries: %w", maxRetries, lastErr)
}

func (c *Client) sendMessageOnce(ctx context.Context, text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", c.apiBase, c.token)

	payload := map[string]interface{}{
		"chat_id":                  c.chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error make JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("error HTTP request: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			logger.Warn("failed to close response body", "error", err)
		}
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API error: status %d", resp.StatusCode)
	}
	return nil
}

// Digest is the summary of one briefing sent to the chat.
type Digest struct {
	Date         string
	TopStories   int
	CanadianData int
	WorthALook   int
	Headlines    []Headline
	PageURL      string
}

type Headline struct {
	Title string
	Link  string
}

// FormatDigest renders d as Telegram HTML. At most five headlines are listed.
func FormatDigest(d Digest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "<b>Data Scout | %s</b>\n\n", html.EscapeString(d.Date))
	fmt.Fprintf(&b, "Top stories: %d\nCanadian data: %d\nWorth a look: %d\n", d.TopStories, d.CanadianData, d.WorthALook)

	if len(d.Headlines) > 0 {
		b.WriteString("\n")
		for i, h := range d.Headlines {
			if i == maxTopTitles {
				break
			}
			fmt.Fprintf(&b, "• <a href=\"%s\">%s</a>\n", html.EscapeString(h.Link), html.EscapeString(h.Title))
		}
	}

	if d.PageURL != "" {
		fmt.Fprintf(&b, "\n<a href=\"%s\">Read the full briefing</a>", html.EscapeString(d.PageURL))
	}
	return strings.TrimRight(b.String(), "\n")
}
