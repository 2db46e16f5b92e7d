package openai

import (
	"context"
	"errors"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"
)

type Client struct {
	client      *goopenai.Client
	model       string
	temperature float32
}

func NewClient(apiKey, model string, temperature float32) *Client {
	return NewClientWithConfig(goopenai.DefaultConfig(apiKey), model, temperature)
}

// NewClientWithConfig allows pointing the client at a compatible endpoint.
func NewClientWithConfig(cfg goopenai.ClientConfig, model string, temperature float32) *Client {
	if model == "" {
		model = goopenai.GPT4oMini
	}
	return &Client{
		client:      goopenai.NewClientWithConfig(cfg),
		model:       model,
		temperature: temperature,
	}
}

func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: c.model,
		Messages: []goopenai.ChatCompletionMessage{
			{
				Role:    goopenai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in openai response")
	}
	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", errors.New("empty openai response")
	}
	return content, nil
}
