// Package llm wraps the outbound LLM API behind a single prompt → text call.
package llm

import (
	"context"
	"fmt"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Client performs chat completions. Nil-safe: a nil *Client is a disabled
// integration and all methods degrade gracefully.
type Client struct {
	client oai.Client
	model  string
}

// New creates a client, or nil when no API key is configured.
func New(apiKey, model string) *Client {
	if apiKey == "" {
		return nil
	}
	return &Client{
		client: oai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// NewWithBaseURL creates a client against a custom endpoint. Used by tests
// with a mock server.
func NewWithBaseURL(apiKey, model, baseURL string) *Client {
	if apiKey == "" {
		return nil
	}
	return &Client{
		client: oai.NewClient(option.WithAPIKey(apiKey), option.WithBaseURL(baseURL)),
		model:  model,
	}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool { return c != nil }

// Complete sends one system+user prompt and returns the trimmed response
// text. On a nil client it returns "" without error.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	if c == nil {
		return "", nil
	}
	messages := []oai.ChatCompletionMessageParamUnion{}
	if system != "" {
		messages = append(messages, oai.SystemMessage(system))
	}
	messages = append(messages, oai.UserMessage(user))

	resp, err := c.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model:    oai.ChatModel(c.model),
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
