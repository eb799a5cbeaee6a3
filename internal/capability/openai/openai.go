// Package openai implements capability.Completer over the OpenAI API (and
// any OpenAI-compatible endpoint via a custom base URL).
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultModel is used when the host configures no model.
const DefaultModel = "gpt-4o-mini"

// Completer is an OpenAI-backed text completion capability.
type Completer struct {
	client openai.Client
	model  string
}

// Option configures a Completer.
type Option func(*Completer) []option.RequestOption

// WithModel selects the completion model.
func WithModel(model string) Option {
	return func(c *Completer) []option.RequestOption {
		c.model = model
		return nil
	}
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(baseURL string) Option {
	return func(c *Completer) []option.RequestOption {
		return []option.RequestOption{option.WithBaseURL(baseURL)}
	}
}

// New builds a Completer authenticated with the given API key.
func New(apiKey string, opts ...Option) *Completer {
	c := &Completer{model: DefaultModel}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	for _, opt := range opts {
		reqOpts = append(reqOpts, opt(c)...)
	}
	c.client = openai.NewClient(reqOpts...)
	return c
}

// Complete sends one user prompt and returns the first choice's text.
func (c *Completer) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai completion: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}
