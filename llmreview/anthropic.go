package llmreview

import (
	"context"
	"errors"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider completes prompts against Anthropic's Claude API.
type AnthropicProvider struct {
	apiKey    string
	modelName string
	client    anthropicCompleter
}

// anthropicCompleter isolates the SDK call so tests can substitute a fake.
type anthropicCompleter interface {
	complete(ctx context.Context, prompt string) (string, error)
}

// NewAnthropicProvider creates a Provider backed by Claude. An empty
// modelName defaults to Claude Sonnet.
func NewAnthropicProvider(apiKey, modelName string) *AnthropicProvider {
	if modelName == "" {
		modelName = "claude-sonnet-4-5-20250929"
	}
	return &AnthropicProvider{
		apiKey:    apiKey,
		modelName: modelName,
		client:    &defaultAnthropicClient{apiKey: apiKey, modelName: modelName},
	}
}

func (p *AnthropicProvider) Complete(ctx context.Context, prompt string) (string, error) {
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	return p.client.complete(ctx, prompt)
}

type defaultAnthropicClient struct {
	apiKey    string
	modelName string
}

func (c *defaultAnthropicClient) complete(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", errors.New("llmreview: anthropic API key is required")
	}

	client := anthropicsdk.NewClient(option.WithAPIKey(c.apiKey))
	resp, err := client.Messages.New(ctx, anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(c.modelName),
		MaxTokens: 1024,
		Messages: []anthropicsdk.MessageParam{
			anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("llmreview: anthropic request failed: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if b, ok := block.AsAny().(anthropicsdk.TextBlock); ok {
			if text != "" {
				text += "\n"
			}
			text += b.Text
		}
	}
	return text, nil
}
