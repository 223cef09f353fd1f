package llmreview

import (
	"context"
	"errors"
	"fmt"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIProvider completes prompts against OpenAI's chat completions API.
type OpenAIProvider struct {
	apiKey    string
	modelName string
	client    openaiCompleter
}

type openaiCompleter interface {
	complete(ctx context.Context, prompt string) (string, error)
}

// NewOpenAIProvider creates a Provider backed by an OpenAI chat model. An
// empty modelName defaults to GPT-4o.
func NewOpenAIProvider(apiKey, modelName string) *OpenAIProvider {
	if modelName == "" {
		modelName = "gpt-4o"
	}
	return &OpenAIProvider{
		apiKey:    apiKey,
		modelName: modelName,
		client:    &defaultOpenAIClient{apiKey: apiKey, modelName: modelName},
	}
}

func (p *OpenAIProvider) Complete(ctx context.Context, prompt string) (string, error) {
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	return p.client.complete(ctx, prompt)
}

type defaultOpenAIClient struct {
	apiKey    string
	modelName string
}

func (c *defaultOpenAIClient) complete(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", errors.New("llmreview: openai API key is required")
	}

	client := openaisdk.NewClient(option.WithAPIKey(c.apiKey))
	resp, err := client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model: openaisdk.ChatModel(c.modelName),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("llmreview: openai request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
