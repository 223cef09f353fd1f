package llmreview

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GoogleProvider completes prompts against Google's Gemini API.
type GoogleProvider struct {
	apiKey    string
	modelName string
	client    googleCompleter
}

type googleCompleter interface {
	complete(ctx context.Context, prompt string) (string, error)
}

// NewGoogleProvider creates a Provider backed by Gemini. An empty modelName
// defaults to Gemini 2.5 Flash.
func NewGoogleProvider(apiKey, modelName string) *GoogleProvider {
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}
	return &GoogleProvider{
		apiKey:    apiKey,
		modelName: modelName,
		client:    &defaultGoogleClient{apiKey: apiKey, modelName: modelName},
	}
}

func (p *GoogleProvider) Complete(ctx context.Context, prompt string) (string, error) {
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	return p.client.complete(ctx, prompt)
}

type defaultGoogleClient struct {
	apiKey    string
	modelName string
}

func (c *defaultGoogleClient) complete(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", errors.New("llmreview: google API key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return "", fmt.Errorf("llmreview: creating genai client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(c.modelName)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("llmreview: gemini request failed: %w", err)
	}

	var text string
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if t, ok := part.(genai.Text); ok {
				if text != "" {
					text += "\n"
				}
				text += string(t)
			}
		}
	}
	return text, nil
}
