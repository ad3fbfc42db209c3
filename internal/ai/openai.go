package ai

import (
	"context"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"

	"github.com/v0xg/thesisdl/internal/browser"
)

// OpenAIProvider implements the Provider interface using OpenAI
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(model string) (*OpenAIProvider, error) {
	apiKey := os.Getenv("THESISDL_OPENAI_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: THESISDL_OPENAI_KEY or OPENAI_API_KEY environment variable required", ErrNoAPIKey)
	}
	return newOpenAIProvider(openai.DefaultConfig(apiKey), model), nil
}

func newOpenAIProvider(cfg openai.ClientConfig, model string) *OpenAIProvider {
	if model == "" {
		model = "gpt-4o"
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// ResolveSelector asks the model which page map element matches target.
func (p *OpenAIProvider) ResolveSelector(ctx context.Context, pageMap *browser.PageMap, target string) (string, error) {
	userPrompt, err := buildUserPrompt(pageMap, target)
	if err != nil {
		return "", err
	}

	resp, err := p.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: p.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: systemPrompt,
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: userPrompt,
				},
			},
			MaxTokens: maxTokens,
		},
	)
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from OpenAI")
	}

	responseText := resp.Choices[0].Message.Content

	sel, err := parseSelectorJSON(responseText)
	if err != nil {
		return "", fmt.Errorf("failed to parse OpenAI response: %w\nResponse: %s", err, responseText)
	}
	return sel, nil
}
