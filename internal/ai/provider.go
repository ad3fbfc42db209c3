// Package ai asks a language model for a CSS selector when a configured
// selector no longer matches the page.
package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/v0xg/thesisdl/internal/browser"
)

var ErrNoAPIKey = errors.New("API key not set")

// Provider suggests a CSS selector for target from a page map.
type Provider interface {
	ResolveSelector(ctx context.Context, pageMap *browser.PageMap, target string) (string, error)
}

// NewProvider creates a new AI provider based on the provider name
func NewProvider(name, model string) (Provider, error) {
	switch name {
	case "claude", "anthropic":
		return NewClaudeProvider(model)
	case "openai", "gpt":
		return NewOpenAIProvider(model)
	default:
		return nil, fmt.Errorf("unknown provider: %s (supported: claude, openai)", name)
	}
}
