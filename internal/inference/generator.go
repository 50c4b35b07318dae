// Package inference wraps text-generation backends and turns their output into
// aspect suggestions.
package inference

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// TextGenerator generates text from a system prompt and user prompt.
type TextGenerator interface {
	GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Options selects and configures a backend.
type Options struct {
	Provider string // openai or gemini
	BaseURL  string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// NewGenerator builds the TextGenerator named by opts.Provider.
func NewGenerator(opts Options) (TextGenerator, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Provider)) {
	case "", "openai":
		return NewOpenAICompatGenerator(opts.BaseURL, opts.APIKey, opts.Model, opts.Timeout), nil
	case "gemini":
		g, err := NewGeminiGenerator(opts.BaseURL, opts.APIKey, opts.Model, opts.Timeout)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("inference: unsupported provider %q", opts.Provider)
	}
}
