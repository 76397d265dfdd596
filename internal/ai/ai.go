// Package ai provides the LLM clients used to write stories.
package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/threadjuice/threadjuice/internal/config"
)

// ErrEmptyResponse is returned when a model answers with no content.
var ErrEmptyResponse = errors.New("empty model response")

// Generator produces a JSON document from a system and user prompt.
type Generator interface {
	GenerateJSON(ctx context.Context, system, user string) (string, error)
	// Name is the provider name, also used as the rate limiter service key.
	Name() string
}

// New builds the generator selected by cfg.AI.Provider. It returns nil and
// no error when no provider is usable (OpenAI without a key, or "none"), in
// which case every story is simulated.
func New(cfg config.Config) (Generator, error) {
	switch cfg.AI.Provider {
	case "openai", "":
		if cfg.OpenAI.APIKey == "" {
			return nil, nil
		}
		return NewOpenAIClient(cfg.OpenAI), nil
	case "ollama":
		return NewOllamaClient(cfg.Ollama.Host, cfg.Ollama.Model), nil
	case "none", "simulate":
		return nil, nil
	default:
		return nil, fmt.Errorf("ai: unknown provider %q", cfg.AI.Provider)
	}
}
