package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"testpilot-backend/internal/config"
)

// Completer turns a prompt into raw completion text. Output formatting is not
// guaranteed; callers sanitize it.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Model() string
}

// CompletionError wraps any backend failure: quota, bad request, timeout or an
// empty answer. It is never retried.
type CompletionError struct {
	Provider string
	Model    string
	Err      error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("%s completion (%s) failed: %v", e.Provider, e.Model, e.Err)
}

func (e *CompletionError) Unwrap() error { return e.Err }

// Options tune generation for every call a completer makes.
type Options struct {
	Temperature float32
	MaxTokens   int
}

// NewCompleter builds the completer selected by cfg.LLMProvider.
func NewCompleter(ctx context.Context, cfg config.Config, opts Options) (Completer, error) {
	switch cfg.LLMProvider {
	case config.ProviderOpenAI:
		return NewOpenAICompleter(openai.NewClient(cfg.OpenAIAPIKey), cfg.OpenAIModel, opts), nil
	case config.ProviderGemini:
		c, err := NewGeminiCompleter(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, opts)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown completion provider %q", cfg.LLMProvider)
	}
}
