package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

// GeminiCompleter calls the Gemini generateContent API with a fixed model.
type GeminiCompleter struct {
	client *genai.Client
	model  string
	opts   Options
}

func NewGeminiCompleter(ctx context.Context, apiKey, model string, opts Options) (*GeminiCompleter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiCompleter{client: client, model: model, opts: opts}, nil
}

func (c *GeminiCompleter) Model() string { return c.model }

func (c *GeminiCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	cfg := &genai.GenerateContentConfig{}
	if c.opts.Temperature > 0 {
		cfg.Temperature = genai.Ptr(c.opts.Temperature)
	}
	if c.opts.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(c.opts.MaxTokens)
	}
	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), cfg)
	observeCompletion("gemini", start, err)
	if err != nil {
		return "", &CompletionError{Provider: "gemini", Model: c.model, Err: err}
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", &CompletionError{Provider: "gemini", Model: c.model, Err: errors.New("empty completion")}
	}
	return text, nil
}
