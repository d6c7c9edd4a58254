package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAICompleter calls the chat completions API with a fixed model.
type OpenAICompleter struct {
	client *openai.Client
	model  string
	opts   Options
}

func NewOpenAICompleter(client *openai.Client, model string, opts Options) *OpenAICompleter {
	return &OpenAICompleter{client: client, model: model, opts: opts}
}

func (c *OpenAICompleter) Model() string { return c.model }

func (c *OpenAICompleter) Complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.opts.Temperature,
		MaxTokens:   c.opts.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	observeCompletion("openai", start, err)
	if err != nil {
		return "", &CompletionError{Provider: "openai", Model: c.model, Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &CompletionError{Provider: "openai", Model: c.model, Err: errors.New("no choices")}
	}
	text := resp.Choices[0].Message.Content
	if strings.TrimSpace(text) == "" {
		return "", &CompletionError{Provider: "openai", Model: c.model, Err: errors.New("empty completion")}
	}
	return text, nil
}

func observeCompletion(provider string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	completionDuration.With(prometheus.Labels{"provider": provider, "result": result}).Observe(time.Since(start).Seconds())
}
