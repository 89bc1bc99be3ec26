package backend

import (
	"context"
	"fmt"

	"github.com/rohankhatri7/rohanbot/internal/bot"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// LLM talks to a model directly through langchaingo.
type LLM struct {
	client llms.Model
	system string
}

// NewLLM wraps an existing langchaingo model.
func NewLLM(client llms.Model, system string) *LLM {
	return &LLM{
		client: client,
		system: system,
	}
}

// NewOllama creates a client for an Ollama server.
func NewOllama(serverURL, model, system string) (*LLM, error) {
	client, err := ollama.New(
		ollama.WithServerURL(serverURL),
		ollama.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}
	return NewLLM(client, system), nil
}

// NewOpenAI creates a client for an OpenAI-compatible API.
func NewOpenAI(apiKey, baseURL, model, system string) (*LLM, error) {
	client, err := openai.New(
		openai.WithToken(apiKey),
		openai.WithBaseURL(baseURL),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	return NewLLM(client, system), nil
}

// Stream sends the bare prompt and forwards streamed fragments to h.
func (l *LLM) Stream(ctx context.Context, prompt string, h bot.StreamHandler) error {
	msgs := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	started := false
	start := func(ctx context.Context) error {
		if started {
			return nil
		}
		started = true
		return h.Started(ctx)
	}

	_, err := l.client.GenerateContent(ctx, msgs,
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			if err := start(ctx); err != nil {
				return err
			}
			if len(chunk) == 0 {
				return nil
			}
			return h.Delta(ctx, string(chunk))
		}),
	)
	if err != nil {
		return fmt.Errorf("ai service generate error: %w", err)
	}

	return start(ctx)
}

// Complete sends the prompt with the system instruction and returns the
// first choice.
func (l *LLM) Complete(ctx context.Context, prompt string) (string, error) {
	msgs := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, l.system),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	resp, err := l.client.GenerateContent(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("ai service generate error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned from model")
	}

	return resp.Choices[0].Content, nil
}
