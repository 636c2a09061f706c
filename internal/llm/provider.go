// Package llm wraps the external completion and embedding APIs behind
// small interfaces so the conversation pipeline can be driven by fakes
// in tests and swapped between vendors by configuration.
package llm

import (
	"context"
	"fmt"

	"github.com/aimine/bunshin/internal/config"
)

// Embedder maps text to a fixed-dimension vector. The pipeline only
// relies on dimensional consistency across calls.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Completer maps an assembled prompt to generated text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ProviderError marks a failed or timed-out external LLM call. The
// orchestrator recovers from these (degraded context, apology reply)
// rather than failing the turn outright.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Client bundles the configured completion and embedding providers.
// Construction is explicit and caller-owned; nothing in this package
// holds global state.
type Client struct {
	Completer Completer
	Embedder  Embedder

	closer func() error
}

func (c *Client) Close() error {
	if c.closer != nil {
		return c.closer()
	}
	return nil
}

// New builds the provider pair selected by cfg.LLMProvider.
func New(ctx context.Context, cfg config.Config) (*Client, error) {
	switch cfg.LLMProvider {
	case "openai":
		oc := NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIEmbModel)
		return &Client{Completer: oc, Embedder: oc}, nil
	case "gemini":
		gc, err := NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiEmbModel)
		if err != nil {
			return nil, err
		}
		return &Client{Completer: gc, Embedder: gc, closer: gc.Close}, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
	}
}
