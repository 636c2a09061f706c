package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

type GeminiClient struct {
	client   *genai.Client
	model    string
	embModel string
}

func NewGeminiClient(ctx context.Context, apiKey, model, embModel string) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiClient{client: client, model: model, embModel: embModel}, nil
}

func (c *GeminiClient) Close() error {
	return c.client.Close()
}

func (c *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	model := c.client.GenerativeModel(c.model)

	temp := float32(replyTemperature)
	model.GenerationConfig = genai.GenerationConfig{Temperature: &temp}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", &ProviderError{Provider: "gemini", Op: "completion", Err: err}
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", &ProviderError{Provider: "gemini", Op: "completion", Err: fmt.Errorf("empty response")}
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		} else {
			slog.Debug("gemini response part was not text", "type", fmt.Sprintf("%T", part))
		}
	}
	if sb.Len() == 0 {
		return "", &ProviderError{Provider: "gemini", Op: "completion", Err: fmt.Errorf("no text parts in response")}
	}
	return sb.String(), nil
}

func (c *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	em := c.client.EmbeddingModel(c.embModel)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, &ProviderError{Provider: "gemini", Op: "embedding", Err: err}
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, &ProviderError{Provider: "gemini", Op: "embedding", Err: fmt.Errorf("no embedding data returned")}
	}
	return res.Embedding.Values, nil
}
