package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sashabaranov/go-openai"
)

// replyTemperature matches the original product's chat setting; low
// enough to keep persona replies consistent across turns.
const replyTemperature = 0.3

type OpenAIClient struct {
	client   *openai.Client
	model    string
	embModel string
}

func NewOpenAIClient(apiKey, model, embModel string) *OpenAIClient {
	return &OpenAIClient{
		client:   openai.NewClient(apiKey),
		model:    model,
		embModel: embModel,
	}
}

func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: replyTemperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", &ProviderError{Provider: "openai", Op: "completion", Err: err}
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", &ProviderError{Provider: "openai", Op: "completion", Err: fmt.Errorf("no choices returned")}
	}
	slog.Debug("openai completion finished", "finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}

func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(c.embModel),
		Input: []string{text},
	})
	if err != nil {
		return nil, &ProviderError{Provider: "openai", Op: "embedding", Err: err}
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, &ProviderError{Provider: "openai", Op: "embedding", Err: fmt.Errorf("no embedding data returned")}
	}
	return resp.Data[0].Embedding, nil
}
