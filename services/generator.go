package services

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// ContentGenerator produces free-text content for one recipient's prompt.
type ContentGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GroqGenerator calls Groq's OpenAI-compatible chat-completion endpoint.
type GroqGenerator struct {
	client *openai.Client
	model  string
}

// NewGroqGenerator creates a generator for the given API key, base URL and
// model name.
func NewGroqGenerator(apiKey, baseURL, model string) *GroqGenerator {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &GroqGenerator{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Generate issues one chat completion and returns its first choice.
func (g *GroqGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
