package extraction

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultGroqBaseURL = "https://api.groq.com/openai/v1"
	defaultGroqModel   = "llama-3.3-70b-versatile"
)

// Groq implements Extractor against Groq's OpenAI-compatible chat API.
// It is the fast provider: text only, no vision.
type Groq struct {
	client *openai.Client
	model  string
}

// NewGroq creates a new Groq extractor. baseURL may point at any
// OpenAI-compatible endpoint.
func NewGroq(apiKey, baseURL, modelName string) (*Groq, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("groq: %w", ErrNotConfigured)
	}
	if baseURL == "" {
		baseURL = defaultGroqBaseURL
	}
	if modelName == "" {
		modelName = defaultGroqModel
	}

	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL

	return &Groq{
		client: openai.NewClientWithConfig(cfg),
		model:  modelName,
	}, nil
}

// Name returns the provider name
func (g *Groq) Name() string { return "groq" }

// Available reports whether the client was created
func (g *Groq) Available() bool { return g != nil && g.client != nil }

// Extract parses an expense out of OCR text
func (g *Groq) Extract(ctx context.Context, ocrText string) (*Result, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: 0.1,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: BuildPrompt(ocrText),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: groq: chat completion: %w", ErrProvider, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no response from groq", ErrProvider)
	}

	result, err := ParseResult(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, fmt.Errorf("groq: %w", err)
	}
	return result, nil
}

// Close is a no-op for the HTTP client
func (g *Groq) Close() error {
	return nil
}
