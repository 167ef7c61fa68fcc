package extraction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const defaultGeminiModel = "gemini-flash-latest"

// Gemini implements Extractor and ImageExtractor using Google Gemini
type Gemini struct {
	client  *genai.Client
	model   *genai.GenerativeModel
	timeout time.Duration
}

// NewGemini creates a new Gemini extractor
func NewGemini(apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: %w", ErrNotConfigured)
	}
	if modelName == "" {
		modelName = defaultGeminiModel
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0.1)

	return &Gemini{
		client:  client,
		model:   model,
		timeout: 30 * time.Second,
	}, nil
}

// Name returns the provider name
func (g *Gemini) Name() string { return "gemini" }

// Available reports whether the client was created
func (g *Gemini) Available() bool { return g != nil && g.client != nil }

// Extract parses an expense out of OCR text
func (g *Gemini) Extract(ctx context.Context, ocrText string) (*Result, error) {
	return g.generate(ctx, genai.Text(BuildPrompt(ocrText)))
}

// ExtractImage reads the expense straight from a screenshot
func (g *Gemini) ExtractImage(ctx context.Context, imageData []byte, contentType string) (*Result, error) {
	pngData, err := normalizeScreenshot(imageData, contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedImage, err)
	}
	// genai.ImageData takes the format suffix, not the full MIME type
	return g.generate(ctx, genai.ImageData("png", pngData), genai.Text(BuildImagePrompt()))
}

func (g *Gemini) generate(ctx context.Context, parts ...genai.Part) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("%w: gemini: generating content: %w", ErrProvider, err)
	}

	text, err := geminiResponseText(resp)
	if err != nil {
		return nil, err
	}

	result, err := ParseResult(text)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	return result, nil
}

// geminiResponseText concatenates the text parts of the first candidate
func geminiResponseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil ||
		len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: no response from gemini", ErrProvider)
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String(), nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
