package extraction

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Ollama implements Extractor and ImageExtractor using a local Ollama server
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllama creates a new Ollama extractor.
// Text extraction works with any instruction model (llama3.1, qwen2.5);
// ExtractImage needs a vision model such as llava or qwen2-vl.
func NewOllama(baseURL string, modelName string) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if modelName == "" {
		modelName = "llava"
	}

	return &Ollama{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   modelName,
		client: &http.Client{
			Timeout: 120 * time.Second, // local models are slow, vision ones especially
		},
	}, nil
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

const ollamaSystemMessage = "You extract structured expense data from payment screenshots and bank messages. Reply with JSON only."

// Name returns the provider name
func (o *Ollama) Name() string { return "ollama" }

// Available is always true; reachability is only known per request
func (o *Ollama) Available() bool { return o != nil }

// Extract parses an expense out of OCR text
func (o *Ollama) Extract(ctx context.Context, ocrText string) (*Result, error) {
	return o.chat(ctx, ollamaMessage{Role: "user", Content: BuildPrompt(ocrText)})
}

// ExtractImage reads the expense straight from a screenshot
func (o *Ollama) ExtractImage(ctx context.Context, imageData []byte, contentType string) (*Result, error) {
	pngData, err := normalizeScreenshot(imageData, contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedImage, err)
	}
	return o.chat(ctx, ollamaMessage{
		Role:    "user",
		Content: BuildImagePrompt(),
		Images:  []string{base64.StdEncoding.EncodeToString(pngData)},
	})
}

func (o *Ollama) chat(ctx context.Context, msg ollamaMessage) (*Result, error) {
	reqBody := ollamaChatRequest{
		Model:  o.model,
		Stream: false,
		Format: "json",
		Messages: []ollamaMessage{
			{Role: "system", Content: ollamaSystemMessage},
			msg,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: calling ollama API: %w", ErrProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: ollama API error (status %d): %s", ErrProvider, resp.StatusCode, string(body))
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("%w: decoding ollama response: %w", ErrProvider, err)
	}

	result, err := ParseResult(chatResp.Message.Content)
	if err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}
	return result, nil
}

// Close is a no-op for the HTTP client
func (o *Ollama) Close() error {
	return nil
}
