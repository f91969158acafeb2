// Package summary – llm.go implements the completion clients used by the
// orchestrator and the captioning side channel. Uses the OpenAI-compatible
// API format, which works with OpenAI, GLM, and any compatible endpoint.
package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Completer produces a text completion from a system prompt and user content.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userContent string) (string, error)
}

// Captioner produces a caption for a base64-encoded JPEG image.
type Captioner interface {
	Caption(ctx context.Context, imageB64, prompt, model string) (string, error)
}

// LLMClient talks to an OpenAI-compatible chat completions endpoint.
// One client instance serves either the text or the vision endpoint.
type LLMClient struct {
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int
	httpClient *http.Client
	logger     *slog.Logger
}

// NewLLMClient creates a text completion client from config.
func NewLLMClient(cfg APIConfig, logger *slog.Logger) *LLMClient {
	return newClient(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.MaxTokens, logger)
}

// NewVisionClient creates a vision completion client from config.
func NewVisionClient(cfg MultimodalConfig, logger *slog.Logger) *LLMClient {
	return newClient(cfg.BaseURL, cfg.APIKey, cfg.Model, 0, logger)
}

func newClient(baseURL, apiKey, model string, maxTokens int, logger *slog.Logger) *LLMClient {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	baseURL = strings.TrimRight(baseURL, "/")

	if logger == nil {
		logger = slog.Default()
	}

	return &LLMClient{
		baseURL:   baseURL,
		apiKey:    apiKey,
		model:     model,
		maxTokens: maxTokens,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		logger: logger.With("component", "llm"),
	}
}

// ---------- Wire types (OpenAI-compatible) ----------

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// visionPart is one element of a multimodal user message.
type visionPart struct {
	Type     string           `json:"type"`
	Text     string           `json:"text,omitempty"`
	ImageURL *visionImagePart `json:"image_url,omitempty"`
}

type visionImagePart struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// ---------- Public methods ----------

// Complete sends a chat completion with the given system prompt and user
// content and returns the trimmed text.
func (c *LLMClient) Complete(ctx context.Context, systemPrompt, userContent string) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: userContent})

	return c.send(ctx, chatRequest{
		Model:     c.model,
		Messages:  messages,
		MaxTokens: c.maxTokens,
	})
}

// Caption sends a vision completion for a base64-encoded JPEG together
// with a text prompt. An empty model falls back to the client's default.
func (c *LLMClient) Caption(ctx context.Context, imageB64, prompt, model string) (string, error) {
	if model == "" {
		model = c.model
	}

	content := []visionPart{
		{
			Type: "image_url",
			ImageURL: &visionImagePart{
				URL:    "data:image/jpeg;base64," + imageB64,
				Detail: "low",
			},
		},
		{Type: "text", Text: prompt},
	}

	return c.send(ctx, chatRequest{
		Model:    model,
		Messages: []chatMessage{{Role: "user", Content: content}},
	})
}

// send posts the request and extracts the first choice's content.
func (c *LLMClient) send(ctx context.Context, reqBody chatRequest) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("API key not configured, set RECAP_API_KEY or api.api_key")
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	endpoint := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("API error",
			"status", resp.StatusCode,
			"body", truncate(string(respBody), 500),
		)
		return "", fmt.Errorf("API returned %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("parsing response: %w", err)
	}

	if chatResp.Error != nil {
		return "", fmt.Errorf("API error: %s", chatResp.Error.Message)
	}

	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no response from model")
	}

	c.logger.Debug("chat completion done",
		"model", reqBody.Model,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return strings.TrimSpace(chatResp.Choices[0].Message.Content), nil
}

// truncate shortens a string to max runes for log output.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
