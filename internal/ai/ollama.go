package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	ollamaTimeout     = 3 * time.Minute
	ollamaTemperature = 0.8
	ollamaMaxTokens   = 3000
)

// OllamaClient generates stories with a local Ollama server through its
// chat endpoint in JSON mode.
type OllamaClient struct {
	baseURL string
	model   string
	http    *http.Client
}

// NewOllamaClient creates a client for the Ollama API at baseURL.
func NewOllamaClient(baseURL, model string) *OllamaClient {
	return &OllamaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		http:    &http.Client{Timeout: ollamaTimeout},
	}
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type chatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Format   string          `json:"format"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

type chatResponse struct {
	Message    ollamaMessage `json:"message"`
	Done       bool          `json:"done"`
	DoneReason string        `json:"done_reason"`
}

// Name implements Generator.
func (c *OllamaClient) Name() string { return "ollama" }

// GenerateJSON sends the system and user prompts as one chat turn and
// returns the model's JSON reply. A reply cut off by the token limit is an
// error since the JSON would be incomplete.
func (c *OllamaClient) GenerateJSON(ctx context.Context, system, user string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []ollamaMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Format:  "json",
		Options: ollamaOptions{Temperature: ollamaTemperature, NumPredict: ollamaMaxTokens},
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("ollama chat: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("ollama chat: decode: %w", err)
	}
	if out.DoneReason == "length" {
		return "", fmt.Errorf("ollama chat: reply truncated at %d tokens", ollamaMaxTokens)
	}

	content := strings.TrimSpace(out.Message.Content)
	if content == "" {
		return "", fmt.Errorf("ollama chat: %w", ErrEmptyResponse)
	}
	return content, nil
}
