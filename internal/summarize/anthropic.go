package summarize

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
	defaultAnthropicEndpoint = "https://api.anthropic.com/v1/messages"
	anthropicVersion         = "2023-06-01"
	anthropicMaxTokens       = 4096
)

// AnthropicBackend talks to the Anthropic messages API
type AnthropicBackend struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// NewAnthropicBackend creates an Anthropic summarization backend
func NewAnthropicBackend(apiKey, model string, timeout time.Duration) (*AnthropicBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Anthropic API key cannot be empty")
	}
	if model == "" {
		model = "claude-3-haiku-20240307"
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	return &AnthropicBackend{
		endpoint:   defaultAnthropicEndpoint,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Name returns the backend identifier
func (b *AnthropicBackend) Name() string { return "anthropic" }

// Model returns the configured model name
func (b *AnthropicBackend) Model() string { return b.model }

// Complete runs one messages call
func (b *AnthropicBackend) Complete(ctx context.Context, systemPrompt, userPrompt string) (*Result, error) {
	reqBody, err := json.Marshal(anthropicRequest{
		Model:     b.model,
		MaxTokens: anthropicMaxTokens,
		System:    systemPrompt,
		Messages: []anthropicMessage{
			{Role: "user", Content: userPrompt},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", b.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", b.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("Anthropic request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(respBody))
	}

	var msgResp anthropicResponse
	if err := json.Unmarshal(respBody, &msgResp); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}

	var builder strings.Builder
	for _, block := range msgResp.Content {
		if block.Type == "text" {
			builder.WriteString(block.Text)
		}
	}

	content := strings.TrimSpace(builder.String())
	if content == "" {
		return nil, fmt.Errorf("Anthropic returned an empty summary")
	}

	return &Result{
		Content:          content,
		Backend:          b.Name(),
		Model:            b.model,
		PromptTokens:     msgResp.Usage.InputTokens,
		CompletionTokens: msgResp.Usage.OutputTokens,
	}, nil
}
