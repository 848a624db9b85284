// Package ai talks to the language models behind the assistant: the OpenAI
// Responses API that edits workbooks through MCP tools, and plain chat
// providers used for read-only questions about a table.
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

// Message represents a single message in a conversation with an AI model.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// InferOptions configures a single inference call.
type InferOptions struct {
	Model       string  `json:"model,omitempty"`
	MaxTokens   int     `json:"maxTokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// InferResult holds the response from an inference call.
type InferResult struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	InputTokens  int    `json:"inputTokens,omitempty"`
	OutputTokens int    `json:"outputTokens,omitempty"`
}

// Provider is a chat-completion backend.
type Provider interface {
	// Infer sends a prompt and returns the complete response.
	Infer(ctx context.Context, system string, messages []Message, opts InferOptions) (*InferResult, error)

	// Name returns the provider identifier.
	Name() string
}

// Credentials carries the keys and hosts a provider may need. Values come
// from configuration, never from the process environment directly.
type Credentials struct {
	OpenAIKey    string
	AnthropicKey string
	OllamaHost   string
	Timeout      time.Duration
}

// NewProvider creates a provider instance based on the provider name.
func NewProvider(name, model string, creds Credentials) (Provider, error) {
	timeout := creds.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	switch strings.ToLower(name) {
	case "anthropic":
		if creds.AnthropicKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is not set, get your API key at https://console.anthropic.com/settings/keys")
		}
		return NewAnthropicProvider(creds.AnthropicKey, model, client), nil
	case "openai", "":
		if creds.OpenAIKey == "" {
			return nil, ErrMissingAPIKey
		}
		return NewOpenAIProvider(creds.OpenAIKey, model, client), nil
	case "ollama":
		return NewOllamaProvider(creds.OllamaHost, model, client), nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q, supported providers: anthropic, openai, ollama", name)
	}
}

// postJSON sends payload to endpoint and returns the response body. Non-200
// responses become errors carrying the status and body.
func postJSON(ctx context.Context, client *http.Client, endpoint string, headers map[string]string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("could not marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	return respBody, nil
}
