package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const (
	openaiBaseURL       = "https://api.openai.com"
	anthropicBaseURL    = "https://api.anthropic.com"
	anthropicAPIVersion = "2023-06-01"
	defaultOllamaHost   = "http://localhost:11434"

	defaultMaxTokens = 4096
)

// ChatProvider answers plain chat prompts. Vendors differ only in their
// dialect: endpoint, auth headers and the request and response shapes.
type ChatProvider struct {
	dialect dialect
	key     string
	model   string
	baseURL string
	client  *http.Client
}

type dialect struct {
	name   string
	path   string
	model  string
	auth   func(key string) map[string]string
	encode func(model, system string, msgs []Message, opts InferOptions) any
	decode func(body []byte) (*InferResult, error)

	// unreachable replaces transport errors, for servers users run themselves.
	unreachable string
}

// NewOpenAIProvider uses the chat completions API.
func NewOpenAIProvider(apiKey, model string, client *http.Client) *ChatProvider {
	return newChat(openaiDialect, apiKey, model, openaiBaseURL, client)
}

// NewAnthropicProvider uses the Claude messages API.
func NewAnthropicProvider(apiKey, model string, client *http.Client) *ChatProvider {
	return newChat(anthropicDialect, apiKey, model, anthropicBaseURL, client)
}

// NewOllamaProvider uses a local Ollama server at host.
func NewOllamaProvider(host, model string, client *http.Client) *ChatProvider {
	if host == "" {
		host = defaultOllamaHost
	}
	return newChat(ollamaDialect, "", model, host, client)
}

func newChat(d dialect, key, model, baseURL string, client *http.Client) *ChatProvider {
	if model == "" {
		model = d.model
	}
	return &ChatProvider{dialect: d, key: key, model: model, baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// WithBaseURL points the provider at another compatible server.
func (p *ChatProvider) WithBaseURL(u string) *ChatProvider {
	p.baseURL = strings.TrimRight(u, "/")
	return p
}

// Name returns the provider identifier.
func (p *ChatProvider) Name() string { return p.dialect.name }

// Model returns the model used when InferOptions names none.
func (p *ChatProvider) Model() string { return p.model }

// Infer sends one request and returns the complete answer. Rate limits and
// server errors are returned as they are.
func (p *ChatProvider) Infer(ctx context.Context, system string, messages []Message, opts InferOptions) (*InferResult, error) {
	model := p.model
	if opts.Model != "" {
		model = opts.Model
	}

	var headers map[string]string
	if p.dialect.auth != nil {
		headers = p.dialect.auth(p.key)
	}

	body, err := postJSON(ctx, p.client, p.baseURL+p.dialect.path, headers, p.dialect.encode(model, system, messages, opts))
	if err != nil {
		var apiErr *APIError
		if p.dialect.unreachable != "" && !errors.As(err, &apiErr) {
			return nil, fmt.Errorf(p.dialect.unreachable, p.baseURL)
		}
		return nil, err
	}

	res, err := p.dialect.decode(body)
	if err != nil {
		return nil, err
	}
	if res.Model == "" {
		res.Model = model
	}
	return res, nil
}

// chatRequest is shared by the OpenAI and Ollama chat endpoints.
type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	Stream      *bool     `json:"stream,omitempty"`
}

func withSystem(system string, msgs []Message) []Message {
	out := make([]Message, 0, len(msgs)+1)
	if system != "" {
		out = append(out, Message{Role: "system", Content: system})
	}
	return append(out, msgs...)
}

var openaiDialect = dialect{
	name:  "openai",
	path:  "/v1/chat/completions",
	model: "gpt-4o",
	auth: func(key string) map[string]string {
		return map[string]string{"Authorization": "Bearer " + key}
	},
	encode: func(model, system string, msgs []Message, opts InferOptions) any {
		return chatRequest{Model: model, Messages: withSystem(system, msgs), MaxTokens: opts.MaxTokens, Temperature: opts.Temperature}
	},
	decode: func(body []byte) (*InferResult, error) {
		var resp struct {
			Choices []struct {
				Message Message `json:"message"`
			} `json:"choices"`
			Model string `json:"model"`
			Usage struct {
				PromptTokens     int `json:"prompt_tokens"`
				CompletionTokens int `json:"completion_tokens"`
			} `json:"usage"`
			Error *struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("could not parse OpenAI response: %w", err)
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("OpenAI error: %s", resp.Error.Message)
		}
		if len(resp.Choices) == 0 {
			return nil, errors.New("OpenAI returned no choices")
		}
		return &InferResult{
			Content:      resp.Choices[0].Message.Content,
			Model:        resp.Model,
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}, nil
	},
}

var anthropicDialect = dialect{
	name:  "anthropic",
	path:  "/v1/messages",
	model: "claude-sonnet-4-20250514",
	auth: func(key string) map[string]string {
		return map[string]string{"x-api-key": key, "anthropic-version": anthropicAPIVersion}
	},
	encode: func(model, system string, msgs []Message, opts InferOptions) any {
		maxTokens := opts.MaxTokens
		if maxTokens <= 0 {
			maxTokens = defaultMaxTokens
		}
		// System text is a top-level field here, not a message.
		return struct {
			Model     string    `json:"model"`
			MaxTokens int       `json:"max_tokens"`
			System    string    `json:"system,omitempty"`
			Messages  []Message `json:"messages"`
		}{model, maxTokens, system, msgs}
	},
	decode: func(body []byte) (*InferResult, error) {
		var resp struct {
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
			Model string `json:"model"`
			Usage struct {
				InputTokens  int `json:"input_tokens"`
				OutputTokens int `json:"output_tokens"`
			} `json:"usage"`
			Error *struct {
				Type    string `json:"type"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("could not parse Anthropic response: %w", err)
		}
		if resp.Error != nil {
			if resp.Error.Type == "authentication_error" {
				return nil, errors.New("invalid API key, check ANTHROPIC_API_KEY")
			}
			return nil, fmt.Errorf("Anthropic error (%s): %s", resp.Error.Type, resp.Error.Message)
		}
		if len(resp.Content) == 0 {
			return nil, errors.New("Anthropic returned an empty response")
		}
		var text strings.Builder
		for _, block := range resp.Content {
			text.WriteString(block.Text)
		}
		return &InferResult{
			Content:      text.String(),
			Model:        resp.Model,
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		}, nil
	},
}

var ollamaDialect = dialect{
	name:  "ollama",
	path:  "/api/chat",
	model: "llama3.1",
	encode: func(model, system string, msgs []Message, _ InferOptions) any {
		stream := false
		return chatRequest{Model: model, Messages: withSystem(system, msgs), Stream: &stream}
	},
	decode: func(body []byte) (*InferResult, error) {
		var resp struct {
			Message Message `json:"message"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("could not parse Ollama response: %w", err)
		}
		return &InferResult{Content: resp.Message.Content}, nil
	},
	unreachable: "could not connect to Ollama at %s, is Ollama running? Start it with 'ollama serve'",
}
