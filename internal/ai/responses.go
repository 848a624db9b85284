package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// DefaultServerLabel names the MCP server in tool definitions.
const DefaultServerLabel = "excel-mcp"

// MutationRequest asks the model to operate on a workbook through MCP tools.
type MutationRequest struct {
	Prompt  string
	Model   string
	ToolURL string
	// ServerLabel defaults to DefaultServerLabel.
	ServerLabel string
}

// ToolCall is one MCP tool invocation reported by the model.
type ToolCall struct {
	Name      string       `json:"name"`
	Kind      MutationKind `json:"kind"`
	Arguments string       `json:"arguments,omitempty"`
	Output    string       `json:"output,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// MutationResult is the model's answer together with the tools it used.
type MutationResult struct {
	Text      string     `json:"text"`
	Model     string     `json:"model"`
	ToolCalls []ToolCall `json:"toolCalls"`
}

// Modified reports whether any successful tool call changed the file.
func (r *MutationResult) Modified() bool {
	for _, c := range r.ToolCalls {
		if c.Error == "" && c.Kind.Modifies() {
			return true
		}
	}
	return false
}

// Mutator runs a tool-using model call against the MCP working copy.
type Mutator interface {
	Mutate(ctx context.Context, req MutationRequest) (*MutationResult, error)
}

// ResponsesMutator implements Mutator with the OpenAI Responses API and a
// single remote MCP tool.
type ResponsesMutator struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewResponsesMutator creates a ResponsesMutator.
func NewResponsesMutator(apiKey, model string, client *http.Client) *ResponsesMutator {
	if model == "" {
		model = openaiDialect.model
	}
	return &ResponsesMutator{apiKey: apiKey, model: model, baseURL: openaiBaseURL, client: client}
}

// WithBaseURL points the mutator at another server.
func (m *ResponsesMutator) WithBaseURL(u string) *ResponsesMutator {
	m.baseURL = u
	return m
}

type responsesTool struct {
	Type            string `json:"type"`
	ServerLabel     string `json:"server_label"`
	ServerURL       string `json:"server_url"`
	RequireApproval string `json:"require_approval"`
}

type responsesRequest struct {
	Model string          `json:"model"`
	Tools []responsesTool `json:"tools"`
	Input string          `json:"input"`
}

type responsesOutput struct {
	Type      string `json:"type"`
	Text      string `json:"text"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Output    string `json:"output"`
	Error     any    `json:"error"`
	Content   []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

type responsesResponse struct {
	Model      string            `json:"model"`
	OutputText string            `json:"output_text"`
	Output     []responsesOutput `json:"output"`
	Error      *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Mutate implements Mutator. An empty API key yields ErrMissingAPIKey.
func (m *ResponsesMutator) Mutate(ctx context.Context, req MutationRequest) (*MutationResult, error) {
	if m.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if req.ToolURL == "" {
		return nil, fmt.Errorf("MCP tool URL is required")
	}
	model := m.model
	if req.Model != "" {
		model = req.Model
	}
	label := req.ServerLabel
	if label == "" {
		label = DefaultServerLabel
	}

	body := responsesRequest{
		Model: model,
		Tools: []responsesTool{{
			Type:            "mcp",
			ServerLabel:     label,
			ServerURL:       req.ToolURL,
			RequireApproval: "never",
		}},
		Input: req.Prompt,
	}

	respBody, err := postJSON(ctx, m.client, m.baseURL+"/v1/responses",
		map[string]string{"Authorization": "Bearer " + m.apiKey}, body)
	if err != nil {
		return nil, err
	}

	var apiResp responsesResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("could not parse response: %w", err)
	}
	if apiResp.Error != nil && apiResp.Error.Message != "" {
		return nil, fmt.Errorf("API error: %s", apiResp.Error.Message)
	}

	return parseResponses(&apiResp), nil
}

func parseResponses(r *responsesResponse) *MutationResult {
	res := &MutationResult{Model: r.Model, ToolCalls: []ToolCall{}}

	var text strings.Builder
	text.WriteString(r.OutputText)
	for _, item := range r.Output {
		switch item.Type {
		case "text":
			text.WriteString(item.Text)
		case "message":
			if r.OutputText != "" {
				// output_text already aggregates message content.
				continue
			}
			for _, c := range item.Content {
				if c.Type == "output_text" || c.Type == "text" {
					text.WriteString(c.Text)
				}
			}
		case "mcp_call":
			res.ToolCalls = append(res.ToolCalls, ToolCall{
				Name:      item.Name,
				Kind:      KindOf(item.Name),
				Arguments: item.Arguments,
				Output:    item.Output,
				Error:     errorText(item.Error),
			})
		}
	}
	res.Text = text.String()
	return res
}

// errorText flattens the error field of an mcp_call, which may be a string
// or an object.
func errorText(v any) string {
	switch e := v.(type) {
	case nil:
		return ""
	case string:
		return e
	case map[string]any:
		if msg, ok := e["message"].(string); ok {
			return msg
		}
	}
	b, _ := json.Marshal(v)
	return string(b)
}
