package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewProvider(t *testing.T) {
	if _, err := NewProvider("openai", "", Credentials{}); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("openai without key: %v", err)
	}
	if _, err := NewProvider("anthropic", "", Credentials{}); err == nil {
		t.Error("anthropic without key should fail")
	}
	if _, err := NewProvider("bard", "", Credentials{}); err == nil {
		t.Error("unknown provider should fail")
	}
	p, err := NewProvider("ollama", "", Credentials{})
	if err != nil || p.Name() != "ollama" {
		t.Errorf("ollama: %v, %v", p, err)
	}
}

func TestOpenAIInfer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("messages = %+v", req.Messages)
		}
		io.WriteString(w, `{"model":"gpt-4o","choices":[{"message":{"content":"42 rows"}}],"usage":{"prompt_tokens":5,"completion_tokens":2}}`)
	}))
	defer server.Close()

	p := NewOpenAIProvider("sk", "", server.Client()).WithBaseURL(server.URL)
	res, err := p.Infer(context.Background(), "be brief", []Message{{Role: "user", Content: "how many rows?"}}, InferOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Content != "42 rows" || res.InputTokens != 5 {
		t.Errorf("result = %+v", res)
	}
}

func TestAnthropicInferNoRetry(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	p := NewAnthropicProvider("key", "", server.Client()).WithBaseURL(server.URL)
	if _, err := p.Infer(context.Background(), "", []Message{{Role: "user", Content: "hi"}}, InferOptions{}); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected a single attempt, got %d", calls)
	}
}

func TestOllamaInfer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if req["stream"] != false {
			t.Errorf("stream = %v, want false", req["stream"])
		}
		io.WriteString(w, `{"message":{"role":"assistant","content":"three"}}`)
	}))
	defer server.Close()

	p := NewOllamaProvider(server.URL, "", server.Client())
	res, err := p.Infer(context.Background(), "", []Message{{Role: "user", Content: "count"}}, InferOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Content != "three" || res.Model != "llama3.1" {
		t.Errorf("result = %+v", res)
	}
}

func TestOllamaUnreachable(t *testing.T) {
	p := NewOllamaProvider("http://127.0.0.1:1", "", http.DefaultClient)
	_, err := p.Infer(context.Background(), "", []Message{{Role: "user", Content: "hi"}}, InferOptions{})
	if err == nil || !strings.Contains(err.Error(), "ollama serve") {
		t.Errorf("err = %v", err)
	}
}

func TestAnthropicSystemField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "key" {
			t.Errorf("missing api key header")
		}
		var req struct {
			System    string    `json:"system"`
			MaxTokens int       `json:"max_tokens"`
			Messages  []Message `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.System != "be brief" || req.MaxTokens != 4096 || len(req.Messages) != 1 {
			t.Errorf("request = %+v", req)
		}
		io.WriteString(w, `{"model":"claude","content":[{"text":"ok"}]}`)
	}))
	defer server.Close()

	p := NewAnthropicProvider("key", "", server.Client()).WithBaseURL(server.URL)
	res, err := p.Infer(context.Background(), "be brief", []Message{{Role: "user", Content: "hi"}}, InferOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Content != "ok" {
		t.Errorf("content = %q", res.Content)
	}
}

func TestChunkTable(t *testing.T) {
	headers := []string{"Name", "Salary"}
	rows := [][]string{{"Ann", "10"}, {"Bob", "20"}, {"Cy", "30"}}

	chunks := ChunkTable(headers, rows, ChunkOptions{})
	if len(chunks) != 1 {
		t.Fatalf("chunks = %d", len(chunks))
	}
	if !strings.HasPrefix(chunks[0], "Name\tSalary\n") {
		t.Errorf("chunk = %q", chunks[0])
	}

	chunks = ChunkTable(headers, rows, ChunkOptions{MaxRows: 2})
	if len(chunks) != 2 {
		t.Fatalf("chunks = %d", len(chunks))
	}
	for _, c := range chunks {
		if !strings.HasPrefix(c, "Name\tSalary\n") {
			t.Errorf("chunk missing header: %q", c)
		}
	}
	if !strings.Contains(chunks[1], "Cy\t30") {
		t.Errorf("last chunk = %q", chunks[1])
	}

	chunks = ChunkTable(headers, rows, ChunkOptions{MaxChunkSize: 20})
	if len(chunks) != 3 {
		t.Errorf("size-limited chunks = %d", len(chunks))
	}

	if got := ChunkTable(headers, nil, ChunkOptions{}); len(got) != 1 {
		t.Errorf("empty table chunks = %d", len(got))
	}
}
