package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Todor-5rov/Vexcel/internal/ai"
)

const analystPrompt = `You are an expert data analyst answering questions about a spreadsheet. Answer only from the data provided. Be specific: reference actual values and column names. If the data does not contain the answer, say so.`

const combinePrompt = `You are combining partial answers about different parts of one spreadsheet into a single answer. Remove duplicates, keep concrete figures, and answer the original question directly.`

// ErrNoQuestion is returned for an empty question.
var ErrNoQuestion = errors.New("question is empty")

// Question is a read-only query about the table currently shown.
type Question struct {
	Question string     `json:"question"`
	Headers  []string   `json:"headers"`
	Rows     [][]string `json:"currentData"`
	Filename string     `json:"fileName,omitempty"`
}

// Answer is the analyst's reply.
type Answer struct {
	Answer string `json:"answer"`
	Model  string `json:"model"`
	Chunks int    `json:"chunks"`
	Tokens int    `json:"tokens"`
}

// Analyst answers questions about a table without touching the file.
type Analyst struct {
	// Provider returns the configured chat provider.
	Provider func() (ai.Provider, error)
	Chunking ai.ChunkOptions
}

// Ask answers q. Large tables are split into header-prefixed chunks that are
// answered separately and then combined.
func (an *Analyst) Ask(ctx context.Context, q Question) (*Answer, error) {
	if strings.TrimSpace(q.Question) == "" {
		return nil, ErrNoQuestion
	}
	provider, err := an.Provider()
	if err != nil {
		return nil, err
	}

	headers, rows := q.Headers, q.Rows
	// Clients send the header as the first data row as well.
	if len(rows) > 0 && len(headers) > 0 && strings.Join(rows[0], "\x00") == strings.Join(headers, "\x00") {
		rows = rows[1:]
	}
	chunks := ai.ChunkTable(headers, rows, an.Chunking)

	ans := &Answer{Chunks: len(chunks)}
	partials := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		var content strings.Builder
		if q.Filename != "" {
			fmt.Fprintf(&content, "File: %s\n", q.Filename)
		}
		if len(chunks) > 1 {
			fmt.Fprintf(&content, "Part %d of %d\n", i+1, len(chunks))
		}
		content.WriteString("\n")
		content.WriteString(chunk)
		content.WriteString("\n\nQuestion: ")
		content.WriteString(q.Question)

		res, err := provider.Infer(ctx, analystPrompt, []ai.Message{{Role: "user", Content: content.String()}}, ai.InferOptions{})
		if err != nil {
			return nil, fmt.Errorf("AI inference failed: %w", err)
		}
		ans.Model = res.Model
		ans.Tokens += res.InputTokens + res.OutputTokens
		partials = append(partials, res.Content)
	}

	if len(partials) == 1 {
		ans.Answer = strings.TrimSpace(partials[0])
		return ans, nil
	}

	var joined strings.Builder
	fmt.Fprintf(&joined, "Question: %s\n", q.Question)
	for i, p := range partials {
		fmt.Fprintf(&joined, "\nPart %d answer:\n%s\n", i+1, p)
	}
	res, err := provider.Infer(ctx, combinePrompt, []ai.Message{{Role: "user", Content: joined.String()}}, ai.InferOptions{})
	if err != nil {
		return nil, fmt.Errorf("AI inference failed: %w", err)
	}
	ans.Model = res.Model
	ans.Tokens += res.InputTokens + res.OutputTokens
	ans.Answer = strings.TrimSpace(res.Content)
	return ans, nil
}
