package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Todor-5rov/Vexcel/internal/ai"
)

type fakeProvider struct {
	calls []string
	err   error
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Infer(_ context.Context, system string, msgs []ai.Message, _ ai.InferOptions) (*ai.InferResult, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.calls = append(p.calls, msgs[0].Content)
	return &ai.InferResult{Content: "answer " + string(rune('A'+len(p.calls)-1)), Model: "fake-1", InputTokens: 3, OutputTokens: 2}, nil
}

func TestAskSingleChunk(t *testing.T) {
	p := &fakeProvider{}
	an := &Analyst{Provider: func() (ai.Provider, error) { return p, nil }}

	ans, err := an.Ask(context.Background(), Question{
		Question: "who earns most?",
		Headers:  []string{"Name", "Salary"},
		Rows:     [][]string{{"Name", "Salary"}, {"Ann", "10"}, {"Bob", "20"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "answer A", ans.Answer)
	assert.Equal(t, 1, ans.Chunks)
	assert.Equal(t, 5, ans.Tokens)

	require.Len(t, p.calls, 1)
	assert.Equal(t, 1, strings.Count(p.calls[0], "Name\tSalary"), "header row must not be repeated")
	assert.Contains(t, p.calls[0], "Bob\t20")
	assert.Contains(t, p.calls[0], "Question: who earns most?")
}

func TestAskCombinesChunks(t *testing.T) {
	p := &fakeProvider{}
	an := &Analyst{
		Provider: func() (ai.Provider, error) { return p, nil },
		Chunking: ai.ChunkOptions{MaxRows: 1},
	}

	ans, err := an.Ask(context.Background(), Question{
		Question: "total?",
		Headers:  []string{"Name", "Salary"},
		Rows:     [][]string{{"Ann", "10"}, {"Bob", "20"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, ans.Chunks)
	require.Len(t, p.calls, 3)
	assert.Contains(t, p.calls[0], "Part 1 of 2")
	assert.Contains(t, p.calls[2], "Part 2 answer:\nanswer B")
	assert.Equal(t, "answer C", ans.Answer)
}

func TestAskErrors(t *testing.T) {
	an := &Analyst{Provider: func() (ai.Provider, error) { return nil, ai.ErrMissingAPIKey }}
	_, err := an.Ask(context.Background(), Question{})
	assert.ErrorIs(t, err, ErrNoQuestion)

	_, err = an.Ask(context.Background(), Question{Question: "x"})
	assert.ErrorIs(t, err, ai.ErrMissingAPIKey)

	boom := errors.New("boom")
	an.Provider = func() (ai.Provider, error) { return &fakeProvider{err: boom}, nil }
	_, err = an.Ask(context.Background(), Question{Question: "x"})
	assert.ErrorIs(t, err, boom)
}
