package program

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teilomillet/teleprompt/config"
	"github.com/teilomillet/teleprompt/types"
)

type fakeClient struct {
	mu       sync.Mutex
	response string
	err      error
	prompts  []string
}

func (c *fakeClient) Generate(_ context.Context, prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, prompt)
	return c.response, c.err
}

func (c *fakeClient) lastPrompt() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prompts[len(c.prompts)-1]
}

func TestLMForwardParsesJSON(t *testing.T) {
	client := &fakeClient{response: "Sure!\n```json\n{\"answer\": \"4\"}\n```"}
	p := New("qa", LMForward(client), WithInstruction("Add the numbers."), WithDemos(demo(1)))

	out, err := p.Execute(context.Background(), map[string]any{"q": "2+2"})
	require.NoError(t, err)
	assert.Equal(t, "4", out["answer"])

	prompt := client.lastPrompt()
	assert.Contains(t, prompt, "Add the numbers.")
	assert.Contains(t, prompt, "Example 1:\na: a1\nq: q1")
	assert.Contains(t, prompt, "Input:\nq: 2+2")
	assert.Contains(t, prompt, "keys: answer.")
}

func TestLMForwardPlainTextFallback(t *testing.T) {
	client := &fakeClient{response: "  four  "}
	forward := LMForward(client, WithOutputKeys("answer"))

	out, err := forward(context.Background(), Call{Inputs: map[string]any{"q": "2+2"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"answer": "four"}, out)

	multi := LMForward(client, WithOutputKeys("answer", "rationale"))
	_, err = multi(context.Background(), Call{Inputs: map[string]any{"q": "2+2"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrExecution))
}

func TestLMForwardClientError(t *testing.T) {
	client := &fakeClient{err: errors.New("rate limited")}
	_, err := LMForward(client)(context.Background(), Call{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrExecution))
	assert.Contains(t, err.Error(), "rate limited")
}

func TestLMForwardTokenBudgetDropsOldestDemos(t *testing.T) {
	client := &fakeClient{response: `{"answer": "ok"}`}
	wordCounter := func(s string) int { return len(strings.Fields(s)) }

	unbounded := LMForward(client)
	call := Call{Demos: []types.Example{demo(1), demo(2), demo(3)}, Inputs: map[string]any{"q": "x"}}
	_, err := unbounded(context.Background(), call)
	require.NoError(t, err)
	full := wordCounter(client.lastPrompt())

	// allow roughly one demo's worth of words less than the full prompt
	bounded := LMForward(client, WithTokenBudget(full-1, wordCounter))
	_, err = bounded(context.Background(), call)
	require.NoError(t, err)

	prompt := client.lastPrompt()
	assert.NotContains(t, prompt, "q1", "oldest demo is dropped first")
	assert.Contains(t, prompt, "q3")
	assert.LessOrEqual(t, wordCounter(prompt), full-1)
}

// tiktokenOrSkip loads the encoding of model, skipping when its ranks cannot be fetched.
func tiktokenOrSkip(t *testing.T, model string) TokenCounter {
	t.Helper()
	counter, err := NewTiktokenCounter(model)
	if err != nil {
		t.Skipf("tokenizer for %s unavailable: %v", model, err)
	}
	return counter
}

func TestNewTiktokenCounter(t *testing.T) {
	counter := tiktokenOrSkip(t, "gpt-4")

	assert.Zero(t, counter(""))
	assert.Positive(t, counter("hello world"))
	assert.Greater(t, counter(strings.Repeat("hello world ", 20)), counter("hello world"))

	// unknown models fall back to cl100k_base, the gpt-4 encoding
	fallback := tiktokenOrSkip(t, "no-such-model")
	text := "Respond with a JSON object containing the keys: answer."
	assert.Equal(t, counter(text), fallback(text))
}

func TestLMOptionsFromConfig(t *testing.T) {
	cfg := config.NewConfig()
	opts, err := LMOptionsFromConfig(cfg)
	require.NoError(t, err)
	assert.Empty(t, opts, "no budget, no options")

	counter := tiktokenOrSkip(t, cfg.TokenizerModel)
	client := &fakeClient{response: `{"answer": "ok"}`}
	call := Call{Demos: []types.Example{demo(1), demo(2), demo(3)}, Inputs: map[string]any{"q": "x"}}
	_, err = LMForward(client)(context.Background(), call)
	require.NoError(t, err)
	full := counter(client.lastPrompt())

	config.ApplyOptions(cfg, config.SetTokenBudget(full-1, ""))
	opts, err = LMOptionsFromConfig(cfg)
	require.NoError(t, err)
	require.Len(t, opts, 1)

	_, err = LMForward(client, opts...)(context.Background(), call)
	require.NoError(t, err)
	prompt := client.lastPrompt()
	assert.NotContains(t, prompt, "q1")
	assert.Contains(t, prompt, "q3")
	assert.LessOrEqual(t, counter(prompt), full-1)
}

func TestLMForwardCustomTemplate(t *testing.T) {
	client := &fakeClient{response: `{"answer": "ok"}`}
	forward := LMForward(client, WithPromptTemplate("{{ .Instruction }}|{{ len .Demos }}|{{ fields .Inputs }}"))

	_, err := forward(context.Background(), Call{Instruction: "go", Demos: []types.Example{demo(1)}, Inputs: map[string]any{"q": "x"}})
	require.NoError(t, err)
	assert.Equal(t, "go|1|q: x", client.lastPrompt())
}

func TestCleanJSONResponse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounded", `Here you go: {"a":1} hope it helps`, `{"a":1}`},
		{"no object", "nothing", "nothing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanJSONResponse(tt.in))
		})
	}
}
