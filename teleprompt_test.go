package teleprompt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teilomillet/teleprompt/program"
)

func exactMatch(ex Example, pred Prediction) (float64, error) {
	want, _ := ex.Get("a")
	got, _ := pred.Get("a")
	if want == got {
		return 1, nil
	}
	return 0, nil
}

var adder = ProgramFunc(func(_ context.Context, inputs map[string]any) (map[string]any, error) {
	var x, y int
	fmt.Sscanf(inputs["q"].(string), "%d+%d", &x, &y)
	return map[string]any{"a": fmt.Sprint(x + y)}, nil
})

func sums(n int) []Example {
	out := make([]Example, n)
	for i := range out {
		out[i] = NewExample(map[string]any{"q": fmt.Sprintf("%d+%d", i, i), "a": fmt.Sprint(2 * i)}, "q")
	}
	return out
}

type echoClient struct{}

// Generate answers with the sum it finds on the "q:" line of the prompt's input section.
func (echoClient) Generate(_ context.Context, prompt string) (string, error) {
	idx := strings.LastIndex(prompt, "q: ")
	if idx < 0 {
		return "", errors.New("no question")
	}
	q := strings.SplitN(prompt[idx+3:], "\n", 2)[0]
	out, _ := adder(context.Background(), map[string]any{"q": q})
	return fmt.Sprintf(`{"a": %q}`, out["a"]), nil
}

func TestEvaluate(t *testing.T) {
	cfg := NewConfig()
	ApplyOptions(cfg, SetMaxConcurrency(4), SetLogLevel(LogLevelOff))

	result, err := Evaluate(context.Background(), adder, sums(100), exactMatch, cfg)
	require.NoError(t, err)
	assert.Equal(t, 1.0, result.AverageScore)
	assert.Equal(t, 100, result.Total)

	result, err = Evaluate(context.Background(), adder, sums(3), exactMatch, nil)
	require.NoError(t, err)
	assert.Len(t, result.PerExample, 3)

	bad := NewConfig()
	bad.MaxDemos = -1
	_, err = Evaluate(context.Background(), adder, sums(3), exactMatch, bad)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestBootstrapDemos(t *testing.T) {
	trainset := []Example{
		NewExample(map[string]any{"q": "2+2", "a": "4"}, "q"),
		NewExample(map[string]any{"q": "3+3", "a": "6"}, "q"),
	}
	demos, err := BootstrapDemos(context.Background(), adder, trainset, exactMatch, nil)
	require.NoError(t, err)
	require.Len(t, demos, 2)

	_, err = BootstrapDemos(context.Background(), adder, nil, exactMatch, nil)
	assert.True(t, errors.Is(err, ErrInsufficientData))
}

func TestOptimizeWithLMForward(t *testing.T) {
	student := NewPredict("qa", LMForward(echoClient{}, program.WithOutputKeys("a")),
		program.WithInstruction("Answer the arithmetic question."))

	cfg := NewConfig()
	ApplyOptions(cfg,
		SetMiniBatchSize(4),
		SetMaxIterations(2),
		SetSeed(42),
		SetLogLevel(LogLevelOff),
	)

	result, err := Optimize(context.Background(), student, adder, sums(8), exactMatch, cfg)
	require.NoError(t, err)
	assert.Equal(t, 1.0, result.BaselineScore)
	assert.Equal(t, 1.0, result.Score)
	assert.LessOrEqual(t, result.Program.NumDemos(), cfg.MaxDemos)

	_, err = Optimize(context.Background(), student, nil, nil, exactMatch, nil)
	assert.True(t, errors.Is(err, ErrInsufficientData))
}
