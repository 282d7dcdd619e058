package optimizer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teilomillet/teleprompt/evaluate"
	"github.com/teilomillet/teleprompt/program"
	"github.com/teilomillet/teleprompt/types"
)

func TestBootstrapDemosCorrectTeacher(t *testing.T) {
	trainset := []types.Example{
		types.NewExample(map[string]any{"q": "2+2", "a": "4"}, "q"),
		types.NewExample(map[string]any{"q": "3+3", "a": "6"}, "q"),
	}

	demos, err := BootstrapDemos(context.Background(), correctTeacher, trainset, exactMatch, WithQualityThreshold(0.5))
	require.NoError(t, err)
	require.Len(t, demos, 2)

	// completion order is unconstrained, so match as a set
	for _, ex := range trainset {
		assert.True(t, containsExample(demos, ex), "expected %s among demos", ex)
	}
}

func TestBootstrapDemosUsesTeacherOutputs(t *testing.T) {
	trainset := []types.Example{types.NewExample(map[string]any{"q": "2+2", "a": "four", "note": "x"}, "q")}
	teacher := types.ProgramFunc(func(context.Context, map[string]any) (map[string]any, error) {
		return map[string]any{"a": "4", "rationale": "2 plus 2"}, nil
	})
	always := func(types.Example, types.Prediction) (float64, error) { return 1, nil }

	demos, err := BootstrapDemos(context.Background(), teacher, trainset, always)
	require.NoError(t, err)
	require.Len(t, demos, 1)
	assert.Equal(t, map[string]any{"q": "2+2", "a": "4", "rationale": "2 plus 2"}, demos[0].Data())
	assert.Equal(t, []string{"q"}, demos[0].InputKeys())
}

func TestBootstrapDemosThresholdMonotonic(t *testing.T) {
	trainset := arithmetic(20)
	// score i/20 for the i-th example, independent of the teacher's answer
	graded := func(ex types.Example, _ types.Prediction) (float64, error) {
		var x int
		q, _ := ex.Get("q")
		fmt.Sscanf(q.(string), "%d+", &x)
		return float64(x) / 20, nil
	}

	previous := len(trainset) + 1
	for _, threshold := range []float64{0, 0.1, 0.25, 0.5, 0.75, 0.95, 1.0} {
		demos, err := BootstrapDemos(context.Background(), correctTeacher, trainset, graded,
			WithQualityThreshold(threshold), WithBootstrapMaxDemos(len(trainset)))
		require.NoError(t, err)
		assert.LessOrEqual(t, len(demos), previous, "threshold %.2f", threshold)
		previous = len(demos)
	}
	assert.Zero(t, previous)
}

func TestBootstrapDemosCap(t *testing.T) {
	for _, maxDemos := range []int{0, 1, 3, 50} {
		t.Run(fmt.Sprintf("max_%d", maxDemos), func(t *testing.T) {
			demos, err := BootstrapDemos(context.Background(), correctTeacher, arithmetic(10), exactMatch,
				WithBootstrapMaxDemos(maxDemos),
				WithBootstrapEvaluator(evaluate.NewEvaluator(evaluate.WithMaxConcurrency(2))))
			require.NoError(t, err)
			assert.LessOrEqual(t, len(demos), maxDemos)
			assert.Equal(t, min(maxDemos, 10), len(demos))
		})
	}
}

func TestBootstrapDemosFailingTeacher(t *testing.T) {
	demos, err := BootstrapDemos(context.Background(), failingTeacher, arithmetic(5), exactMatch)
	require.NoError(t, err)
	assert.NotNil(t, demos)
	assert.Empty(t, demos)
}

func TestBootstrapDemosInvalidInput(t *testing.T) {
	_, err := BootstrapDemos(context.Background(), correctTeacher, nil, exactMatch)
	assert.True(t, errors.Is(err, types.ErrInsufficientData))

	_, err = BootstrapDemos(context.Background(), nil, arithmetic(1), exactMatch)
	assert.True(t, errors.Is(err, types.ErrInvalidConfig))

	_, err = BootstrapDemos(context.Background(), correctTeacher, arithmetic(1), nil)
	assert.True(t, errors.Is(err, types.ErrInvalidConfig))
}

func TestBootstrapFewShotCompile(t *testing.T) {
	trainset := arithmetic(6)
	student := program.New("qa", demoForward)

	bfs := NewBootstrapFewShot(correctTeacher, WithBootstrapMaxDemos(4))
	assert.Equal(t, NameBootstrapFewShot, bfs.Name())

	result, err := bfs.Compile(context.Background(), student, trainset, exactMatch)
	require.NoError(t, err)
	assert.Equal(t, NameBootstrapFewShot, result.Optimizer)
	assert.InDelta(t, 0.5, result.BaselineScore, 1e-9)
	assert.Greater(t, result.Score, result.BaselineScore)
	assert.Equal(t, 4, result.Program.NumDemos())
	assert.Equal(t, []string{StepBootstrap}, result.Program.Lineage())
	assert.NotEmpty(t, result.RunID)

	out, err := result.Execute(context.Background(), map[string]any{"q": "1+1"})
	require.NoError(t, err)
	assert.NotNil(t, out["a"])
}

func TestBootstrapFewShotKeepsStudentWhenNothingPasses(t *testing.T) {
	student := program.New("qa", demoForward)
	result, err := NewBootstrapFewShot(failingTeacher).Compile(context.Background(), student, arithmetic(4), exactMatch)
	require.NoError(t, err)
	assert.Same(t, student, result.Program)
	assert.Equal(t, result.BaselineScore, result.Score)
}
