package optimizer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teilomillet/teleprompt/program"
	"github.com/teilomillet/teleprompt/types"
)

func goodTrajectory(ex types.Example, score float64) Trajectory {
	q, _ := ex.Get("q")
	return Trajectory{
		Example:    ex,
		Prediction: types.Prediction{Outputs: map[string]any{"a": solve(q.(string))}, Score: score},
		Score:      score,
	}
}

func TestAppendDemo(t *testing.T) {
	ex := arithmetic(3)[2]
	prog := program.New("qa", demoForward)
	opts := StrategyOptions{MaxDemos: 2, QualityThreshold: 0.5}
	s := NewAppendDemo()
	assert.Equal(t, StepAppendDemo, s.Name())

	next, ok, err := s.Apply(context.Background(), prog, goodTrajectory(ex, 1.0), opts)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, next.NumDemos())
	assert.True(t, next.HasDemo(ex))
	assert.Equal(t, 0, prog.NumDemos(), "input program is untouched")

	t.Run("duplicate", func(t *testing.T) {
		_, ok, err := s.Apply(context.Background(), next, goodTrajectory(ex, 1.0), opts)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("below threshold", func(t *testing.T) {
		_, ok, _ := s.Apply(context.Background(), prog, goodTrajectory(ex, 0.4), opts)
		assert.False(t, ok)
	})

	t.Run("failed trajectory", func(t *testing.T) {
		traj := goodTrajectory(ex, 1.0)
		traj.Err = errors.New("boom")
		_, ok, _ := s.Apply(context.Background(), prog, traj, opts)
		assert.False(t, ok)
	})

	t.Run("own threshold", func(t *testing.T) {
		strict := NewAppendDemo(WithMinScore(0.9))
		_, ok, _ := strict.Apply(context.Background(), prog, goodTrajectory(ex, 0.8), opts)
		assert.False(t, ok)
		_, ok, _ = strict.Apply(context.Background(), prog, goodTrajectory(ex, 0.95), opts)
		assert.True(t, ok)
	})

	t.Run("cap", func(t *testing.T) {
		current := prog
		for _, e := range arithmetic(5) {
			next, ok, err := s.Apply(context.Background(), current, goodTrajectory(e, 1.0), opts)
			require.NoError(t, err)
			require.True(t, ok)
			assert.LessOrEqual(t, next.NumDemos(), 2)
			current = next
		}
		_, ok, _ := s.Apply(context.Background(), prog, goodTrajectory(ex, 1.0), StrategyOptions{MaxDemos: 0})
		assert.False(t, ok)
	})
}

func TestRewriteInstruction(t *testing.T) {
	ex := arithmetic(2)[1]
	prog := program.New("qa", instructedForward, program.WithInstruction("Answer the question."))
	bad := Trajectory{Example: ex, Prediction: types.Prediction{Outputs: map[string]any{"a": "unknown"}}, Score: 0}
	opts := StrategyOptions{
		QualityThreshold: 0.5,
		Bucket:           Bucket{Trajectories: []Trajectory{bad}},
	}
	s := NewRewriteInstruction()
	assert.Equal(t, StepRewriteInstruction, s.Name())

	t.Run("no teacher", func(t *testing.T) {
		_, ok, err := s.Apply(context.Background(), prog, bad, opts)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("append rule", func(t *testing.T) {
		o := opts
		o.Teacher = proposingTeacher("```json\n{\"rule\": \"Always add the numbers.\", \"reasoning\": \"it failed\"}\n```")
		next, ok, err := s.Apply(context.Background(), prog, bad, o)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "Answer the question.\nAlways add the numbers.", next.Instruction())
		assert.Equal(t, []string{StepRewriteInstruction}, next.Lineage())

		out, err := next.Execute(context.Background(), ex.Inputs())
		require.NoError(t, err)
		a, _ := ex.Get("a")
		assert.Equal(t, a, out["a"])
	})

	t.Run("replace instruction", func(t *testing.T) {
		o := opts
		o.Teacher = types.ProgramFunc(func(context.Context, map[string]any) (map[string]any, error) {
			return map[string]any{"proposal": map[string]any{"instruction": "Add the numbers."}}, nil
		})
		next, ok, err := s.Apply(context.Background(), prog, bad, o)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "Add the numbers.", next.Instruction())
	})

	t.Run("teacher receives schema and contrast", func(t *testing.T) {
		good := goodTrajectory(ex, 1.0)
		var seen map[string]any
		o := opts
		o.Bucket = Bucket{Trajectories: []Trajectory{good, bad}, Spread: 1, MaxScore: 1}
		o.Teacher = types.ProgramFunc(func(_ context.Context, inputs map[string]any) (map[string]any, error) {
			seen = inputs
			return map[string]any{"rule": "Add the numbers."}, nil
		})
		_, ok, err := s.Apply(context.Background(), prog, good, o)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Contains(t, seen["response_schema"], "instruction")
		assert.Contains(t, seen["better_outputs"], "2")
		assert.Contains(t, seen["worse_outputs"], "unknown")
		assert.Equal(t, "Answer the question.", seen["current_instruction"])
	})

	t.Run("good trajectory without contrast", func(t *testing.T) {
		o := opts
		o.Teacher = proposingTeacher(`{"rule": "x"}`)
		_, ok, err := s.Apply(context.Background(), prog, goodTrajectory(ex, 1.0), o)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("teacher error", func(t *testing.T) {
		o := opts
		o.Teacher = failingTeacher
		_, ok, err := s.Apply(context.Background(), prog, bad, o)
		require.Error(t, err)
		assert.False(t, ok)
		assert.True(t, errors.Is(err, types.ErrExecution))
	})

	t.Run("invalid proposal", func(t *testing.T) {
		o := opts
		o.Teacher = proposingTeacher(`{"reasoning": "no change"}`)
		_, _, err := s.Apply(context.Background(), prog, bad, o)
		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "invalid instruction proposal"))

		o.Teacher = proposingTeacher(`not json`)
		_, _, err = s.Apply(context.Background(), prog, bad, o)
		require.Error(t, err)
	})
}

func TestStrategyRegistry(t *testing.T) {
	r, err := NewStrategyRegistry(DefaultStrategies()...)
	require.NoError(t, err)
	assert.Equal(t, []string{StepAppendDemo, StepRewriteInstruction}, r.Names())

	s, ok := r.Get(StepRewriteInstruction)
	require.True(t, ok)
	assert.Equal(t, StepRewriteInstruction, s.Name())

	err = r.Register(NewAppendDemo())
	assert.True(t, errors.Is(err, types.ErrInvalidConfig))
	assert.True(t, errors.Is(r.Register(nil), types.ErrInvalidConfig))

	require.NoError(t, r.Register(staticStrategy{name: "noop"}))
	assert.Len(t, r.Strategies(), 3)

	selected, err := r.Select("noop", StepAppendDemo)
	require.NoError(t, err)
	assert.Equal(t, "noop", selected[0].Name())

	_, err = r.Select("missing")
	assert.True(t, errors.Is(err, types.ErrInvalidConfig))
}
