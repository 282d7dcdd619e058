package optimizer

import (
	"context"

	"github.com/teilomillet/teleprompt/program"
)

// AppendDemo turns a good trajectory into a demonstration: the example's inputs paired with
// the outputs the program produced.
type AppendDemo struct {
	minScore    float64
	hasMinScore bool
}

type AppendDemoOption func(*AppendDemo)

// WithMinScore overrides the quality threshold a trajectory must reach.
func WithMinScore(score float64) AppendDemoOption {
	return func(s *AppendDemo) {
		s.minScore = score
		s.hasMinScore = true
	}
}

func NewAppendDemo(opts ...AppendDemoOption) *AppendDemo {
	s := &AppendDemo{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *AppendDemo) Name() string {
	return StepAppendDemo
}

func (s *AppendDemo) Apply(_ context.Context, prog *program.Predict, traj Trajectory, opts StrategyOptions) (*program.Predict, bool, error) {
	threshold := opts.QualityThreshold
	if s.hasMinScore {
		threshold = s.minScore
	}
	if traj.Err != nil || traj.Score < threshold || opts.MaxDemos <= 0 || prog.MaxDemos() == 0 {
		return nil, false, nil
	}

	demo := traj.Example.WithOutputs(traj.Prediction.Outputs)
	if prog.HasDemo(demo) {
		return nil, false, nil
	}

	base := prog
	if base.MaxDemos() > opts.MaxDemos {
		base = base.WithMaxDemos(opts.MaxDemos)
	}
	return base.AppendDemo(StepAppendDemo, demo), true, nil
}
