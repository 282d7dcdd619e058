package optimizer

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/teilomillet/teleprompt/evaluate"
	"github.com/teilomillet/teleprompt/program"
	"github.com/teilomillet/teleprompt/types"
)

type bootstrapOptions struct {
	threshold float64
	maxDemos  int
	evaluator *evaluate.Evaluator
}

// BootstrapOption configures BootstrapDemos and BootstrapFewShot.
type BootstrapOption func(*bootstrapOptions)

func WithQualityThreshold(threshold float64) BootstrapOption {
	return func(o *bootstrapOptions) {
		o.threshold = threshold
	}
}

func WithBootstrapMaxDemos(n int) BootstrapOption {
	return func(o *bootstrapOptions) {
		o.maxDemos = max(n, 0)
	}
}

// WithBootstrapEvaluator sets the engine used to run the teacher, and with it the concurrency,
// timeout and rate limit.
func WithBootstrapEvaluator(e *evaluate.Evaluator) BootstrapOption {
	return func(o *bootstrapOptions) {
		if e != nil {
			o.evaluator = e
		}
	}
}

func newBootstrapOptions(opts []BootstrapOption) *bootstrapOptions {
	o := &bootstrapOptions{
		threshold: DefaultQualityThreshold,
		maxDemos:  DefaultMaxDemos,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.evaluator == nil {
		o.evaluator = evaluate.NewEvaluator()
	}
	return o
}

// BootstrapDemos runs teacher over trainset and keeps, in completion order, the examples whose
// prediction scores at least the quality threshold. Each demonstration pairs the original inputs
// with the teacher's outputs. Zero passing examples is not an error.
func BootstrapDemos(ctx context.Context, teacher types.Program, trainset []types.Example, metric types.Metric, opts ...BootstrapOption) ([]types.Example, error) {
	if teacher == nil {
		return nil, types.NewError(types.ErrorTypeInvalidConfig, "teacher program is nil", nil)
	}
	if metric == nil {
		return nil, types.NewError(types.ErrorTypeInvalidConfig, "metric is nil", nil)
	}
	if len(trainset) == 0 {
		return nil, types.NewError(types.ErrorTypeInsufficientData, "trainset is empty", nil)
	}

	o := newBootstrapOptions(opts)
	logger := o.evaluator.Logger()
	demos := []types.Example{}
	if o.maxDemos == 0 {
		return demos, nil
	}

	jobs := make([]evaluate.Job, len(trainset))
	for i, ex := range trainset {
		jobs[i] = evaluate.Job{Index: i, Program: teacher, Example: ex}
	}

	// Stop the remaining teacher calls once the demo set is full.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	failures := 0
	for outcome := range o.evaluator.Stream(runCtx, jobs, metric) {
		if len(demos) >= o.maxDemos {
			continue
		}
		if outcome.Err != nil {
			failures++
			continue
		}
		if outcome.Score < o.threshold {
			continue
		}
		demo := outcome.Example.WithOutputs(outcome.Prediction.Outputs)
		if containsExample(demos, demo) {
			continue
		}
		demos = append(demos, demo)
		if len(demos) >= o.maxDemos {
			cancel()
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger.Info("Bootstrapped demonstrations",
		"demos", len(demos), "trainset", len(trainset), "threshold", o.threshold, "failures", failures)
	return demos, nil
}

func containsExample(examples []types.Example, ex types.Example) bool {
	for _, e := range examples {
		if e.Equal(ex) {
			return true
		}
	}
	return false
}

// BootstrapFewShot compiles a student by attaching demonstrations bootstrapped from a teacher.
type BootstrapFewShot struct {
	teacher types.Program
	opts    []BootstrapOption
}

// NewBootstrapFewShot creates the teleprompter. A nil teacher bootstraps from the student itself.
func NewBootstrapFewShot(teacher types.Program, opts ...BootstrapOption) *BootstrapFewShot {
	return &BootstrapFewShot{teacher: teacher, opts: opts}
}

func (b *BootstrapFewShot) Name() string {
	return NameBootstrapFewShot
}

// Compile attaches the bootstrapped demos to student and scores both programs on trainset.
// The student is returned unchanged when the demos do not help.
func (b *BootstrapFewShot) Compile(ctx context.Context, student *program.Predict, trainset []types.Example, metric types.Metric) (*OptimizedProgram, error) {
	if student == nil {
		return nil, types.NewError(types.ErrorTypeInvalidConfig, "student program is nil", nil)
	}
	start := time.Now()
	o := newBootstrapOptions(b.opts)

	teacher := b.teacher
	if teacher == nil {
		teacher = student
	}

	baseline, err := o.evaluator.Evaluate(ctx, student, trainset, metric)
	if err != nil {
		return nil, err
	}

	result := &OptimizedProgram{
		Program:       student,
		Optimizer:     NameBootstrapFewShot,
		Score:         baseline.AverageScore,
		BaselineScore: baseline.AverageScore,
		RunID:         uuid.NewString(),
	}

	demos, err := BootstrapDemos(ctx, teacher, trainset, metric, b.opts...)
	if err != nil {
		return nil, err
	}
	if len(demos) > 0 {
		compiled := student.WithDemos(StepBootstrap, demos)
		scored, err := o.evaluator.Evaluate(ctx, compiled, trainset, metric)
		switch {
		case err != nil:
			o.evaluator.Logger().Warn("Failed to score bootstrapped program", "error", err)
		case scored.AverageScore >= baseline.AverageScore:
			result.Program = compiled
			result.Score = scored.AverageScore
		}
	}

	result.Iterations = 1
	result.Duration = time.Since(start)
	return result, nil
}
