// Package teleprompt optimizes programs built on language model calls. It scores a program
// against a dataset with a concurrent evaluation engine, bootstraps few-shot demonstrations
// from a teacher program, and searches over demonstrations and instructions with SIMBA.
//
// Example usage:
//
//	student := teleprompt.NewPredict("qa", teleprompt.LMForward(client),
//	    program.WithInstruction("Answer the arithmetic question."))
//
//	cfg := teleprompt.NewConfig()
//	teleprompt.ApplyOptions(cfg, teleprompt.SetMaxIterations(10), teleprompt.SetSeed(42))
//
//	result, err := teleprompt.Optimize(ctx, student, nil, trainset, metric, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("score %.2f -> %.2f\n", result.BaselineScore, result.Score)
package teleprompt

import (
	"context"

	"github.com/teilomillet/teleprompt/evaluate"
	"github.com/teilomillet/teleprompt/optimizer"
	"github.com/teilomillet/teleprompt/program"
	"github.com/teilomillet/teleprompt/types"
	"github.com/teilomillet/teleprompt/utils"
)

type (
	Example    = types.Example
	Prediction = types.Prediction
	Program    = types.Program
	Metric     = types.Metric

	// ProgramFunc adapts an ordinary function to Program.
	ProgramFunc = types.ProgramFunc

	// OptimizationError is the error type of every package; match it with errors.Is against
	// the Err* sentinels.
	OptimizationError = types.OptimizationError

	Predict  = program.Predict
	Forward  = program.Forward
	Call     = program.Call
	LMClient = program.Client

	EvalResult = evaluate.EvalResult
	Outcome    = evaluate.Outcome

	OptimizedProgram = optimizer.OptimizedProgram
	Strategy         = optimizer.Strategy
	Trajectory       = optimizer.Trajectory
	Bucket           = optimizer.Bucket
	SIMBA            = optimizer.SIMBA
)

var (
	NewExample   = types.NewExample
	NewPredict   = program.New
	LMForward    = program.LMForward
	LMOptions    = program.LMOptionsFromConfig
	ReadExamples = utils.ReadExamplesFromFile
)

var (
	ErrExecution        = types.ErrExecution
	ErrMetric           = types.ErrMetric
	ErrNoCandidates     = types.ErrNoCandidates
	ErrInsufficientData = types.ErrInsufficientData
	ErrTimeout          = types.ErrTimeout
	ErrInvalidConfig    = types.ErrInvalidConfig
)

func configOrDefault(cfg *Config) (*Config, error) {
	if cfg == nil {
		return NewConfig(), nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func evaluatorFor(cfg *Config) *evaluate.Evaluator {
	logger := utils.NewLogger(cfg.LogLevel)
	return evaluate.NewEvaluator(append(evaluate.OptionsFromConfig(cfg), evaluate.WithLogger(logger))...)
}

// Evaluate scores prog on examples. A nil cfg uses the defaults.
func Evaluate(ctx context.Context, prog Program, examples []Example, metric Metric, cfg *Config) (*EvalResult, error) {
	cfg, err := configOrDefault(cfg)
	if err != nil {
		return nil, err
	}
	return evaluatorFor(cfg).Evaluate(ctx, prog, examples, metric)
}

// BootstrapDemos returns demonstrations produced by teacher on trainset that score at least
// the configured quality threshold. A nil cfg uses the defaults.
func BootstrapDemos(ctx context.Context, teacher Program, trainset []Example, metric Metric, cfg *Config) ([]Example, error) {
	cfg, err := configOrDefault(cfg)
	if err != nil {
		return nil, err
	}
	return optimizer.BootstrapDemos(ctx, teacher, trainset, metric,
		optimizer.WithQualityThreshold(cfg.QualityThreshold),
		optimizer.WithBootstrapMaxDemos(cfg.MaxDemos),
		optimizer.WithBootstrapEvaluator(evaluatorFor(cfg)),
	)
}

// Optimize runs SIMBA on student. A nil teacher makes the student its own teacher and a nil
// cfg uses the defaults. Strategies default to append-demo and rewrite-instruction.
func Optimize(ctx context.Context, student *Predict, teacher Program, trainset []Example, metric Metric, cfg *Config, strategies ...Strategy) (*OptimizedProgram, error) {
	cfg, err := configOrDefault(cfg)
	if err != nil {
		return nil, err
	}
	var opts []optimizer.SIMBAOption
	if len(strategies) > 0 {
		opts = append(opts, optimizer.WithStrategies(strategies...))
	}
	return NewSIMBAFromConfig(cfg, opts...).Optimize(ctx, student, teacher, trainset, metric)
}

// NewSIMBAFromConfig builds a SIMBA optimizer with the logger, evaluator and debug output
// described by cfg.
func NewSIMBAFromConfig(cfg *Config, opts ...optimizer.SIMBAOption) *SIMBA {
	return optimizer.NewSIMBAFromConfig(cfg, opts...)
}
