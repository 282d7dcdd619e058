package optimizer

import (
	"github.com/teilomillet/teleprompt/evaluate"
	"github.com/teilomillet/teleprompt/types"
	"github.com/teilomillet/teleprompt/utils"
)

// SIMBAOption configures a SIMBA optimizer.
type SIMBAOption func(*SIMBA)

func WithLogger(logger utils.Logger) SIMBAOption {
	return func(s *SIMBA) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithEvaluator sets the engine used for every program and teacher call.
func WithEvaluator(e *evaluate.Evaluator) SIMBAOption {
	return func(s *SIMBA) {
		if e != nil {
			s.evaluator = e
		}
	}
}

// WithDebugManager saves per-iteration snapshots and trajectories.
func WithDebugManager(dm *utils.DebugManager) SIMBAOption {
	return func(s *SIMBA) {
		s.debugManager = dm
	}
}

func WithIterationCallback(callback IterationCallback) SIMBAOption {
	return func(s *SIMBA) {
		s.iterationCallback = callback
	}
}

// WithTeacher sets the program strategies and bootstrapping call. Without it the student
// is its own teacher.
func WithTeacher(teacher types.Program) SIMBAOption {
	return func(s *SIMBA) {
		s.teacher = teacher
	}
}

// WithConvergenceCheck replaces the patience-based stopping rule.
func WithConvergenceCheck(check ConvergenceCheck) SIMBAOption {
	return func(s *SIMBA) {
		if check != nil {
			s.convergence = check
		}
	}
}

func WithStrategies(strategies ...Strategy) SIMBAOption {
	return func(s *SIMBA) {
		s.config.Strategies = strategies
	}
}
