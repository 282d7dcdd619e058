package optimizer

import (
	"context"
	"time"

	"github.com/teilomillet/teleprompt/program"
	"github.com/teilomillet/teleprompt/types"
)

// Trajectory is one scored execution of a program variant on one mini-batch example.
type Trajectory struct {
	Iteration    int
	Program      *program.Predict
	ExampleIndex int
	Example      types.Example
	Prediction   types.Prediction
	Score        float64
	Err          error
}

// Bucket groups the trajectories of one iteration that share a mini-batch example.
type Bucket struct {
	ExampleIndex int
	Example      types.Example
	Trajectories []Trajectory
	MaxScore     float64
	MinScore     float64
	AvgScore     float64
	Spread       float64
}

// IterationRecord summarizes one SIMBA iteration.
type IterationRecord struct {
	Iteration      int           `json:"iteration"`
	BatchSize      int           `json:"batch_size"`
	Explored       int           `json:"explored"`
	Candidates     int           `json:"candidates"`
	BestBatchScore float64       `json:"best_batch_score"`
	WinnerScore    float64       `json:"winner_score"`
	MaxSpread      float64       `json:"max_spread"`
	Accepted       bool          `json:"accepted"`
	Improved       bool          `json:"improved"`
	ProgramID      string        `json:"program_id"`
	Error          string        `json:"error,omitempty"`
	Duration       time.Duration `json:"duration"`
}

// IterationCallback is invoked after every SIMBA iteration with the current best program.
type IterationCallback func(record IterationRecord, best *program.Predict)

// OptimizedProgram is the result of a teleprompter run. It is immutable and executes
// like the program it wraps.
type OptimizedProgram struct {
	Program           *program.Predict
	Optimizer         string
	Iterations        int
	Score             float64
	BaselineScore     float64
	Converged         bool
	ConvergenceReason string
	History           []IterationRecord
	RunID             string
	Duration          time.Duration
}

func (o *OptimizedProgram) Execute(ctx context.Context, inputs map[string]any) (map[string]any, error) {
	return o.Program.Execute(ctx, inputs)
}

// Improvement is the full-trainset score gained over the baseline.
func (o *OptimizedProgram) Improvement() float64 {
	return o.Score - o.BaselineScore
}

// Demos returns the demonstrations carried by the optimized program.
func (o *OptimizedProgram) Demos() []types.Example {
	return o.Program.Demos()
}

func (o *OptimizedProgram) Instruction() string {
	return o.Program.Instruction()
}
