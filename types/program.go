package types

import "context"

// Program maps inputs to outputs, possibly by calling a language model.
// Implementations must be safe for concurrent use with different inputs.
type Program interface {
	Execute(ctx context.Context, inputs map[string]any) (map[string]any, error)
}

// ProgramFunc adapts an ordinary function to the Program interface.
type ProgramFunc func(ctx context.Context, inputs map[string]any) (map[string]any, error)

func (f ProgramFunc) Execute(ctx context.Context, inputs map[string]any) (map[string]any, error) {
	return f(ctx, inputs)
}

// Metric scores a prediction against its reference example, by convention in [0, 1].
// It must be free of side effects. An error, like a panic, scores the example 0.0.
type Metric func(example Example, prediction Prediction) (float64, error)
