package optimizer

import (
	"context"

	"github.com/teilomillet/teleprompt/evaluate"
	"github.com/teilomillet/teleprompt/program"
	"github.com/teilomillet/teleprompt/types"
	"github.com/teilomillet/teleprompt/utils"
)

// StrategyOptions is what a strategy may draw on besides the program and the trajectory.
type StrategyOptions struct {
	Teacher          types.Program
	Bucket           Bucket
	MaxDemos         int
	QualityThreshold float64
	Evaluator        *evaluate.Evaluator
	Logger           utils.Logger
}

// Strategy is a mutation operator. Apply returns applicable=false, without an error, when the
// trajectory gives it nothing to work with. Implementations must not hold mutable state.
type Strategy interface {
	Name() string
	Apply(ctx context.Context, prog *program.Predict, traj Trajectory, opts StrategyOptions) (*program.Predict, bool, error)
}

// StrategyRegistry is an ordered set of strategies addressed by name.
type StrategyRegistry struct {
	order      []string
	strategies map[string]Strategy
}

// NewStrategyRegistry creates a registry holding strategies in the given order.
func NewStrategyRegistry(strategies ...Strategy) (*StrategyRegistry, error) {
	r := &StrategyRegistry{strategies: make(map[string]Strategy)}
	for _, s := range strategies {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register appends s. Names must be unique.
func (r *StrategyRegistry) Register(s Strategy) error {
	if s == nil {
		return types.NewError(types.ErrorTypeInvalidConfig, "strategy is nil", nil)
	}
	if _, exists := r.strategies[s.Name()]; exists {
		return types.NewError(types.ErrorTypeInvalidConfig, "strategy already registered: "+s.Name(), nil)
	}
	r.order = append(r.order, s.Name())
	r.strategies[s.Name()] = s
	return nil
}

func (r *StrategyRegistry) Get(name string) (Strategy, bool) {
	s, ok := r.strategies[name]
	return s, ok
}

// Strategies returns the registered strategies in registration order.
func (r *StrategyRegistry) Strategies() []Strategy {
	out := make([]Strategy, len(r.order))
	for i, name := range r.order {
		out[i] = r.strategies[name]
	}
	return out
}

func (r *StrategyRegistry) Names() []string {
	return append([]string(nil), r.order...)
}

// Select returns the named strategies in the requested order.
func (r *StrategyRegistry) Select(names ...string) ([]Strategy, error) {
	out := make([]Strategy, 0, len(names))
	for _, name := range names {
		s, ok := r.strategies[name]
		if !ok {
			return nil, types.NewError(types.ErrorTypeInvalidConfig, "unknown strategy: "+name, nil)
		}
		out = append(out, s)
	}
	return out, nil
}

// DefaultStrategies returns append-demo followed by rewrite-instruction.
func DefaultStrategies() []Strategy {
	return []Strategy{NewAppendDemo(), NewRewriteInstruction()}
}
