// Package optimizer provides the teleprompters that search over program variants:
// the bootstrap demonstration selector and the SIMBA stochastic mini-batch optimizer.
package optimizer

import (
	"time"

	"github.com/teilomillet/teleprompt/config"
	"github.com/teilomillet/teleprompt/types"
	"github.com/teilomillet/teleprompt/utils"
)

// SIMBAConfig holds the search parameters of SIMBA.
type SIMBAConfig struct {
	// NumCandidates caps the number of new program variants generated per iteration.
	NumCandidates int `validate:"gte=1"`

	// MiniBatchSize is the number of training examples sampled per iteration.
	// It is clamped to the trainset size.
	MiniBatchSize int `validate:"gte=1"`

	// MaxIterations bounds the number of iterations.
	MaxIterations int `validate:"gte=1"`

	// ConvergencePatience stops the search after that many consecutive iterations without
	// a strict improvement. Zero disables the check.
	ConvergencePatience int `validate:"gte=0"`

	// Strategies are applied in order to produce candidates. Empty means DefaultStrategies.
	Strategies []Strategy

	// Temperature of the softmax used to pick winners and pool members.
	// Zero makes the selection greedy.
	Temperature float64 `validate:"gte=0"`

	// AcceptSlack is how far below the current best's mini-batch score a winner may be
	// and still be promoted.
	AcceptSlack float64 `validate:"gte=0"`

	// PoolSize is the number of historical candidates kept next to the baseline.
	PoolSize int `validate:"gte=1"`

	// MaxDemos caps the demonstrations carried by every generated program.
	MaxDemos int `validate:"gte=0"`

	// QualityThreshold is the score a trajectory needs before it can become a demonstration.
	QualityThreshold float64 `validate:"probability"`

	// Deadline bounds the wall-clock time of Optimize. No iteration starts after it passes.
	// Zero means no deadline.
	Deadline time.Duration `validate:"gte=0"`

	// Seed makes mini-batch sampling and softmax selection reproducible. Zero seeds from the clock.
	Seed int64

	// Bootstrap seeds the search with demonstrations bootstrapped from the teacher.
	Bootstrap bool
}

// DefaultSIMBAConfig returns the default search parameters.
func DefaultSIMBAConfig() SIMBAConfig {
	return SIMBAConfig{
		NumCandidates:       DefaultNumCandidates,
		MiniBatchSize:       DefaultMiniBatchSize,
		MaxIterations:       DefaultMaxIterations,
		ConvergencePatience: DefaultConvergencePatience,
		Temperature:         DefaultTemperature,
		AcceptSlack:         DefaultAcceptSlack,
		PoolSize:            DefaultPoolSize,
		MaxDemos:            DefaultMaxDemos,
		QualityThreshold:    DefaultQualityThreshold,
	}
}

// SIMBAConfigFromConfig maps the SIMBA section of cfg.
func SIMBAConfigFromConfig(cfg *config.Config) SIMBAConfig {
	return SIMBAConfig{
		NumCandidates:       cfg.NumCandidates,
		MiniBatchSize:       cfg.MiniBatchSize,
		MaxIterations:       cfg.MaxIterations,
		ConvergencePatience: cfg.ConvergencePatience,
		Temperature:         cfg.Temperature,
		AcceptSlack:         cfg.AcceptSlack,
		PoolSize:            cfg.PoolSize,
		MaxDemos:            cfg.MaxDemos,
		QualityThreshold:    cfg.QualityThreshold,
		Deadline:            cfg.Deadline,
		Seed:                cfg.Seed,
		Bootstrap:           cfg.Bootstrap,
	}
}

// Validate reports invalid parameters as an InvalidConfig error.
func (c SIMBAConfig) Validate() error {
	if err := utils.Validate(c); err != nil {
		return types.NewError(types.ErrorTypeInvalidConfig, "invalid SIMBA configuration", err)
	}
	return nil
}

func (c SIMBAConfig) strategies() []Strategy {
	if len(c.Strategies) == 0 {
		return DefaultStrategies()
	}
	return c.Strategies
}
