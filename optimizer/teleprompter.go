package optimizer

import (
	"context"
	"sort"

	"github.com/teilomillet/teleprompt/config"
	"github.com/teilomillet/teleprompt/evaluate"
	"github.com/teilomillet/teleprompt/program"
	"github.com/teilomillet/teleprompt/types"
	"github.com/teilomillet/teleprompt/utils"
)

// Teleprompter compiles a student program against a trainset and a metric.
type Teleprompter interface {
	Name() string
	Compile(ctx context.Context, student *program.Predict, trainset []types.Example, metric types.Metric) (*OptimizedProgram, error)
}

var (
	_ Teleprompter = (*SIMBA)(nil)
	_ Teleprompter = (*BootstrapFewShot)(nil)
)

// TeleprompterFactory builds a teleprompter from configuration and an optional teacher.
type TeleprompterFactory func(cfg *config.Config, teacher types.Program) (Teleprompter, error)

// TeleprompterRegistry maps names to factories.
type TeleprompterRegistry struct {
	factories map[string]TeleprompterFactory
}

// NewTeleprompterRegistry returns a registry holding SIMBA and BootstrapFewShot.
func NewTeleprompterRegistry() *TeleprompterRegistry {
	r := &TeleprompterRegistry{factories: make(map[string]TeleprompterFactory)}
	r.Register(NameSIMBA, func(cfg *config.Config, teacher types.Program) (Teleprompter, error) {
		return NewSIMBAFromConfig(cfg, WithTeacher(teacher)), nil
	})
	r.Register(NameBootstrapFewShot, func(cfg *config.Config, teacher types.Program) (Teleprompter, error) {
		logger := utils.NewLogger(cfg.LogLevel)
		evaluator := evaluate.NewEvaluator(append(evaluate.OptionsFromConfig(cfg), evaluate.WithLogger(logger))...)
		return NewBootstrapFewShot(teacher,
			WithQualityThreshold(cfg.QualityThreshold),
			WithBootstrapMaxDemos(cfg.MaxDemos),
			WithBootstrapEvaluator(evaluator),
		), nil
	})
	return r
}

// Register adds or replaces the factory for name.
func (r *TeleprompterRegistry) Register(name string, factory TeleprompterFactory) {
	r.factories[name] = factory
}

// Create builds the named teleprompter after validating cfg.
func (r *TeleprompterRegistry) Create(name string, cfg *config.Config, teacher types.Program) (Teleprompter, error) {
	factory, ok := r.factories[name]
	if !ok {
		return nil, types.NewError(types.ErrorTypeInvalidConfig, "unknown teleprompter: "+name, nil)
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return factory(cfg, teacher)
}

func (r *TeleprompterRegistry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
