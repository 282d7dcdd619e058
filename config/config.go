// Package config loads the engine and optimizer settings from the environment or a YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/teilomillet/teleprompt/types"
	"github.com/teilomillet/teleprompt/utils"
)

// Config holds every tunable of the evaluation engine, the bootstrap selector and SIMBA.
type Config struct {
	// Evaluation engine
	MaxConcurrency    int           `env:"MAX_CONCURRENCY" envDefault:"0" yaml:"max_concurrency" validate:"gte=0"`
	TimeoutPerExample time.Duration `env:"TIMEOUT_PER_EXAMPLE" envDefault:"0s" yaml:"timeout_per_example" validate:"gte=0"`
	FailFast          bool          `env:"FAIL_FAST" envDefault:"false" yaml:"fail_fast"`
	RateLimit         float64       `env:"RATE_LIMIT" envDefault:"0" yaml:"rate_limit" validate:"gte=0"`
	RateBurst         int           `env:"RATE_BURST" envDefault:"1" yaml:"rate_burst" validate:"gte=1"`

	// Bootstrap selector
	QualityThreshold float64 `env:"QUALITY_THRESHOLD" envDefault:"0.5" yaml:"quality_threshold" validate:"probability"`
	MaxDemos         int     `env:"MAX_DEMOS" envDefault:"16" yaml:"max_demos" validate:"gte=0"`

	// SIMBA
	NumCandidates       int           `env:"NUM_CANDIDATES" envDefault:"6" yaml:"num_candidates" validate:"gte=1"`
	MiniBatchSize       int           `env:"MINI_BATCH_SIZE" envDefault:"32" yaml:"mini_batch_size" validate:"gte=1"`
	MaxIterations       int           `env:"MAX_ITERATIONS" envDefault:"8" yaml:"max_iterations" validate:"gte=1"`
	ConvergencePatience int           `env:"CONVERGENCE_PATIENCE" envDefault:"3" yaml:"convergence_patience" validate:"gte=0"`
	Temperature         float64       `env:"TEMPERATURE" envDefault:"1.0" yaml:"temperature" validate:"gte=0"`
	AcceptSlack         float64       `env:"ACCEPT_SLACK" envDefault:"0" yaml:"accept_slack" validate:"gte=0"`
	PoolSize            int           `env:"POOL_SIZE" envDefault:"3" yaml:"pool_size" validate:"gte=1"`
	Deadline            time.Duration `env:"DEADLINE" envDefault:"0s" yaml:"deadline" validate:"gte=0"`
	Seed                int64         `env:"SEED" envDefault:"0" yaml:"seed"`
	Bootstrap           bool          `env:"BOOTSTRAP" envDefault:"false" yaml:"bootstrap"`

	// Prompting
	TokenBudget    int    `env:"TOKEN_BUDGET" envDefault:"0" yaml:"token_budget" validate:"gte=0"`
	TokenizerModel string `env:"TOKENIZER_MODEL" envDefault:"gpt-4o" yaml:"tokenizer_model" validate:"required_with=TokenBudget"`

	// Runtime
	LogLevel utils.LogLevel `env:"LOG_LEVEL" envDefault:"WARN" yaml:"log_level"`
	DebugDir string         `env:"DEBUG_DIR" yaml:"debug_dir"`
}

// EnvPrefix is prepended to every environment variable name, e.g. TELEPROMPT_MAX_DEMOS.
const EnvPrefix = "TELEPROMPT_"

// LoadConfig reads the configuration from the environment, falling back to the defaults.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads a YAML file on top of the defaults. Keys missing from the file keep their default.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg := NewConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the struct tags and reports violations as an InvalidConfig error.
func (c *Config) Validate() error {
	if err := utils.Validate(c); err != nil {
		return types.NewError(types.ErrorTypeInvalidConfig, "invalid configuration", err)
	}
	return nil
}

type ConfigOption func(*Config)

// NewConfig returns the defaults, identical to LoadConfig on an empty environment.
func NewConfig() *Config {
	return &Config{
		MaxConcurrency:      0,
		RateBurst:           1,
		QualityThreshold:    0.5,
		MaxDemos:            16,
		NumCandidates:       6,
		MiniBatchSize:       32,
		MaxIterations:       8,
		ConvergencePatience: 3,
		Temperature:         1.0,
		PoolSize:            3,
		TokenizerModel:      "gpt-4o",
		LogLevel:            utils.LogLevelWarn,
	}
}

func SetMaxConcurrency(n int) ConfigOption {
	return func(c *Config) {
		c.MaxConcurrency = n
	}
}

func SetTimeoutPerExample(timeout time.Duration) ConfigOption {
	return func(c *Config) {
		c.TimeoutPerExample = timeout
	}
}

func SetFailFast(failFast bool) ConfigOption {
	return func(c *Config) {
		c.FailFast = failFast
	}
}

// SetRateLimit caps program executions to perSecond with the given burst. Zero disables limiting.
func SetRateLimit(perSecond float64, burst int) ConfigOption {
	return func(c *Config) {
		c.RateLimit = perSecond
		if burst < 1 {
			burst = 1
		}
		c.RateBurst = burst
	}
}

func SetQualityThreshold(threshold float64) ConfigOption {
	return func(c *Config) {
		c.QualityThreshold = threshold
	}
}

func SetMaxDemos(n int) ConfigOption {
	return func(c *Config) {
		c.MaxDemos = n
	}
}

func SetNumCandidates(n int) ConfigOption {
	return func(c *Config) {
		c.NumCandidates = n
	}
}

func SetMiniBatchSize(n int) ConfigOption {
	return func(c *Config) {
		c.MiniBatchSize = n
	}
}

func SetMaxIterations(n int) ConfigOption {
	return func(c *Config) {
		c.MaxIterations = n
	}
}

func SetConvergencePatience(n int) ConfigOption {
	return func(c *Config) {
		c.ConvergencePatience = n
	}
}

func SetTemperature(t float64) ConfigOption {
	return func(c *Config) {
		c.Temperature = t
	}
}

func SetAcceptSlack(slack float64) ConfigOption {
	return func(c *Config) {
		c.AcceptSlack = slack
	}
}

func SetPoolSize(n int) ConfigOption {
	return func(c *Config) {
		c.PoolSize = n
	}
}

func SetDeadline(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.Deadline = d
	}
}

func SetSeed(seed int64) ConfigOption {
	return func(c *Config) {
		c.Seed = seed
	}
}

func SetBootstrap(enabled bool) ConfigOption {
	return func(c *Config) {
		c.Bootstrap = enabled
	}
}

// SetTokenBudget caps LM prompts at budget tokens as counted by the tokenizer of model.
// Zero disables the budget.
func SetTokenBudget(budget int, model string) ConfigOption {
	return func(c *Config) {
		c.TokenBudget = budget
		if model != "" {
			c.TokenizerModel = model
		}
	}
}

func SetLogLevel(level utils.LogLevel) ConfigOption {
	return func(c *Config) {
		c.LogLevel = level
	}
}

func SetDebugDir(dir string) ConfigOption {
	return func(c *Config) {
		c.DebugDir = dir
	}
}

func ApplyOptions(cfg *Config, options ...ConfigOption) {
	for _, option := range options {
		option(cfg)
	}
}
