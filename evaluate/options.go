package evaluate

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/teilomillet/teleprompt/config"
	"github.com/teilomillet/teleprompt/utils"
)

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithMaxConcurrency bounds the number of in-flight units. Zero or less means GOMAXPROCS.
func WithMaxConcurrency(n int) Option {
	return func(e *Evaluator) {
		e.maxConcurrency = n
	}
}

// WithTimeout gives every program call and every metric call its own deadline.
func WithTimeout(d time.Duration) Option {
	return func(e *Evaluator) {
		e.timeout = d
	}
}

// WithFailFast cancels pending and in-flight units on the first failure.
func WithFailFast(failFast bool) Option {
	return func(e *Evaluator) {
		e.failFast = failFast
	}
}

// WithRateLimiter makes every program call wait for a token from limiter.
func WithRateLimiter(limiter *rate.Limiter) Option {
	return func(e *Evaluator) {
		e.limiter = limiter
	}
}

func WithLogger(logger utils.Logger) Option {
	return func(e *Evaluator) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// OptionsFromConfig maps the engine section of cfg to evaluator options.
func OptionsFromConfig(cfg *config.Config) []Option {
	opts := []Option{
		WithMaxConcurrency(cfg.MaxConcurrency),
		WithTimeout(cfg.TimeoutPerExample),
		WithFailFast(cfg.FailFast),
	}
	if cfg.RateLimit > 0 {
		opts = append(opts, WithRateLimiter(rate.NewLimiter(rate.Limit(cfg.RateLimit), max(cfg.RateBurst, 1))))
	}
	return opts
}
