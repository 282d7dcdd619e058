// Package evaluate runs programs over datasets with bounded concurrency and scores them with a metric.
//
// Every unit of work (one program call followed by one metric call) is isolated: a failure,
// a panic or a timeout scores that unit 0.0 and is recorded on its Outcome instead of aborting
// the batch, unless fail-fast is enabled.
package evaluate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"time"

	"github.com/sourcegraph/conc/pool"
	"golang.org/x/time/rate"

	"github.com/teilomillet/teleprompt/types"
	"github.com/teilomillet/teleprompt/utils"
)

// Job is one unit of work: run Program on Example.
type Job struct {
	Index   int
	Program types.Program
	Example types.Example
}

// Evaluator is the evaluation engine. It holds no per-run state and is safe for concurrent use.
type Evaluator struct {
	maxConcurrency int
	timeout        time.Duration
	failFast       bool
	limiter        *rate.Limiter
	logger         utils.Logger
}

// NewEvaluator creates an Evaluator. Without options it runs GOMAXPROCS units at a time,
// without timeouts, and isolates every failure.
func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{
		logger: utils.NewLogger(utils.LogLevelWarn),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Concurrency returns the effective bound on in-flight units.
func (e *Evaluator) Concurrency() int {
	if e.maxConcurrency > 0 {
		return e.maxConcurrency
	}
	return runtime.GOMAXPROCS(0)
}

func (e *Evaluator) Logger() utils.Logger {
	return e.logger
}

func (e *Evaluator) FailFast() bool {
	return e.failFast
}

// WithoutFailFast returns a copy that isolates every unit failure. The copy shares the
// rate limiter, so both stay within the same request budget.
func (e *Evaluator) WithoutFailFast() *Evaluator {
	clone := *e
	clone.failFast = false
	return &clone
}

// Execute performs a single guarded program call: it honours the rate limiter and the
// per-unit timeout, and converts panics into errors.
func (e *Evaluator) Execute(ctx context.Context, prog types.Program, inputs map[string]any) (map[string]any, error) {
	if prog == nil {
		return nil, types.NewError(types.ErrorTypeInvalidConfig, "program is nil", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, types.NewError(types.ErrorTypeExecution, "evaluation cancelled", err)
	}
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, types.NewError(types.ErrorTypeExecution, "rate limiter wait failed", err)
		}
	}

	outputs, err := guard(ctx, e.timeout, func(ctx context.Context) (map[string]any, error) {
		return prog.Execute(ctx, inputs)
	})
	if err != nil {
		return nil, classify(err, types.ErrorTypeExecution, "program execution failed")
	}
	return outputs, nil
}

// Run executes one job and scores it. It never returns a failure other than through Outcome.Err.
func (e *Evaluator) Run(ctx context.Context, job Job, metric types.Metric) Outcome {
	start := time.Now()
	outcome := Outcome{Index: job.Index, Example: job.Example}
	defer func() {
		outcome.Duration = time.Since(start)
	}()

	if !job.Example.HasInputs() {
		outcome.Err = types.NewError(types.ErrorTypeExecution, fmt.Sprintf("example %d has no input keys", job.Index), nil)
		outcome.Prediction = types.Prediction{Err: outcome.Err}
		e.logFailure(outcome)
		return outcome
	}

	outputs, err := e.Execute(ctx, job.Program, job.Example.Inputs())
	if err != nil {
		outcome.Err = err
		outcome.Prediction = types.Prediction{Err: err}
		e.logFailure(outcome)
		return outcome
	}

	prediction := types.Prediction{Outputs: outputs}
	score, err := guard(ctx, e.timeout, func(context.Context) (float64, error) {
		return metric(job.Example, prediction)
	})
	if err != nil {
		outcome.Err = classify(err, types.ErrorTypeMetric, "metric failed")
		outcome.Prediction = prediction
		e.logFailure(outcome)
		return outcome
	}

	if math.IsNaN(score) || math.IsInf(score, 0) {
		outcome.Err = types.NewError(types.ErrorTypeMetric, fmt.Sprintf("metric returned %v", score), nil)
		outcome.Prediction = prediction
		e.logFailure(outcome)
		return outcome
	}

	outcome.Score = score
	outcome.Prediction = prediction.WithScore(score)
	return outcome
}

// RunBatch runs jobs with bounded concurrency and returns their outcomes in job order.
// With fail-fast the first unit error cancels the remaining work and is returned.
func (e *Evaluator) RunBatch(ctx context.Context, jobs []Job, metric types.Metric) ([]Outcome, error) {
	if metric == nil {
		return nil, types.NewError(types.ErrorTypeInvalidConfig, "metric is nil", nil)
	}
	outcomes := make([]Outcome, len(jobs))
	if len(jobs) == 0 {
		return outcomes, nil
	}

	if e.failFast {
		p := pool.New().
			WithContext(ctx).
			WithCancelOnError().
			WithFirstError().
			WithMaxGoroutines(e.Concurrency())
		for i, job := range jobs {
			p.Go(func(ctx context.Context) error {
				outcomes[i] = e.Run(ctx, job, metric)
				return outcomes[i].Err
			})
		}
		if err := p.Wait(); err != nil {
			return outcomes, err
		}
		return outcomes, nil
	}

	p := pool.New().WithMaxGoroutines(e.Concurrency())
	for i, job := range jobs {
		p.Go(func() {
			outcomes[i] = e.Run(ctx, job, metric)
		})
	}
	p.Wait()
	return outcomes, ctx.Err()
}

// Stream runs jobs with bounded concurrency and delivers outcomes in completion order.
// The channel is closed once every job has been delivered. Fail-fast does not apply.
func (e *Evaluator) Stream(ctx context.Context, jobs []Job, metric types.Metric) <-chan Outcome {
	out := make(chan Outcome, len(jobs))
	if metric == nil {
		err := types.NewError(types.ErrorTypeInvalidConfig, "metric is nil", nil)
		for _, job := range jobs {
			out <- Outcome{Index: job.Index, Example: job.Example, Err: err, Prediction: types.Prediction{Err: err}}
		}
		close(out)
		return out
	}

	go func() {
		defer close(out)
		p := pool.New().WithMaxGoroutines(e.Concurrency())
		for _, job := range jobs {
			p.Go(func() {
				out <- e.Run(ctx, job, metric)
			})
		}
		p.Wait()
	}()
	return out
}

// Evaluate scores prog on every example and aggregates the mean.
func (e *Evaluator) Evaluate(ctx context.Context, prog types.Program, examples []types.Example, metric types.Metric) (*EvalResult, error) {
	if prog == nil {
		return nil, types.NewError(types.ErrorTypeInvalidConfig, "program is nil", nil)
	}
	jobs := make([]Job, len(examples))
	for i, ex := range examples {
		jobs[i] = Job{Index: i, Program: prog, Example: ex}
	}

	outcomes, err := e.RunBatch(ctx, jobs, metric)
	if err != nil {
		return nil, err
	}
	result := newEvalResult(outcomes)
	e.logger.Debug("Evaluation complete",
		"total", result.Total, "average_score", result.AverageScore, "failures", result.Failures)
	return result, nil
}

// Evaluate scores prog on examples with a one-off Evaluator built from opts.
func Evaluate(ctx context.Context, prog types.Program, examples []types.Example, metric types.Metric, opts ...Option) (*EvalResult, error) {
	return NewEvaluator(opts...).Evaluate(ctx, prog, examples, metric)
}

func (e *Evaluator) logFailure(o Outcome) {
	var optErr *types.OptimizationError
	if errors.As(o.Err, &optErr) {
		e.logger.Debug("Unit failed", append([]any{"index", o.Index}, optErr.LoggableFields()...)...)
		return
	}
	e.logger.Debug("Unit failed", "index", o.Index, "error", o.Err)
}

// guard runs fn under an optional timeout, recovering panics. fn keeps running in the
// background if the deadline fires first; its result is discarded.
func guard[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		v, err := fn(ctx)
		done <- result{value: v, err: err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// classify wraps err into the error taxonomy. A deadline becomes a TimeoutError.
func classify(err error, errType types.ErrorType, message string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewError(types.ErrorTypeTimeout, "unit exceeded its deadline", err)
	}
	return types.NewError(errType, message, err)
}
