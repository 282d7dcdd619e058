package optimizer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/teilomillet/teleprompt/config"
	"github.com/teilomillet/teleprompt/evaluate"
	"github.com/teilomillet/teleprompt/program"
	"github.com/teilomillet/teleprompt/types"
	"github.com/teilomillet/teleprompt/utils"
)

// SIMBA is the stochastic mini-batch optimizer. Iterations run one after another; the work
// inside an iteration runs on the evaluator's worker pool.
//
// Fail-fast on the evaluator applies to the baseline evaluation only. Search batches run on
// a copy that isolates unit failures, so one flaky call never empties a bucket.
type SIMBA struct {
	config            SIMBAConfig
	evaluator         *evaluate.Evaluator
	search            *evaluate.Evaluator
	logger            utils.Logger
	debugManager      *utils.DebugManager
	iterationCallback IterationCallback
	teacher           types.Program
	convergence       ConvergenceCheck
}

// NewSIMBA creates an optimizer with cfg.
func NewSIMBA(cfg SIMBAConfig, opts ...SIMBAOption) *SIMBA {
	s := &SIMBA{
		config: cfg,
		logger: utils.NewLogger(utils.LogLevelWarn),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.evaluator == nil {
		s.evaluator = evaluate.NewEvaluator(evaluate.WithLogger(s.logger))
	}
	s.search = s.evaluator.WithoutFailFast()
	if s.convergence == nil {
		s.convergence = NoImprovementCheck{Patience: s.config.ConvergencePatience}
	}
	return s
}

// NewSIMBAFromConfig wires the logger, evaluator and debug output described by cfg.
// opts are applied last and override them.
func NewSIMBAFromConfig(cfg *config.Config, opts ...SIMBAOption) *SIMBA {
	logger := utils.NewLogger(cfg.LogLevel)
	evalOpts := append(evaluate.OptionsFromConfig(cfg), evaluate.WithLogger(logger))

	base := []SIMBAOption{
		WithLogger(logger),
		WithEvaluator(evaluate.NewEvaluator(evalOpts...)),
	}
	if cfg.DebugDir != "" {
		base = append(base, WithDebugManager(utils.NewDebugManager(utils.DebugOptions{
			Enabled:         true,
			OutputDir:       cfg.DebugDir,
			SaveToFile:      true,
			LogIterations:   true,
			LogTrajectories: true,
		}, logger)))
	}
	return NewSIMBA(SIMBAConfigFromConfig(cfg), append(base, opts...)...)
}

func (s *SIMBA) Name() string {
	return NameSIMBA
}

// Compile optimizes student with the configured teacher.
func (s *SIMBA) Compile(ctx context.Context, student *program.Predict, trainset []types.Example, metric types.Metric) (*OptimizedProgram, error) {
	return s.Optimize(ctx, student, s.teacher, trainset, metric)
}

// run holds the state of one Optimize call.
type run struct {
	id        string
	iteration int
	start     time.Time
	trainset  []types.Example
	metric    types.Metric
	teacher   types.Program
	rng       *utils.RandSource
	sampler   *batchSampler
	pool      *programPool
	best      *program.Predict
	history   []IterationRecord
}

// Optimize searches for a better variant of student. It only fails on invalid input or when
// the baseline evaluation fails; iteration-level failures leave the best program unchanged.
// A nil teacher means the student teaches itself.
func (s *SIMBA) Optimize(ctx context.Context, student *program.Predict, teacher types.Program, trainset []types.Example, metric types.Metric) (*OptimizedProgram, error) {
	if student == nil {
		return nil, types.NewError(types.ErrorTypeInvalidConfig, "student program is nil", nil)
	}
	if metric == nil {
		return nil, types.NewError(types.ErrorTypeInvalidConfig, "metric is nil", nil)
	}
	if len(trainset) == 0 {
		return nil, types.NewError(types.ErrorTypeInsufficientData, "trainset is empty", nil)
	}
	if err := s.config.Validate(); err != nil {
		return nil, err
	}
	if teacher == nil {
		teacher = student
	}

	r := &run{
		id:       uuid.NewString(),
		start:    time.Now(),
		trainset: trainset,
		metric:   metric,
		teacher:  teacher,
		rng:      utils.NewRandSource(s.config.Seed),
	}
	r.sampler = newBatchSampler(trainset, r.rng)

	baseline, err := s.evaluator.Evaluate(ctx, student, trainset, metric)
	if err != nil {
		return nil, fmt.Errorf("baseline evaluation failed: %w", err)
	}
	s.logger.Info("Starting SIMBA", "run_id", r.id, "trainset", len(trainset), "baseline_score", baseline.AverageScore)

	r.pool = newProgramPool(s.config.PoolSize, student, baseline.AverageScore)
	r.best = student
	if s.config.Bootstrap {
		s.seedFromBootstrap(ctx, r, baseline.AverageScore)
	}

	converged, reason := false, ReasonMaxIterations
	for r.iteration = 1; r.iteration <= s.config.MaxIterations; r.iteration++ {
		if ctx.Err() != nil {
			reason = ReasonCancelled
			break
		}
		if s.config.Deadline > 0 && time.Since(r.start) >= s.config.Deadline {
			reason = ReasonDeadline
			break
		}

		record := s.iterate(ctx, r)
		r.history = append(r.history, record)
		s.logger.Info("SIMBA iteration complete",
			"iteration", record.Iteration,
			"candidates", record.Candidates,
			"best_batch_score", record.BestBatchScore,
			"winner_score", record.WinnerScore,
			"accepted", record.Accepted,
			"improved", record.Improved)
		s.debugManager.SaveIteration(r.id, record.Iteration, record)
		if s.iterationCallback != nil {
			s.iterationCallback(record, r.best)
		}

		if done, why := s.convergence.CheckConvergence(r.history); done {
			converged, reason = true, why
			break
		}
	}

	final, score := s.finalize(ctx, r, baseline.AverageScore)
	s.logger.Info("SIMBA finished",
		"run_id", r.id, "score", score, "baseline_score", baseline.AverageScore, "reason", reason)

	return &OptimizedProgram{
		Program:           final,
		Optimizer:         NameSIMBA,
		Iterations:        len(r.history),
		Score:             score,
		BaselineScore:     baseline.AverageScore,
		Converged:         converged,
		ConvergenceReason: reason,
		History:           r.history,
		RunID:             r.id,
		Duration:          time.Since(r.start),
	}, nil
}

// seedFromBootstrap attaches teacher-bootstrapped demos to the student and starts the search
// from that variant when it scores at least as well as the baseline.
func (s *SIMBA) seedFromBootstrap(ctx context.Context, r *run, baselineScore float64) {
	maxDemos := min(s.config.MaxDemos, r.best.MaxDemos())
	demos, err := BootstrapDemos(ctx, r.teacher, r.trainset, r.metric,
		WithQualityThreshold(s.config.QualityThreshold),
		WithBootstrapMaxDemos(maxDemos),
		WithBootstrapEvaluator(s.search))
	if err != nil || len(demos) == 0 {
		s.logger.Warn("Bootstrap seeding produced no demonstrations", "error", err)
		return
	}

	seeded := r.best
	if seeded.MaxDemos() != maxDemos {
		seeded = seeded.WithMaxDemos(maxDemos)
	}
	seeded = seeded.WithDemos(StepBootstrap, demos)
	result, err := s.search.Evaluate(ctx, seeded, r.trainset, r.metric)
	if err != nil {
		s.logger.Warn("Failed to score bootstrapped program", "error", err)
		return
	}
	r.pool.record(seeded, result.AverageScore)
	if result.AverageScore >= baselineScore {
		r.best = seeded
	}
}

// iterate runs one iteration: explore, bucket, mutate, execute, select, accept.
func (s *SIMBA) iterate(ctx context.Context, r *run) IterationRecord {
	start := time.Now()
	record := IterationRecord{Iteration: r.iteration, ProgramID: r.best.ID()}
	defer func() {
		record.Duration = time.Since(start)
	}()

	batch := r.sampler.next(s.config.MiniBatchSize)
	record.BatchSize = len(batch)

	// Exploration pass: the current best plus softmax-sampled pool members.
	explore := []*program.Predict{r.best}
	others := r.pool.others(r.best)
	otherScores := make([]float64, len(others))
	for i, e := range others {
		otherScores[i] = e.score
	}
	for _, idx := range sampleDistinct(r.rng, otherScores, s.config.Temperature, DefaultExplorationSamples) {
		explore = append(explore, others[idx].program)
	}
	record.Explored = len(explore)

	outcomes, err := s.search.RunBatch(ctx, batchJobs(explore, batch), r.metric)
	if err != nil && ctx.Err() != nil {
		record.Error = err.Error()
		return record
	}
	trajectories := toTrajectories(r.iteration, explore, batch, outcomes)
	exploreScores := programScores(explore, trajectories)
	for i, p := range explore {
		r.pool.record(p, exploreScores[i])
	}
	bestBatchScore := exploreScores[0]
	record.BestBatchScore = bestBatchScore
	record.WinnerScore = bestBatchScore

	buckets := buildBuckets(trajectories)
	if len(buckets) > 0 {
		record.MaxSpread = buckets[0].Spread
	}
	s.saveTrajectories(r, trajectories)

	candidates := s.generateCandidates(ctx, r, buckets)
	record.Candidates = len(candidates)
	if len(candidates) == 0 {
		noCandidates := types.NewError(types.ErrorTypeNoCandidates, "no strategy produced a candidate", nil)
		record.Error = noCandidates.Error()
		s.logger.Debug("Iteration produced no candidates", "iteration", r.iteration)
		return record
	}

	// Barrier: every candidate runs on the whole mini-batch before selection.
	outcomes, err = s.search.RunBatch(ctx, batchJobs(candidates, batch), r.metric)
	if err != nil && ctx.Err() != nil {
		record.Error = err.Error()
		return record
	}
	candidateTrajectories := toTrajectories(r.iteration, candidates, batch, outcomes)
	candidateScores := programScores(candidates, candidateTrajectories)
	for i, c := range candidates {
		r.pool.record(c, candidateScores[i])
	}

	pool := make([]scoredProgram, 0, len(explore)+len(candidates))
	for i, p := range explore {
		pool = append(pool, scoredProgram{program: p, score: exploreScores[i]})
	}
	for i, c := range candidates {
		pool = append(pool, scoredProgram{program: c, score: candidateScores[i]})
	}
	winner := pool[selectWinner(r.rng, pool, s.config.Temperature)]
	record.WinnerScore = winner.score
	s.debugManager.Log("run %s iteration %d: winner %s scored %.3f against best %.3f",
		r.id, r.iteration, winner.program.ID(), winner.score, bestBatchScore)

	if winner.score >= bestBatchScore-s.config.AcceptSlack {
		record.Accepted = true
		record.Improved = winner.score > bestBatchScore
		r.best = winner.program
		record.ProgramID = winner.program.ID()
	}
	return record
}

// generateCandidates applies every strategy to the current best, walking buckets from the most
// informative, until NumCandidates variants exist. Failing and inapplicable strategies are skipped.
func (s *SIMBA) generateCandidates(ctx context.Context, r *run, buckets []Bucket) []*program.Predict {
	strategies := s.config.strategies()
	var candidates []*program.Predict
	seen := map[string]bool{}

	for _, bucket := range buckets {
		for _, strategy := range strategies {
			if len(candidates) >= s.config.NumCandidates {
				return candidates
			}
			opts := StrategyOptions{
				Teacher:          r.teacher,
				Bucket:           bucket,
				MaxDemos:         s.config.MaxDemos,
				QualityThreshold: s.config.QualityThreshold,
				Evaluator:        s.search,
				Logger:           s.logger,
			}
			candidate, ok, err := strategy.Apply(ctx, r.best, bucket.Best(), opts)
			if err != nil {
				s.logger.Warn("Strategy failed", "strategy", strategy.Name(), "iteration", r.iteration, "error", err)
				continue
			}
			if !ok || candidate == nil {
				continue
			}
			if candidate.NumDemos() > s.config.MaxDemos {
				candidate = candidate.WithMaxDemos(s.config.MaxDemos)
			}
			key := fingerprint(candidate)
			if seen[key] {
				continue
			}
			seen[key] = true
			candidates = append(candidates, candidate)
		}
	}
	return candidates
}

// finalize scores the pool and the current best on the full trainset and returns the argmax.
// The baseline competes with its baseline score, so the result never scores below it.
func (s *SIMBA) finalize(ctx context.Context, r *run, baselineScore float64) (*program.Predict, float64) {
	bestProgram, bestScore := r.pool.baseline.program, baselineScore

	finalists := r.pool.others(r.pool.baseline.program)
	if !r.pool.contains(r.best) {
		finalists = append(finalists, poolEntry{program: r.best})
	}
	for _, e := range finalists {
		result, err := s.search.Evaluate(ctx, e.program, r.trainset, r.metric)
		if err != nil {
			s.logger.Warn("Final evaluation failed", "program_id", e.program.ID(), "error", err)
			continue
		}
		better := result.AverageScore > bestScore
		simpler := result.AverageScore == bestScore && e.program.NumDemos() < bestProgram.NumDemos()
		if better || simpler {
			bestProgram, bestScore = e.program, result.AverageScore
		}
	}
	return bestProgram, bestScore
}

type trajectorySnapshot struct {
	ProgramID    string         `json:"program_id"`
	ExampleIndex int            `json:"example_index"`
	Score        float64        `json:"score"`
	Outputs      map[string]any `json:"outputs,omitempty"`
	Error        string         `json:"error,omitempty"`
}

func (s *SIMBA) saveTrajectories(r *run, trajectories []Trajectory) {
	if !s.debugManager.IsEnabled() {
		return
	}
	snapshots := make([]trajectorySnapshot, len(trajectories))
	for i, t := range trajectories {
		snapshots[i] = trajectorySnapshot{
			ProgramID:    t.Program.ID(),
			ExampleIndex: t.ExampleIndex,
			Score:        t.Score,
			Outputs:      t.Prediction.Outputs,
		}
		if t.Err != nil {
			snapshots[i].Error = t.Err.Error()
		}
	}
	s.debugManager.SaveTrajectories(r.id, r.iteration, snapshots)
}

// fingerprint identifies a program by content so strategies producing the same variant
// from different buckets yield one candidate.
func fingerprint(p *program.Predict) string {
	key := p.Instruction()
	for _, d := range p.Demos() {
		key += fmt.Sprintf("|%x", d.Hash())
	}
	return key
}
