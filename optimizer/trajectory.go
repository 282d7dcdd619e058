package optimizer

import (
	"cmp"
	"slices"

	"github.com/teilomillet/teleprompt/evaluate"
	"github.com/teilomillet/teleprompt/program"
	"github.com/teilomillet/teleprompt/types"
)

// Best returns the highest-scoring successful trajectory, falling back to the first one.
func (b Bucket) Best() Trajectory {
	best := b.Trajectories[0]
	for _, t := range b.Trajectories[1:] {
		if betterTrajectory(t, best) {
			best = t
		}
	}
	return best
}

// Worst returns the lowest-scoring trajectory.
func (b Bucket) Worst() Trajectory {
	worst := b.Trajectories[0]
	for _, t := range b.Trajectories[1:] {
		if t.Score < worst.Score {
			worst = t
		}
	}
	return worst
}

func betterTrajectory(a, b Trajectory) bool {
	if (a.Err == nil) != (b.Err == nil) {
		return a.Err == nil
	}
	return a.Score > b.Score
}

// toTrajectories maps batch outcomes back to the programs and mini-batch positions they ran on.
// jobs and outcomes are index-aligned.
func toTrajectories(iteration int, programs []*program.Predict, batch []types.Example, outcomes []evaluate.Outcome) []Trajectory {
	trajectories := make([]Trajectory, len(outcomes))
	for i, o := range outcomes {
		trajectories[i] = Trajectory{
			Iteration:    iteration,
			Program:      programs[i/len(batch)],
			ExampleIndex: i % len(batch),
			Example:      batch[i%len(batch)],
			Prediction:   o.Prediction,
			Score:        o.Score,
			Err:          o.Err,
		}
	}
	return trajectories
}

// batchJobs builds one job per (program, example) pair, program-major.
func batchJobs(programs []*program.Predict, batch []types.Example) []evaluate.Job {
	jobs := make([]evaluate.Job, 0, len(programs)*len(batch))
	for _, p := range programs {
		for _, ex := range batch {
			jobs = append(jobs, evaluate.Job{Index: len(jobs), Program: p, Example: ex})
		}
	}
	return jobs
}

// programScores averages the trajectory scores of each program, in program order.
func programScores(programs []*program.Predict, trajectories []Trajectory) []float64 {
	scores := make([]float64, len(programs))
	if len(trajectories) == 0 {
		return scores
	}
	perProgram := len(trajectories) / len(programs)
	for i := range programs {
		var sum float64
		for _, t := range trajectories[i*perProgram : (i+1)*perProgram] {
			sum += t.Score
		}
		scores[i] = sum / float64(perProgram)
	}
	return scores
}

// buildBuckets groups trajectories by mini-batch example and orders the buckets so the most
// informative come first: largest spread, then highest max score.
func buildBuckets(trajectories []Trajectory) []Bucket {
	byExample := make(map[int]*Bucket)
	var order []int
	for _, t := range trajectories {
		b, ok := byExample[t.ExampleIndex]
		if !ok {
			b = &Bucket{ExampleIndex: t.ExampleIndex, Example: t.Example}
			byExample[t.ExampleIndex] = b
			order = append(order, t.ExampleIndex)
		}
		b.Trajectories = append(b.Trajectories, t)
	}

	buckets := make([]Bucket, 0, len(order))
	for _, idx := range order {
		b := byExample[idx]
		b.MaxScore = b.Trajectories[0].Score
		b.MinScore = b.Trajectories[0].Score
		var sum float64
		for _, t := range b.Trajectories {
			b.MaxScore = max(b.MaxScore, t.Score)
			b.MinScore = min(b.MinScore, t.Score)
			sum += t.Score
		}
		b.AvgScore = sum / float64(len(b.Trajectories))
		b.Spread = b.MaxScore - b.MinScore
		buckets = append(buckets, *b)
	}

	slices.SortStableFunc(buckets, func(a, b Bucket) int {
		if c := cmp.Compare(b.Spread, a.Spread); c != 0 {
			return c
		}
		return cmp.Compare(b.MaxScore, a.MaxScore)
	})
	return buckets
}
