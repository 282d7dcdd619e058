package optimizer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teilomillet/teleprompt/evaluate"
	"github.com/teilomillet/teleprompt/program"
	"github.com/teilomillet/teleprompt/types"
)

func TestBuildBuckets(t *testing.T) {
	batch := arithmetic(3)
	p1 := program.New("qa", nil)
	p2 := p1.WithInstruction("x", "x")
	programs := []*program.Predict{p1, p2}

	jobs := batchJobs(programs, batch)
	require.Len(t, jobs, 6)
	assert.Same(t, p2, jobs[4].Program)
	assert.True(t, jobs[4].Example.Equal(batch[1]))

	// p1 scores [1, 0, 0.5], p2 scores [1, 1, 0.5]
	scores := []float64{1, 0, 0.5, 1, 1, 0.5}
	outcomes := make([]evaluate.Outcome, len(scores))
	for i, s := range scores {
		outcomes[i] = evaluate.Outcome{Index: i, Score: s}
	}
	outcomes[1].Err = errors.New("boom")

	trajectories := toTrajectories(4, programs, batch, outcomes)
	require.Len(t, trajectories, 6)
	assert.Equal(t, 4, trajectories[0].Iteration)
	assert.Equal(t, 2, trajectories[5].ExampleIndex)

	assert.Equal(t, []float64{0.5, 2.5 / 3}, programScores(programs, trajectories))

	buckets := buildBuckets(trajectories)
	require.Len(t, buckets, 3)
	assert.Equal(t, 1, buckets[0].ExampleIndex, "largest spread first")
	assert.Equal(t, 1.0, buckets[0].Spread)
	assert.Same(t, p2, buckets[0].Best().Program)
	assert.Same(t, p1, buckets[0].Worst().Program)

	assert.Equal(t, 0, buckets[1].ExampleIndex, "then highest max score")
	assert.Equal(t, 2, buckets[2].ExampleIndex)
	for _, b := range buckets {
		assert.GreaterOrEqual(t, b.Spread, 0.0)
		assert.Len(t, b.Trajectories, 2)
		for _, tr := range b.Trajectories {
			assert.Equal(t, b.ExampleIndex, tr.ExampleIndex)
		}
	}
	assert.InDelta(t, 0.5, buckets[2].AvgScore, 1e-9)
}

func TestBucketBestPrefersSuccess(t *testing.T) {
	b := Bucket{Trajectories: []Trajectory{
		{Score: 0, Err: errors.New("failed")},
		{Score: 0, Prediction: types.Prediction{Outputs: map[string]any{"a": "1"}}},
	}}
	assert.NoError(t, b.Best().Err)
}
