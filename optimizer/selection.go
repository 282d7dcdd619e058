package optimizer

import (
	"math"

	"github.com/teilomillet/teleprompt/program"
	"github.com/teilomillet/teleprompt/utils"
)

type scoredProgram struct {
	program *program.Predict
	score   float64
}

// softmaxWeights returns exp((s - max) / temperature) for every score. A temperature of zero
// puts all the weight on the maximum.
func softmaxWeights(scores []float64, temperature float64) []float64 {
	weights := make([]float64, len(scores))
	if len(scores) == 0 {
		return weights
	}
	best := scores[0]
	for _, s := range scores[1:] {
		best = max(best, s)
	}
	for i, s := range scores {
		switch {
		case temperature <= 0 && s == best:
			weights[i] = 1
		case temperature <= 0:
			weights[i] = 0
		default:
			weights[i] = math.Exp((s - best) / temperature)
		}
	}
	return weights
}

// sampleIndex draws an index proportionally to weights.
func sampleIndex(rng *utils.RandSource, weights []float64) int {
	var total float64
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return 0
	}
	r := rng.Float64() * total
	for i, w := range weights {
		r -= w
		if r < 0 {
			return i
		}
	}
	return len(weights) - 1
}

// selectWinner picks a program by softmax over its real score. Programs with equal scores are
// first collapsed onto the one carrying the fewest demonstrations, earliest wins on a full tie.
func selectWinner(rng *utils.RandSource, candidates []scoredProgram, temperature float64) int {
	var reps []int
	for i, c := range candidates {
		merged := false
		for j, r := range reps {
			if candidates[r].score != c.score {
				continue
			}
			if c.program.NumDemos() < candidates[r].program.NumDemos() {
				reps[j] = i
			}
			merged = true
			break
		}
		if !merged {
			reps = append(reps, i)
		}
	}

	scores := make([]float64, len(reps))
	for i, r := range reps {
		scores[i] = candidates[r].score
	}
	return reps[sampleIndex(rng, softmaxWeights(scores, temperature))]
}

// sampleDistinct draws up to k distinct indices by repeated softmax sampling without replacement.
func sampleDistinct(rng *utils.RandSource, scores []float64, temperature float64, k int) []int {
	remaining := make([]int, len(scores))
	for i := range remaining {
		remaining[i] = i
	}

	var picked []int
	for len(picked) < k && len(remaining) > 0 {
		sub := make([]float64, len(remaining))
		for i, idx := range remaining {
			sub[i] = scores[idx]
		}
		j := sampleIndex(rng, softmaxWeights(sub, temperature))
		picked = append(picked, remaining[j])
		remaining = append(remaining[:j], remaining[j+1:]...)
	}
	return picked
}
