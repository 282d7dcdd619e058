package optimizer

import (
	"slices"

	"github.com/teilomillet/teleprompt/types"
	"github.com/teilomillet/teleprompt/utils"
)

// batchSampler draws mini-batches uniformly without replacement within an epoch and
// reshuffles once the epoch is exhausted.
type batchSampler struct {
	trainset []types.Example
	rng      *utils.RandSource
	perm     []int
	pos      int
}

func newBatchSampler(trainset []types.Example, rng *utils.RandSource) *batchSampler {
	return &batchSampler{trainset: trainset, rng: rng}
}

// next returns a batch of distinct examples, clamped to the trainset size.
func (s *batchSampler) next(size int) []types.Example {
	size = min(size, len(s.trainset))
	indices := make([]int, 0, size)
	for len(indices) < size {
		if s.pos >= len(s.perm) {
			s.perm = s.rng.Perm(len(s.trainset))
			s.pos = 0
		}
		idx := s.perm[s.pos]
		s.pos++
		if slices.Contains(indices, idx) {
			continue
		}
		indices = append(indices, idx)
	}

	batch := make([]types.Example, len(indices))
	for i, idx := range indices {
		batch[i] = s.trainset[idx]
	}
	return batch
}
