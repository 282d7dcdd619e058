package utils

import (
	"math/rand"
	"sync"
	"time"
)

// RandSource is a seeded, mutex-guarded random number generator.
// A fixed seed makes mini-batch sampling and softmax selection reproducible.
type RandSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandSource creates a new random source with the given seed; 0 seeds from the clock.
func NewRandSource(seed int64) *RandSource {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RandSource{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// Float64 returns a random float64 in [0.0, 1.0)
func (r *RandSource) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64()
}

// Perm returns a random permutation of [0, n)
func (r *RandSource) Perm(n int) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Perm(n)
}
