// Package sampler selects a day-stable random subset of a candidate pool.
package sampler

import (
	"math/rand/v2"

	"github.com/starford/paperfeed/internal/models"
)

// seedMix decorrelates the second PCG word from the ordinal.
const seedMix = 0x9e3779b97f4a7c15

// Sample returns min(len(pool), k) elements of pool.
//
// When the pool is no larger than k it is returned as is. Otherwise the
// result is a uniform sample without replacement drawn from a generator
// seeded by day, so every call on the same day yields the same subset.
// The generator is local to the call; global randomness is untouched.
func Sample[T any](pool []T, k int, day models.Day) []T {
	if k <= 0 {
		return []T{}
	}
	if len(pool) <= k {
		return pool
	}

	ord := uint64(day.Ordinal())
	rng := rand.New(rand.NewPCG(ord, ord^seedMix))

	// Partial Fisher-Yates over an index permutation keeps pool untouched.
	idx := make([]int, len(pool))
	for i := range idx {
		idx[i] = i
	}
	out := make([]T, k)
	for i := 0; i < k; i++ {
		j := i + rng.IntN(len(idx)-i)
		idx[i], idx[j] = idx[j], idx[i]
		out[i] = pool[idx[i]]
	}
	return out
}
