// Package random provides the seedable random source injected into the book
// and the feed so that tests can assert exact outcomes.
package random

import (
	"math/rand/v2"
	"time"
)

// Source is the subset of *rand.Rand the simulation draws from. It is not
// safe for concurrent use; the engine only touches it under its write lock.
type Source interface {
	// IntN returns a uniform int in [0, n). It panics if n <= 0.
	IntN(n int) int
	// Float64 returns a uniform float64 in [0, 1).
	Float64() float64
}

// New returns a deterministic source for the given seed. A zero seed is
// replaced with the current time.
func New(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Coin returns true with probability p.
func Coin(rng Source, p float64) bool {
	return rng.Float64() < p
}

// Between returns a uniform int in [lo, hi).
func Between(rng Source, lo, hi int) int {
	return lo + rng.IntN(hi-lo)
}
