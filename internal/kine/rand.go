package kine

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mathext/prng"
)

// NewRand returns a Mersenne Twister backed generator seeded with seed.
// Each worker owns its own generator; it is not safe for concurrent use.
func NewRand(seed uint64) *rand.Rand {
	src := prng.NewMT19937()
	src.Seed(seed)
	return rand.New(src)
}

// uniformIn draws from U(lo, hi).
func uniformIn(rng Uniform, lo, hi float64) float64 {
	return lo + (hi-lo)*rng.Float64()
}
