package kine

// Uniform is a source of uniform variates in [0, 1).
// *math/rand/v2.Rand satisfies it; see NewRand.
type Uniform interface {
	Float64() float64
}

// RateModel evaluates the differential rate of a candidate outcome.
// Implementations must return a value >= 0 and may be expensive.
type RateModel interface {
	Evaluate(c *Candidate) float64
}

// RateFunc adapts an ordinary function to RateModel.
type RateFunc func(c *Candidate) float64

// Evaluate calls f(c).
func (f RateFunc) Evaluate(c *Candidate) float64 {
	return f(c)
}

// ConfigurationSampler draws a bound-nucleon 3-momentum and removal energy
// for the target of in, at the given radius (fm) inside the nucleus.
type ConfigurationSampler interface {
	Draw(in *Interaction, radius float64, rng Uniform) BoundParticleSample
}

// ExclusionCheck decides whether a recoil nucleon is Pauli blocked.
//
// Threshold returns the blocking momentum (GeV) at radius. IsExcluded
// applies the check to a recoil momentum; skip=true disables it for that
// single call. The skip decision is returned per event in
// AcceptedKinematics.SkipExclusionCheck rather than stored on the checker.
type ExclusionCheck interface {
	Threshold(in *Interaction, radius float64) float64
	IsExcluded(in *Interaction, momentum, radius float64, skip bool) bool
}
