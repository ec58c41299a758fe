package kine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/kinegen/internal/pdg"
)

// shellSampler draws isotropic momenta of fixed magnitude.
type shellSampler struct {
	momentum float64
	removal  float64
	draws    int
}

func (s *shellSampler) Draw(in *Interaction, radius float64, rng Uniform) BoundParticleSample {
	s.draws++
	c := uniformIn(rng, -1, 1)
	phi := uniformIn(rng, 0, 2*math.Pi)
	sn := math.Sqrt(1 - c*c)
	return BoundParticleSample{
		Momentum: r3.Vec{
			X: s.momentum * sn * math.Cos(phi),
			Y: s.momentum * sn * math.Sin(phi),
			Z: s.momentum * c,
		},
		RemovalEnergy: s.removal,
	}
}

// fixedSampler always returns the same sample and remembers the radii it
// was asked for.
type fixedSampler struct {
	sample BoundParticleSample
	draws  int
	radii  []float64
}

func (s *fixedSampler) Draw(in *Interaction, radius float64, rng Uniform) BoundParticleSample {
	s.draws++
	s.radii = append(s.radii, radius)
	return s.sample
}

type fixedExclusion struct {
	kF float64
}

func (e fixedExclusion) Threshold(in *Interaction, radius float64) float64 { return e.kF }

// radiusExclusion records the radius of every threshold query.
type radiusExclusion struct {
	fixedExclusion
	radii *[]float64
}

func (e radiusExclusion) Threshold(in *Interaction, radius float64) float64 {
	*e.radii = append(*e.radii, radius)
	return e.kF
}

func (e fixedExclusion) IsExcluded(in *Interaction, momentum, radius float64, skip bool) bool {
	return !skip && momentum < e.kF
}

// countingRate wraps a rate function and counts evaluations.
type countingRate struct {
	fn    func(c *Candidate) float64
	calls int
}

func (r *countingRate) Evaluate(c *Candidate) float64 {
	r.calls++
	return r.fn(c)
}

func constantRate(v float64) RateFunc {
	return func(*Candidate) float64 { return v }
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.NucleonThrows = 50
	cfg.SearchMaxLayers = 10
	return cfg
}

func freeNeutronCC(t *testing.T, energy float64) *Interaction {
	t.Helper()
	in, err := NewInteraction(pdg.NuMu, energy, pdg.Neutron, pdg.Neutron, ProcessCC)
	require.NoError(t, err)
	return in
}

func carbonCC(t *testing.T, energy float64) *Interaction {
	t.Helper()
	in, err := NewInteraction(pdg.NuMu, energy, pdg.IonCode(12, 6), pdg.Neutron, ProcessCC)
	require.NoError(t, err)
	return in
}

func carbonEM(t *testing.T, energy float64) *Interaction {
	t.Helper()
	in, err := NewInteraction(pdg.Electron, energy, pdg.IonCode(12, 6), pdg.Proton, ProcessEM)
	require.NoError(t, err)
	return in
}

func newTestGenerator(t *testing.T, cfg Config, deps Collaborators, cache *MaxRateCache, rng Uniform) *Generator {
	t.Helper()
	g, err := NewGenerator(cfg, deps, cache, rng, nil)
	require.NoError(t, err)
	return g
}
