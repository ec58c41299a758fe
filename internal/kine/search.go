package kine

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// MaximumSearch estimates the maximum of a RateModel over the angular phase
// space of an interaction. The estimate is heuristic: the result is only
// meant to become a safe upper bound once scaled by the safety factor.
//
// A MaximumSearch shares the random source of its Generator and is not
// safe for concurrent use.
type MaximumSearch struct {
	cfg     Config
	nuclear ConfigurationSampler
	eval    evaluator
	rng     Uniform
	metrics *Metrics

	// OnLayer, when set, is called after every refinement layer with the
	// best rate found so far.
	OnLayer func(layer int, best float64)
}

// NewMaximumSearch builds a search over model using nuclear for the hit
// nucleon throws.
func NewMaximumSearch(cfg Config, model RateModel, nuclear ConfigurationSampler, rng Uniform, m *Metrics) *MaximumSearch {
	return &MaximumSearch{
		cfg:     cfg,
		nuclear: nuclear,
		eval:    evaluator{model: model, minAngleEMDeg: cfg.MinAngleEMDeg},
		rng:     rng,
		metrics: m,
	}
}

// angularRegion is the rectangle of (cosθ₀, φ₀) scanned by one layer.
type angularRegion struct {
	cosMin, cosMax float64
	phiMin, phiMax float64
}

// steps returns the grid spacing of r for an nTheta x nPhi grid.
func (r angularRegion) steps(nTheta, nPhi int) (dCos, dPhi float64) {
	return (r.cosMax - r.cosMin) / float64(nTheta), (r.phiMax - r.phiMin) / float64(nPhi)
}

// narrowAround returns the region one grid step either side of (cosTheta, phi).
// The region is not clipped to the physical range; points outside it
// evaluate to zero.
func narrowAround(cosTheta, phi, dCos, dPhi float64) angularRegion {
	return angularRegion{
		cosMin: cosTheta - dCos,
		cosMax: cosTheta + dCos,
		phiMin: phi - dPhi,
		phiMax: phi + dPhi,
	}
}

// gridPoints returns n points starting at start, spaced by step. The far
// edge of the region is not included.
func gridPoints(start, step float64, n int) []float64 {
	if n <= 0 {
		return []float64{}
	}
	pts := make([]float64, n)
	for i := range pts {
		pts[i] = start + step*float64(i)
	}
	return pts
}

// Estimate returns the estimated maximum rate for in, without the safety
// factor. It returns 0 if none of the numSamples hit nucleon throws has a
// non-degenerate angular range.
func (s *MaximumSearch) Estimate(in *Interaction, numSamples int) float64 {
	seed, ok := s.seedSample(in, numSamples)
	if !ok {
		diagf("no non-degenerate hit nucleon after %d throws for %s at E=%g", numSamples, in.Fingerprint(), in.ProbeEnergy)
		return 0
	}
	best := s.refine(in, seed)
	diagf("estimated max rate %g for %s at E=%g", best, in.Fingerprint(), in.ProbeEnergy)
	return best
}

// seedSample throws hit nucleons at the nucleus centre, each pointed
// upstream (-z), and combines the smallest removal energy with the largest
// momentum among those with a non-degenerate angular range.
func (s *MaximumSearch) seedSample(in *Interaction, numSamples int) (BoundParticleSample, bool) {
	if !in.IsBound() {
		hit, _ := BindHitNucleon(in, BoundParticleSample{}, s.cfg.BindingMode)
		return BoundParticleSample{}, CosTheta0Max(in, hit) > -1
	}

	minEnergy := math.MaxFloat64
	maxMomentum := -math.MaxFloat64
	found := false
	for i := 0; i < numSamples; i++ {
		drawn := s.nuclear.Draw(in, 0, s.rng)
		upstream := BoundParticleSample{
			Momentum:      r3.Vec{Z: -r3.Norm(drawn.Momentum)},
			RemovalEnergy: drawn.RemovalEnergy,
		}
		hit, _ := BindHitNucleon(in, upstream, s.cfg.BindingMode)
		cmax := CosTheta0Max(in, hit)
		tracef("max-rate throw %d: p=%g Eb=%g cos_theta0_max=%g", i, -upstream.Momentum.Z, upstream.RemovalEnergy, cmax)
		if cmax > -1 {
			minEnergy = math.Min(minEnergy, drawn.RemovalEnergy)
			maxMomentum = math.Max(maxMomentum, -upstream.Momentum.Z)
			found = true
		}
	}
	if !found {
		return BoundParticleSample{}, false
	}
	return BoundParticleSample{
		Momentum:      r3.Vec{Z: -maxMomentum},
		RemovalEnergy: minEnergy,
	}, true
}

// refine scans the angular phase space on a grid, then repeatedly rescans a
// region one cell either side of the best point, until the fractional
// improvement between layers falls below
// SearchAcceptableFraction * (SafetyFactor - 1) or SearchMaxLayers is hit.
func (s *MaximumSearch) refine(in *Interaction, seed BoundParticleSample) float64 {
	hit, _ := BindHitNucleon(in, seed, s.cfg.BindingMode)
	region := angularRegion{
		cosMin: -1,
		cosMax: math.Min(1, CosTheta0Max(in, hit)),
		phiMin: 0,
		phiMax: 2 * math.Pi,
	}

	nTheta, nPhi := s.cfg.SearchGridTheta, s.cfg.SearchGridPhi
	threshold := s.cfg.SearchAcceptableFraction * (s.cfg.SafetyFactor - 1)

	best := -1.0
	bestCos, bestPhi := 0.0, -1.0
	layers := 0
	for layer := 0; layer < s.cfg.SearchMaxLayers; layer++ {
		layers++
		previous := best
		dCos, dPhi := region.steps(nTheta, nPhi)
		for _, c := range gridPoints(region.cosMin, dCos, nTheta) {
			for _, phi := range gridPoints(region.phiMin, dPhi, nPhi) {
				v, _ := s.eval.rate(in, seed, hit, KinematicPoint{CosTheta: c, Phi: phi})
				if v > best {
					best, bestCos, bestPhi = v, c, phi
				}
			}
		}
		if s.OnLayer != nil {
			s.OnLayer(layer, best)
		}
		region = narrowAround(bestCos, bestPhi, dCos, dPhi)

		improvement := best / previous
		if layer > 0 && improvement-1 < threshold {
			break
		}
	}
	s.metrics.ObserveSearchLayers(layers)
	return math.Max(best, 0)
}
