package kine

import (
	"math"

	"go-hep.org/x/hep/fmom"
)

// evaluator wraps the external RateModel with the phase-space cuts that
// zero the rate before the model is called.
type evaluator struct {
	model         RateModel
	minAngleEMDeg float64
}

// rate evaluates the model at pt. Points that cannot be solved, points
// outside the allowed Q² range, and EM points below the minimum lepton angle
// have zero rate. Negative or NaN model output is treated as zero.
func (e evaluator) rate(in *Interaction, sample BoundParticleSample, hit fmom.PxPyPzE, pt KinematicPoint) (float64, FinalState) {
	fs, ok := SolveFinalState(in, hit, pt)
	if !ok {
		return 0, fs
	}
	if lo, hi := Q2Limits(in, hit); lo < 0 || fs.Q2 < lo || fs.Q2 > hi {
		return 0, fs
	}
	if in.Process == ProcessEM && thetaDeg(&fs.Lepton) < e.minAngleEMDeg {
		return 0, fs
	}
	v := e.model.Evaluate(&Candidate{
		Interaction: in,
		Sample:      sample,
		Point:       pt,
		Final:       fs,
	})
	switch {
	case math.IsNaN(v) || v < 0:
		return 0, fs
	case math.IsInf(v, 1):
		return math.MaxFloat64, fs
	}
	return v, fs
}
