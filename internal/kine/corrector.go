package kine

// Correction rejection reasons, used as metric labels.
const (
	rejectBelowThreshold = "below_threshold"
	rejectMinAngle       = "min_angle"
	rejectQ2Range        = "q2_range"
)

// correction is the outcome of re-deriving accepted on-shell kinematics
// with the nuclear-model binding energy.
type correction struct {
	final         FinalState
	removalEnergy float64
	skipExclusion bool
}

// corrector re-derives kinematics sampled with an on-shell hit nucleon,
// using the removal energy of the same nuclear model draw.
type corrector struct {
	exclusion     ExclusionCheck
	minAngleEMDeg float64
}

// correct rebuilds the final state at pt with the hit nucleon put off shell
// by sample's removal energy. It returns a rejection reason when the
// corrected state is unphysical; the caller then resumes sampling.
//
// When the corrected recoil falls below the Pauli blocking momentum but the
// uncorrected one did not, the exclusion check is skipped for this event.
func (c corrector) correct(in *Interaction, sample BoundParticleSample, pt KinematicPoint, uncorrected FinalState) (correction, string) {
	hit, eb := BindHitNucleon(in, sample, BindingUseNuclearModel)

	fs, ok := SolveFinalState(in, hit, pt)
	if !ok {
		return correction{}, rejectBelowThreshold
	}

	if in.Process == ProcessEM && thetaDeg(&fs.Lepton) < c.minAngleEMDeg {
		return correction{}, rejectMinAngle
	}

	lo, hi := Q2Limits(in, hit)
	if lo < 0 || fs.Q2 < lo || fs.Q2 > hi {
		return correction{}, rejectQ2Range
	}

	kF := c.exclusion.Threshold(in, in.HitNucleonRadius)
	skip := fs.Recoil.P() < kF && uncorrected.Recoil.P() >= kF
	if skip {
		diagf("corrected recoil p=%g below kF=%g (uncorrected p=%g): skipping exclusion check",
			fs.Recoil.P(), kF, uncorrected.Recoil.P())
	}

	return correction{final: fs, removalEnergy: eb, skipExclusion: skip}, ""
}
