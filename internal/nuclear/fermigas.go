package nuclear

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/kinegen/internal/kine"
	"github.com/banshee-data/kinegen/internal/pdg"
)

// FermiParams are the Fermi gas parameters of one nucleus, in GeV.
type FermiParams struct {
	FermiMomentum float64
	RemovalEnergy float64
}

// DefaultParams are used for nuclei without a table entry.
var DefaultParams = FermiParams{FermiMomentum: 0.250, RemovalEnergy: 0.025}

// fermiTable holds the parameters of the supported nuclei, keyed by ion code.
var fermiTable = map[int]FermiParams{
	pdg.IonCode(4, 2):    {0.160, 0.020},
	pdg.IonCode(12, 6):   {0.221, 0.025},
	pdg.IonCode(16, 8):   {0.225, 0.027},
	pdg.IonCode(40, 18):  {0.251, 0.030},
	pdg.IonCode(56, 26):  {0.260, 0.036},
	pdg.IonCode(208, 82): {0.245, 0.044},
}

// ParamsFor returns the Fermi gas parameters of target. ok is false when the
// target has no table entry and DefaultParams were returned.
func ParamsFor(target int) (FermiParams, bool) {
	p, ok := fermiTable[target]
	if !ok {
		return DefaultParams, false
	}
	return p, true
}

// FreeNucleon is the sampler for free targets: the hit nucleon is at rest
// with no removal energy.
type FreeNucleon struct{}

// Draw returns the at-rest sample.
func (FreeNucleon) Draw(in *kine.Interaction, radius float64, rng kine.Uniform) kine.BoundParticleSample {
	return kine.BoundParticleSample{}
}

// FermiGas samples hit nucleon momenta uniformly inside the Fermi sphere of
// the target, with a fixed removal energy per nucleus. Free targets get the
// at-rest sample.
type FermiGas struct{}

// Draw samples |p| = kF * u^(1/3) with an isotropic direction.
func (FermiGas) Draw(in *kine.Interaction, radius float64, rng kine.Uniform) kine.BoundParticleSample {
	if !in.IsBound() {
		return kine.BoundParticleSample{}
	}
	params, _ := ParamsFor(in.TargetPDG)

	p := params.FermiMomentum * math.Cbrt(rng.Float64())
	cosTheta := 2*rng.Float64() - 1
	phi := 2 * math.Pi * rng.Float64()
	sinTheta := math.Sqrt(1 - cosTheta*cosTheta)

	return kine.BoundParticleSample{
		Momentum: r3.Vec{
			X: p * sinTheta * math.Cos(phi),
			Y: p * sinTheta * math.Sin(phi),
			Z: p * cosTheta,
		},
		RemovalEnergy: params.RemovalEnergy,
	}
}

// PauliBlocker excludes recoil nucleons below the Fermi momentum of a bound
// target.
type PauliBlocker struct{}

// Threshold returns the Fermi momentum of the target, or 0 for a free target.
func (PauliBlocker) Threshold(in *kine.Interaction, radius float64) float64 {
	if !in.IsBound() {
		return 0
	}
	params, _ := ParamsFor(in.TargetPDG)
	return params.FermiMomentum
}

// IsExcluded reports whether a recoil of the given momentum is blocked.
// skip disables the check for this call only.
func (b PauliBlocker) IsExcluded(in *kine.Interaction, momentum, radius float64, skip bool) bool {
	if skip {
		return false
	}
	return momentum < b.Threshold(in, radius)
}

var (
	_ kine.ConfigurationSampler = FreeNucleon{}
	_ kine.ConfigurationSampler = FermiGas{}
	_ kine.ExclusionCheck       = PauliBlocker{}
)
