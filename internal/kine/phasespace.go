package kine

import (
	"math"

	"go-hep.org/x/hep/fmom"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// smallNum guards divisions by vanishing boosts and rotation axes.
	smallNum = 1e-10

	// minQ2Limit is the lower cut applied to the allowed Q² range.
	minQ2Limit = 1e-10
)

// BindHitNucleon builds the hit nucleon four-momentum for sample under mode
// and returns it with the removal energy actually applied.
//
// Free targets are always on shell with zero removal energy. For bound
// targets, BindingUseNuclearModel gives E = m - E_removal (off shell); the
// on-shell modes give E = sqrt(p² + m²).
func BindHitNucleon(in *Interaction, sample BoundParticleSample, mode BindingMode) (fmom.PxPyPzE, float64) {
	p := sample.Momentum
	m := in.HitNucleonMass
	if in.IsBound() && mode == BindingUseNuclearModel {
		eb := sample.RemovalEnergy
		return fmom.NewPxPyPzE(p.X, p.Y, p.Z, m-eb), eb
	}
	e := math.Sqrt(r3.Norm2(p) + m*m)
	return fmom.NewPxPyPzE(p.X, p.Y, p.Z, e), 0
}

// CosTheta0Max is the upper limit on cosθ₀ that keeps the lab energy
// transfer non-negative. It returns -Inf when the invariant energy is below
// the final state threshold. Callers clamp the result to 1.
func CosTheta0Max(in *Interaction, hit fmom.PxPyPzE) float64 {
	probe := in.ProbeP4()
	tot := addP4(probe, hit)
	eStar, pStar, ok := comLepton(in, &tot)
	if !ok {
		return math.Inf(-1)
	}

	sqrtS := math.Sqrt(tot.M2())
	beta := r3.Norm(boostVector(&tot))
	gamma := tot.E() / sqrtS

	num := probe.E()/gamma - eStar
	den := beta * pStar
	if den < smallNum {
		if num >= 0 {
			return 1
		}
		return math.Inf(-1)
	}
	return num / den
}

// comLepton returns the outgoing lepton energy and momentum magnitude in the
// COM frame of tot. ok is false below threshold.
func comLepton(in *Interaction, tot *fmom.PxPyPzE) (eStar, pStar float64, ok bool) {
	s := tot.M2()
	ml, mf := in.FSLeptonMass, in.RecoilMass
	if s <= 0 || math.Sqrt(s) < ml+mf {
		return 0, 0, false
	}
	sqrtS := math.Sqrt(s)
	eStar = (s - mf*mf + ml*ml) / (2 * sqrtS)
	p2 := eStar*eStar - ml*ml
	if p2 < 0 {
		return 0, 0, false
	}
	return eStar, math.Sqrt(p2), true
}

// SolveFinalState builds the lab-frame final state for the COM angles in pt.
// ok is false when the point is outside [-1, 1] in cosθ₀ or the invariant
// energy is below threshold.
func SolveFinalState(in *Interaction, hit fmom.PxPyPzE, pt KinematicPoint) (FinalState, bool) {
	if pt.CosTheta < -1 || pt.CosTheta > 1 || math.IsNaN(pt.CosTheta) {
		return FinalState{}, false
	}
	probe := in.ProbeP4()
	tot := addP4(probe, hit)
	eStar, pStar, ok := comLepton(in, &tot)
	if !ok {
		return FinalState{}, false
	}
	beta := boostVector(&tot)

	sinT := math.Sqrt(1 - pt.CosTheta*pt.CosTheta)
	lep3 := r3.Vec{
		X: pStar * sinT * math.Cos(pt.Phi),
		Y: pStar * sinT * math.Sin(pt.Phi),
		Z: pStar * pt.CosTheta,
	}

	// Angles are relative to +z; rotate +z onto the COM velocity.
	zAxis := r3.Vec{Z: 1}
	axis := r3.Cross(zAxis, beta)
	if r3.Norm(axis) >= smallNum {
		angle := math.Acos(clamp(r3.Cos(beta, zAxis), -1, 1))
		lep3 = r3.Rotate(lep3, angle, r3.Unit(axis))
	}

	mf := in.RecoilMass
	lepton := fmom.NewPxPyPzE(lep3.X, lep3.Y, lep3.Z, eStar)
	recoil := fmom.NewPxPyPzE(-lep3.X, -lep3.Y, -lep3.Z, math.Sqrt(pStar*pStar+mf*mf))

	lepton = boostP4(lepton, beta)
	recoil = boostP4(recoil, beta)

	q := subP4(probe, lepton)
	return FinalState{
		Probe:      probe,
		HitNucleon: hit,
		Lepton:     lepton,
		Recoil:     recoil,
		Q2:         -q.M2(),
	}, true
}

// Q2Limits is the Q² range allowed for in with the given hit nucleon
// four-momentum, evaluated in the hit nucleon rest frame with the recoil
// on-shell mass as hadronic invariant mass. It returns (-1, -1) when no
// range exists.
func Q2Limits(in *Interaction, hit fmom.PxPyPzE) (lo, hi float64) {
	probe := in.ProbeP4()
	tot := addP4(probe, hit)
	s := tot.M2()
	m2 := hit.M2()
	if s <= 0 || m2 <= 0 {
		return -1, -1
	}
	sqrtS := math.Sqrt(s)
	m0, ml, w := in.ProbeMass, in.FSLeptonMass, in.RecoilMass

	e0 := (s + m0*m0 - m2) / (2 * sqrtS)
	p0 := math.Sqrt(math.Max(0, e0*e0-m0*m0))
	e1 := (s + ml*ml - w*w) / (2 * sqrtS)
	p1 := math.Sqrt(math.Max(0, e1*e1-ml*ml))

	lo = -m0*m0 - ml*ml + 2*(e0*e1-p0*p1)
	hi = -m0*m0 - ml*ml + 2*(e0*e1+p0*p1)
	if lo < minQ2Limit {
		lo = minQ2Limit
	}
	if hi < lo {
		return -1, -1
	}
	return lo, hi
}

// WQ2toXY converts (W, Q²) to Bjorken x and inelasticity y for a probe of
// energy ev scattering on a nucleon of mass m at rest.
func WQ2toXY(ev, m, w, q2 float64) (x, y float64) {
	nu2m := w*w - m*m + q2
	x = q2 / nu2m
	y = nu2m / (2 * m * ev)
	return x, y
}

// probeEnergyInRest is the probe energy in the rest frame of hit.
func probeEnergyInRest(probe, hit *fmom.PxPyPzE) float64 {
	m := math.Sqrt(math.Max(0, hit.M2()))
	if m == 0 {
		return probe.E()
	}
	return dotP4(probe, hit) / m
}

// thetaDeg is the polar angle of p with respect to +z, in degrees.
func thetaDeg(p *fmom.PxPyPzE) float64 {
	mag := p.P()
	if mag == 0 {
		return 0
	}
	return math.Acos(clamp(p.Pz()/mag, -1, 1)) * 180 / math.Pi
}

func addP4(a, b fmom.PxPyPzE) fmom.PxPyPzE {
	return fmom.NewPxPyPzE(a.Px()+b.Px(), a.Py()+b.Py(), a.Pz()+b.Pz(), a.E()+b.E())
}

func subP4(a, b fmom.PxPyPzE) fmom.PxPyPzE {
	return fmom.NewPxPyPzE(a.Px()-b.Px(), a.Py()-b.Py(), a.Pz()-b.Pz(), a.E()-b.E())
}

func dotP4(a, b *fmom.PxPyPzE) float64 {
	return a.E()*b.E() - a.Px()*b.Px() - a.Py()*b.Py() - a.Pz()*b.Pz()
}

func vec3(p *fmom.PxPyPzE) r3.Vec {
	return r3.Vec{X: p.Px(), Y: p.Py(), Z: p.Pz()}
}

// boostVector is the velocity of the frame in which p is at rest.
func boostVector(p *fmom.PxPyPzE) r3.Vec {
	if p.E() == 0 {
		return r3.Vec{}
	}
	return r3.Scale(1/p.E(), vec3(p))
}

func boostP4(p fmom.PxPyPzE, beta r3.Vec) fmom.PxPyPzE {
	o := fmom.Boost(&p, beta)
	return fmom.NewPxPyPzE(o.Px(), o.Py(), o.Pz(), o.E())
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
