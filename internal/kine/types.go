package kine

import (
	"fmt"
	"math"
	"strings"

	"go-hep.org/x/hep/fmom"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/kinegen/internal/pdg"
)

// ProcessType selects the interaction channel.
type ProcessType int

const (
	ProcessCC ProcessType = iota // charged-current weak
	ProcessNC                    // neutral-current weak
	ProcessEM                    // electromagnetic
)

func (p ProcessType) String() string {
	switch p {
	case ProcessCC:
		return "CC"
	case ProcessNC:
		return "NC"
	case ProcessEM:
		return "EM"
	}
	return fmt.Sprintf("ProcessType(%d)", int(p))
}

// ParseProcessType accepts "CC", "NC" or "EM" (case-insensitive).
func ParseProcessType(s string) (ProcessType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CC":
		return ProcessCC, nil
	case "NC":
		return ProcessNC, nil
	case "EM":
		return ProcessEM, nil
	}
	return 0, fmt.Errorf("%w: unknown process %q", ErrInvalidConfig, s)
}

// BindingMode selects how the hit nucleon's binding energy is treated.
type BindingMode int

const (
	// BindingUseNuclearModel puts the hit nucleon off shell using the
	// removal energy drawn from the nuclear model.
	BindingUseNuclearModel BindingMode = iota
	// BindingOnShell keeps the hit nucleon on its mass shell.
	BindingOnShell
	// BindingOnShellWithCorrection samples on shell, then re-derives the
	// accepted kinematics with the nuclear-model binding energy.
	BindingOnShellWithCorrection
)

func (m BindingMode) String() string {
	switch m {
	case BindingUseNuclearModel:
		return "UseNuclearModel"
	case BindingOnShell:
		return "OnShell"
	case BindingOnShellWithCorrection:
		return "OnShellWithCorrection"
	}
	return fmt.Sprintf("BindingMode(%d)", int(m))
}

// ParseBindingMode accepts the names returned by BindingMode.String.
func ParseBindingMode(s string) (BindingMode, error) {
	switch strings.TrimSpace(s) {
	case "UseNuclearModel":
		return BindingUseNuclearModel, nil
	case "OnShell":
		return BindingOnShell, nil
	case "OnShellWithCorrection":
		return BindingOnShellWithCorrection, nil
	}
	return 0, fmt.Errorf("%w: unknown binding mode %q", ErrInvalidConfig, s)
}

// State is a state of the rejection sampling loop.
type State int

const (
	StateSampling State = iota
	StateAccepted
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateSampling:
		return "sampling"
	case StateAccepted:
		return "accepted"
	case StateExhausted:
		return "exhausted"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Interaction is the physical configuration of one event. It is immutable
// while the event is generated; build it with NewInteraction so that the
// derived identities and masses are resolved.
type Interaction struct {
	ProbePDG    int
	ProbeEnergy float64 // lab frame total energy
	ProbeMass   float64

	TargetPDG  int
	TargetZ    int
	TargetA    int
	TargetMass float64

	HitNucleonPDG    int
	HitNucleonMass   float64
	// HitNucleonRadius is the position of the hit nucleon in the nucleus
	// (fm). It is set by the caller; NewInteraction leaves it at 0. The
	// nuclear model and exclusion check receive it on every call.
	HitNucleonRadius float64

	Process ProcessType

	FSLeptonPDG  int
	FSLeptonMass float64
	RecoilPDG    int
	RecoilMass   float64
	RemnantPDG   int // 0 for a free target
}

// NewInteraction resolves every identity derived from the probe, target,
// hit nucleon and process. Unknown codes wrap pdg.ErrUnknownParticle and
// impossible combinations wrap ErrInvalidInteraction; both are fatal.
func NewInteraction(probe int, energy float64, target, hitNucleon int, proc ProcessType) (*Interaction, error) {
	in := &Interaction{
		ProbePDG:      probe,
		ProbeEnergy:   energy,
		TargetPDG:     target,
		HitNucleonPDG: hitNucleon,
		Process:       proc,
	}

	probeP, err := pdg.Lookup(probe)
	if err != nil {
		return nil, fmt.Errorf("resolving probe: %w", err)
	}
	in.ProbeMass = probeP.Mass
	if energy < in.ProbeMass {
		return nil, fmt.Errorf("%w: probe energy %g below probe mass %g", ErrInvalidInteraction, energy, in.ProbeMass)
	}

	if !pdg.IsNucleon(hitNucleon) {
		return nil, fmt.Errorf("%w: hit particle %d is not a nucleon", ErrInvalidInteraction, hitNucleon)
	}
	if in.HitNucleonMass, err = pdg.Mass(hitNucleon); err != nil {
		return nil, fmt.Errorf("resolving hit nucleon: %w", err)
	}

	targetP, err := pdg.Lookup(target)
	if err != nil {
		return nil, fmt.Errorf("resolving target: %w", err)
	}
	in.TargetMass = targetP.Mass
	switch {
	case pdg.IsIon(target):
		in.TargetZ, in.TargetA = pdg.IonZA(target)
	case target == hitNucleon:
		in.TargetA = 1
		if hitNucleon == pdg.Proton {
			in.TargetZ = 1
		}
	default:
		return nil, fmt.Errorf("%w: free target %d differs from hit nucleon %d", ErrInvalidInteraction, target, hitNucleon)
	}

	if err := in.resolveFinalState(); err != nil {
		return nil, err
	}

	if in.IsBound() {
		z := in.TargetZ
		if hitNucleon == pdg.Proton {
			z--
		}
		in.RemnantPDG = pdg.IonCode(in.TargetA-1, z)
		if _, err := pdg.Lookup(in.RemnantPDG); err != nil {
			return nil, fmt.Errorf("resolving remnant nucleus [A=%d, Z=%d]: %w", in.TargetA-1, z, err)
		}
	}
	return in, nil
}

func (in *Interaction) resolveFinalState() error {
	var err error
	switch in.Process {
	case ProcessCC:
		if !pdg.IsNeutrino(in.ProbePDG) {
			return fmt.Errorf("%w: CC probe %d is not a neutrino", ErrInvalidInteraction, in.ProbePDG)
		}
		if in.FSLeptonPDG, err = pdg.ChargedPartner(in.ProbePDG); err != nil {
			return err
		}
		switch {
		case in.ProbePDG > 0 && in.HitNucleonPDG == pdg.Neutron:
			in.RecoilPDG = pdg.Proton
		case in.ProbePDG < 0 && in.HitNucleonPDG == pdg.Proton:
			in.RecoilPDG = pdg.Neutron
		default:
			return fmt.Errorf("%w: CC probe %d cannot scatter on nucleon %d", ErrInvalidInteraction, in.ProbePDG, in.HitNucleonPDG)
		}
	case ProcessNC:
		if !pdg.IsNeutrino(in.ProbePDG) {
			return fmt.Errorf("%w: NC probe %d is not a neutrino", ErrInvalidInteraction, in.ProbePDG)
		}
		in.FSLeptonPDG = in.ProbePDG
		in.RecoilPDG = in.HitNucleonPDG
	case ProcessEM:
		if !pdg.IsChargedLepton(in.ProbePDG) {
			return fmt.Errorf("%w: EM probe %d is not a charged lepton", ErrInvalidInteraction, in.ProbePDG)
		}
		in.FSLeptonPDG = in.ProbePDG
		in.RecoilPDG = in.HitNucleonPDG
	default:
		return fmt.Errorf("%w: unsupported process %v", ErrInvalidInteraction, in.Process)
	}

	if in.FSLeptonMass, err = pdg.Mass(in.FSLeptonPDG); err != nil {
		return fmt.Errorf("resolving final state lepton: %w", err)
	}
	if in.RecoilMass, err = pdg.Mass(in.RecoilPDG); err != nil {
		return fmt.Errorf("resolving recoil nucleon: %w", err)
	}
	return nil
}

// IsBound reports whether the hit nucleon is bound inside a nucleus.
func (in *Interaction) IsBound() bool {
	return in.TargetA > 1
}

// Fingerprint is the canonical cache key for in. It excludes the energy.
func (in *Interaction) Fingerprint() string {
	return fmt.Sprintf("probe:%d;tgt:%d;hit:%d;proc:%s;fsl:%d;rec:%d",
		in.ProbePDG, in.TargetPDG, in.HitNucleonPDG, in.Process, in.FSLeptonPDG, in.RecoilPDG)
}

// WithEnergy returns a copy of in with a different probe energy.
func (in *Interaction) WithEnergy(energy float64) *Interaction {
	out := *in
	out.ProbeEnergy = energy
	return &out
}

// ProbeP4 is the lab-frame probe four-momentum, travelling along +z.
func (in *Interaction) ProbeP4() fmom.PxPyPzE {
	p := math.Sqrt(math.Max(0, in.ProbeEnergy*in.ProbeEnergy-in.ProbeMass*in.ProbeMass))
	return fmom.NewPxPyPzE(0, 0, p, in.ProbeEnergy)
}

// BoundParticleSample is one draw of the hit nucleon state from the
// nuclear model.
type BoundParticleSample struct {
	Momentum      r3.Vec // lab frame, GeV
	RemovalEnergy float64
}

// KinematicPoint is a point of the sampled phase space: the lepton
// scattering angles in the probe + hit nucleon COM frame.
type KinematicPoint struct {
	CosTheta float64
	Phi      float64
}

// FinalState holds the lab-frame four-momenta derived from a KinematicPoint.
type FinalState struct {
	Probe      fmom.PxPyPzE
	HitNucleon fmom.PxPyPzE
	Lepton     fmom.PxPyPzE
	Recoil     fmom.PxPyPzE
	Q2         float64
}

// Candidate is one proposed outcome handed to a RateModel.
type Candidate struct {
	Interaction *Interaction
	Sample      BoundParticleSample
	Point       KinematicPoint
	Final       FinalState
}

// AcceptedKinematics is the selected outcome of one event.
type AcceptedKinematics struct {
	Lepton     fmom.PxPyPzE
	Recoil     fmom.PxPyPzE
	HitNucleon fmom.PxPyPzE
	Transfer   fmom.PxPyPzE // probe - lepton

	RemovalEnergy float64
	Q2            float64
	W             float64 // hadronic invariant mass, the recoil on-shell mass
	X             float64
	Y             float64
	Omega         float64 // lab energy transfer
	Q3            float64 // lab 3-momentum transfer magnitude

	CosTheta float64
	Phi      float64

	Rate   float64 // rate model value at the selected point
	Weight float64 // 1 unless sampling uniformly over phase space

	Iterations int
	Corrected  bool

	// SkipExclusionCheck tells the caller to bypass the Pauli check for
	// this event only.
	SkipExclusionCheck bool
}
