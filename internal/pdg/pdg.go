// Package pdg holds the particle property table used to resolve probe,
// lepton, nucleon and nucleus identities. Codes follow the PDG Monte Carlo
// numbering scheme; nuclei use the 10LZZZAAAI ion convention.
package pdg

import (
	"errors"
	"fmt"
)

// ErrUnknownParticle is returned when a code has no entry in the table.
// Callers treat it as a fatal configuration error.
var ErrUnknownParticle = errors.New("unknown particle")

// Particle codes used by the generator.
const (
	Electron    = 11
	NuE         = 12
	Muon        = 13
	NuMu        = 14
	Tau         = 15
	NuTau       = 16
	Proton      = 2212
	Neutron     = 2112
	ionBase     = 1000000000
	ionZFactor  = 10000
	ionAFactor  = 10
	maxIonACode = 1000
)

// Particle is one entry of the property table. Masses are in GeV.
type Particle struct {
	Code   int
	Name   string
	Mass   float64
	Charge int // units of e/3
}

var table = map[int]Particle{
	Electron: {Code: Electron, Name: "e-", Mass: 0.00051099895, Charge: -3},
	NuE:      {Code: NuE, Name: "nu_e", Mass: 0},
	Muon:     {Code: Muon, Name: "mu-", Mass: 0.1056583755, Charge: -3},
	NuMu:     {Code: NuMu, Name: "nu_mu", Mass: 0},
	Tau:      {Code: Tau, Name: "tau-", Mass: 1.77686, Charge: -3},
	NuTau:    {Code: NuTau, Name: "nu_tau", Mass: 0},
	Proton:   {Code: Proton, Name: "proton", Mass: 0.93827208816, Charge: 3},
	Neutron:  {Code: Neutron, Name: "neutron", Mass: 0.93956542052},

	IonCode(3, 1):    {Code: IonCode(3, 1), Name: "H3", Mass: 2.808921, Charge: 3},
	IonCode(3, 2):    {Code: IonCode(3, 2), Name: "He3", Mass: 2.808391, Charge: 6},
	IonCode(4, 2):    {Code: IonCode(4, 2), Name: "He4", Mass: 3.727379, Charge: 6},
	IonCode(11, 5):   {Code: IonCode(11, 5), Name: "B11", Mass: 10.252548, Charge: 15},
	IonCode(11, 6):   {Code: IonCode(11, 6), Name: "C11", Mass: 10.254018, Charge: 18},
	IonCode(12, 6):   {Code: IonCode(12, 6), Name: "C12", Mass: 11.174862, Charge: 18},
	IonCode(15, 7):   {Code: IonCode(15, 7), Name: "N15", Mass: 13.972513, Charge: 21},
	IonCode(15, 8):   {Code: IonCode(15, 8), Name: "O15", Mass: 13.975266, Charge: 24},
	IonCode(16, 8):   {Code: IonCode(16, 8), Name: "O16", Mass: 14.895081, Charge: 24},
	IonCode(39, 17):  {Code: IonCode(39, 17), Name: "Cl39", Mass: 36.294800, Charge: 51},
	IonCode(39, 18):  {Code: IonCode(39, 18), Name: "Ar39", Mass: 36.293800, Charge: 54},
	IonCode(40, 18):  {Code: IonCode(40, 18), Name: "Ar40", Mass: 37.215526, Charge: 54},
	IonCode(55, 25):  {Code: IonCode(55, 25), Name: "Mn55", Mass: 51.174900, Charge: 75},
	IonCode(55, 26):  {Code: IonCode(55, 26), Name: "Fe55", Mass: 51.174300, Charge: 78},
	IonCode(56, 26):  {Code: IonCode(56, 26), Name: "Fe56", Mass: 52.089808, Charge: 78},
	IonCode(208, 82): {Code: IonCode(208, 82), Name: "Pb208", Mass: 193.687100, Charge: 246},
}

// Lookup returns the table entry for code. Antiparticles (negative codes)
// share the entry of their particle with the charge flipped.
func Lookup(code int) (Particle, error) {
	abs := code
	if abs < 0 {
		abs = -abs
	}
	p, ok := table[abs]
	if !ok {
		return Particle{}, fmt.Errorf("%w: pdg code %d", ErrUnknownParticle, code)
	}
	if code < 0 {
		p.Code = code
		p.Name += "~"
		p.Charge = -p.Charge
	}
	return p, nil
}

// Mass returns the mass of code in GeV.
func Mass(code int) (float64, error) {
	p, err := Lookup(code)
	if err != nil {
		return 0, err
	}
	return p.Mass, nil
}

// IonCode builds the nucleus code for mass number a and atomic number z.
func IonCode(a, z int) int {
	return ionBase + z*ionZFactor + a*ionAFactor
}

// IsIon reports whether code follows the nucleus numbering convention.
func IsIon(code int) bool {
	return code > ionBase
}

// IonZA splits a nucleus code into (z, a). Non-ion codes return (0, 0).
func IonZA(code int) (z, a int) {
	if !IsIon(code) {
		return 0, 0
	}
	rest := code - ionBase
	z = (rest / ionZFactor) % maxIonACode
	a = (rest / ionAFactor) % maxIonACode
	return z, a
}

// IsNucleon reports whether code is a proton or neutron.
func IsNucleon(code int) bool {
	return code == Proton || code == Neutron
}

// IsNeutrino reports whether code is a neutrino or antineutrino.
func IsNeutrino(code int) bool {
	switch abs(code) {
	case NuE, NuMu, NuTau:
		return true
	}
	return false
}

// IsChargedLepton reports whether code is a charged lepton of either sign.
func IsChargedLepton(code int) bool {
	switch abs(code) {
	case Electron, Muon, Tau:
		return true
	}
	return false
}

// ChargedPartner maps a neutrino to the charged lepton of its generation,
// preserving the particle/antiparticle sign.
func ChargedPartner(nu int) (int, error) {
	if !IsNeutrino(nu) {
		return 0, fmt.Errorf("%w: %d is not a neutrino", ErrUnknownParticle, nu)
	}
	if nu < 0 {
		return nu + 1, nil
	}
	return nu - 1, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
