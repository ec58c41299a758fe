// Package xsec provides a reference rate model for the kinematics
// generator. It is a simple shape used to drive the CLI and end-to-end
// tests, not a physics cross section.
package xsec

import (
	"fmt"
	"math"

	"github.com/banshee-data/kinegen/internal/kine"
)

// DefaultAxialMass is the dipole mass in GeV.
const DefaultAxialMass = 1.0

// DipoleModel weights candidates with a dipole form factor squared and the
// lepton energy fraction: Norm * (1 + Q²/MA²)^-4 * E_l/E_ν.
type DipoleModel struct {
	AxialMass float64
	Norm      float64
}

// NewDipoleModel returns a model with the given axial mass and unit norm.
func NewDipoleModel(axialMass float64) (*DipoleModel, error) {
	if !(axialMass > 0) {
		return nil, fmt.Errorf("axial mass must be positive, got %g", axialMass)
	}
	return &DipoleModel{AxialMass: axialMass, Norm: 1}, nil
}

// Evaluate implements kine.RateModel.
func (m *DipoleModel) Evaluate(c *kine.Candidate) float64 {
	q2 := c.Final.Q2
	if q2 < 0 {
		return 0
	}
	ev := c.Interaction.ProbeEnergy
	if ev <= 0 {
		return 0
	}
	ff := math.Pow(1+q2/(m.AxialMass*m.AxialMass), -2)
	return m.Norm * ff * ff * c.Final.Lepton.E() / ev
}

var _ kine.RateModel = (*DipoleModel)(nil)
