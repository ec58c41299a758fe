// Package nuclear provides reference nuclear-model collaborators for the
// kinematics generator: hit nucleon samplers for free and bound targets,
// and a Pauli blocking check on the recoil nucleon.
//
// The Fermi gas parameters are global (radius independent) and come from a
// small per-nucleus table; nuclei missing from the table use a generic
// medium-A parameter set.
package nuclear
