// Package kine owns final-state kinematics sampling for two-body
// probe-nucleon scattering.
//
// Responsibilities: estimating the maximum of an external rate model over
// the (cosθ₀, φ₀) phase space, caching those maxima per interaction
// fingerprint, the accept/reject sampling loop, and the post-acceptance
// binding-energy correction for bound nucleons.
// Key types: Interaction, Generator, MaxRateCache, MaximumSearch,
// AcceptedKinematics.
//
// Angles are defined in the probe + hit nucleon centre-of-momentum frame,
// measured from the velocity of that frame as seen in the lab. Energies and
// momenta are in GeV.
//
// Dependency rule: kine may depend on pdg, never on nuclear, xsec or any
// persistence package. Collaborators are consumed through the interfaces in
// collaborators.go.
package kine
