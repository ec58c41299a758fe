package kine

import (
	"errors"
	"fmt"
)

var (
	// ErrKineGen marks an event whose kinematics could not be selected.
	// It aborts the current event only; generation continues.
	ErrKineGen = errors.New("kinematics generation failed")

	// ErrMissingCollaborator is a fatal configuration error: a required
	// rate model, nuclear model, exclusion check, cache or random source
	// was not supplied.
	ErrMissingCollaborator = errors.New("missing collaborator")

	// ErrInvalidConfig is a fatal configuration error for out-of-range settings.
	ErrInvalidConfig = errors.New("invalid generator config")

	// ErrInvalidInteraction is a fatal configuration error for an
	// interaction whose identities cannot be combined.
	ErrInvalidInteraction = errors.New("invalid interaction")
)

// Reasons carried by KineGenError.
const (
	ReasonExhausted    = "iteration budget exhausted"
	ReasonNoPhaseSpace = "no physical phase space"
)

// KineGenError reports an event that ended in StateExhausted.
type KineGenError struct {
	Reason      string
	Fingerprint string
	Iterations  int
}

func (e *KineGenError) Error() string {
	return fmt.Sprintf("%v: %s after %d iterations [%s]", ErrKineGen, e.Reason, e.Iterations, e.Fingerprint)
}

// Is lets errors.Is(err, ErrKineGen) match.
func (e *KineGenError) Is(target error) bool {
	return target == ErrKineGen
}
