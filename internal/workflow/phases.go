// Package workflow drives the manuscript pipeline through its phases,
// from journal monitoring to submission.
package workflow

import (
	"errors"
	"fmt"
)

// Phase is one stop in the pipeline state machine.
type Phase string

const (
	PhaseMonitor         Phase = "MONITOR"
	PhaseIndex           Phase = "INDEX"
	PhaseDiscover        Phase = "DISCOVER"
	PhaseAcquireRefs     Phase = "ACQUIRE_REFS"
	PhasePlan            Phase = "PLAN"
	PhaseWrite           Phase = "WRITE"
	PhaseVerify          Phase = "VERIFY"
	PhaseVerifyCitations Phase = "VERIFY_CITATIONS"
	PhaseReview          Phase = "REVIEW"
	PhaseHumanReview     Phase = "HUMAN_REVIEW"
	PhaseSubmit          Phase = "SUBMIT"
	PhaseDone            Phase = "DONE"
)

// PhaseError carries which phase failed. Extract with errors.As.
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("phase %s: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// PhaseOf returns the phase recorded in err's chain, or "".
func PhaseOf(err error) Phase {
	var pe *PhaseError
	if errors.As(err, &pe) {
		return pe.Phase
	}
	return ""
}
