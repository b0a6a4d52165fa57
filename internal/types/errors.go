package types

import "fmt"

// The engine's error taxonomy. Every error is terminal for the
// triggering call: the engine never retries on the caller's behalf.
// Rejection verdicts are not errors; they are modeled as states.

// ConflictError signals a duplicate append: a second request for a
// phase, a taken iteration sequence number, or a repeated verdict on
// the same iteration.
type ConflictError struct {
	Workspace WorkspaceRef
	Kind      DocKind
	Seq       int
	Detail    string
}

func (e *ConflictError) Error() string {
	if e.Seq > 0 {
		return fmt.Sprintf("conflict in %s: %s %d already exists (%s)", e.Workspace, e.Kind, e.Seq, e.Detail)
	}
	return fmt.Sprintf("conflict in %s: %s", e.Workspace, e.Detail)
}

// NotFoundError signals an unknown feature, workspace, or document.
type NotFoundError struct {
	What string
}

func (e *NotFoundError) Error() string { return e.What + " not found" }

// AlreadyExistsError signals a second CreateWorkspace call for the same
// (feature, role) pair.
type AlreadyExistsError struct {
	Workspace WorkspaceRef
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("workspace %s already exists", e.Workspace)
}

// AccessDeniedError signals an isolation violation. Reads fail closed;
// nothing is ever silently filtered.
type AccessDeniedError struct {
	Actor     Role
	Workspace WorkspaceRef
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("role %q denied access to workspace %s", e.Actor, e.Workspace)
}

// InvalidGrantError signals a handoff grant across features or by a
// non-coordinator actor.
type InvalidGrantError struct {
	Detail string
}

func (e *InvalidGrantError) Error() string { return "invalid handoff grant: " + e.Detail }

// InvalidTransitionError signals an operation illegal for the current
// phase state. This is a caller bug, distinct from a rejection verdict.
type InvalidTransitionError struct {
	Workspace WorkspaceRef
	State     PhaseState
	Op        string
	Detail    string
}

func (e *InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("%s illegal for %s in state %s", e.Op, e.Workspace, e.State)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// StaleIterationError signals a verdict targeting a superseded
// iteration: the role submitted a newer one while the review was in
// flight.
type StaleIterationError struct {
	Workspace WorkspaceRef
	Target    int
	Latest    int
}

func (e *StaleIterationError) Error() string {
	return fmt.Sprintf("verdict targets iteration %d of %s but latest is %d", e.Target, e.Workspace, e.Latest)
}

// FeatureAbandonedError signals a mutating call against an abandoned
// feature. History stays readable; only new work is refused.
type FeatureAbandonedError struct {
	FeatureID FeatureID
}

func (e *FeatureAbandonedError) Error() string {
	return fmt.Sprintf("feature %s is abandoned", e.FeatureID)
}
