// Package gate implements the review gate: the only path by which
// verdicts enter the system.
//
// The gate refuses vague rejections at the boundary: a rejection must
// carry at least one structured feedback item naming a location, a
// problem, and a required fix. Ambiguous feedback is the failure mode
// this engine exists to eliminate, so the check is a protocol rule, not
// a UI nicety.
package gate

import (
	"github.com/google/uuid"

	"phasegate/internal/logging"
	"phasegate/internal/phase"
	"phasegate/internal/types"
)

// Gate validates and records verdicts, driving phase transitions
// through the machine. In dual sign-off mode an automated and a human
// sub-verdict must both approve before a phase reaches Approved; either
// rejecting moves it to Rejected.
type Gate struct {
	machine     *phase.Machine
	dualSignoff bool
}

// New creates a gate over the machine.
func New(machine *phase.Machine, dualSignoff bool) *Gate {
	return &Gate{machine: machine, dualSignoff: dualSignoff}
}

// DualSignoff reports whether the gate requires both sub-verdicts.
func (g *Gate) DualSignoff() bool { return g.dualSignoff }

// Record validates a verdict request and applies it. It returns the
// phase state after the verdict. The stale-iteration check runs inside
// the machine under the workspace lock, so a verdict racing a newer
// submission reliably fails with StaleIterationError.
func (g *Gate) Record(actor types.Role, ws types.WorkspaceRef, iterationSeq int, signoff types.SignoffKind, outcome types.VerdictOutcome, feedback []types.FeedbackItem, reviewerHuman string) (types.PhaseState, *types.Verdict, error) {
	if signoff == "" {
		if g.dualSignoff {
			signoff = types.SignoffHuman
		} else {
			signoff = types.SignoffCombined
		}
	}
	if err := g.validateSignoff(ws, signoff); err != nil {
		return "", nil, err
	}

	switch outcome {
	case types.OutcomeApproved, types.OutcomeRejected:
	default:
		return "", nil, &types.InvalidTransitionError{
			Workspace: ws, Op: "record-verdict",
			Detail: "outcome must be approved or rejected",
		}
	}

	if outcome == types.OutcomeRejected {
		if len(feedback) == 0 {
			return "", nil, &types.InvalidTransitionError{
				Workspace: ws, Op: "record-verdict",
				Detail: "rejection requires at least one structured feedback item",
			}
		}
		for _, item := range feedback {
			if err := item.Validate(); err != nil {
				return "", nil, &types.InvalidTransitionError{
					Workspace: ws, Op: "record-verdict",
					Detail: err.Error(),
				}
			}
		}
	}

	v := types.Verdict{
		ID:            uuid.NewString(),
		FeatureID:     ws.FeatureID,
		Workspace:     ws.Role,
		IterationSeq:  iterationSeq,
		Signoff:       signoff,
		Outcome:       outcome,
		ReviewerRole:  types.RoleCoordinator,
		ReviewerHuman: reviewerHuman,
		Feedback:      feedback,
	}

	state, err := g.machine.RecordVerdict(actor, ws, v)
	if err != nil {
		return "", nil, err
	}

	logging.Get(logging.CategoryGate).Infow("verdict recorded",
		"workspace", ws.String(), "iteration", iterationSeq,
		"signoff", signoff, "outcome", outcome, "state", state)
	return state, &v, nil
}

// validateSignoff enforces the gate's sign-off mode.
func (g *Gate) validateSignoff(ws types.WorkspaceRef, signoff types.SignoffKind) error {
	if g.dualSignoff {
		if signoff != types.SignoffAutomated && signoff != types.SignoffHuman {
			return &types.InvalidTransitionError{
				Workspace: ws, Op: "record-verdict",
				Detail: "dual sign-off mode requires an automated or human sub-verdict",
			}
		}
		return nil
	}
	if signoff != types.SignoffCombined {
		return &types.InvalidTransitionError{
			Workspace: ws, Op: "record-verdict",
			Detail: "single-verdict mode records one combined sign-off",
		}
	}
	return nil
}
