package gate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"phasegate/internal/phase"
	"phasegate/internal/store"
	"phasegate/internal/types"
	"phasegate/internal/workspace"
)

func newGate(t *testing.T, dual bool) *Gate {
	t.Helper()
	s, err := store.NewLocalStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.CreateFeature(types.Feature{
		ID:            "tasks-001",
		Title:         "task tracker",
		PhaseSequence: []types.Role{"spec", "build"},
		Status:        types.FeatureNotStarted,
	}))

	registry := workspace.NewRegistry(s)
	machine := phase.NewMachine(s, registry, phase.NewNotifier())
	g := New(machine, dual)

	ws := types.WorkspaceRef{FeatureID: "tasks-001", Role: "spec"}
	_, err = machine.IssueRequest(types.RoleCoordinator, ws, "write tests")
	require.NoError(t, err)
	_, err = machine.SubmitIteration("spec", ws, "25 tests")
	require.NoError(t, err)
	return g
}

func specWS() types.WorkspaceRef {
	return types.WorkspaceRef{FeatureID: "tasks-001", Role: "spec"}
}

func fix() []types.FeedbackItem {
	return []types.FeedbackItem{{
		Severity: types.SeverityCritical, Location: "file:120",
		Problem: "missing case", RequiredFix: "add test X",
	}}
}

func TestRejectionRequiresStructuredFeedback(t *testing.T) {
	g := newGate(t, false)

	var invalid *types.InvalidTransitionError
	_, _, err := g.Record(types.RoleCoordinator, specWS(), 1, types.SignoffCombined, types.OutcomeRejected, nil, "")
	require.ErrorAs(t, err, &invalid)

	// Items with missing fields are refused too; vagueness is the
	// failure mode the gate exists to stop.
	vague := []types.FeedbackItem{{Severity: types.SeverityMajor, Location: "file:1"}}
	_, _, err = g.Record(types.RoleCoordinator, specWS(), 1, types.SignoffCombined, types.OutcomeRejected, vague, "")
	require.ErrorAs(t, err, &invalid)

	state, _, err := g.Record(types.RoleCoordinator, specWS(), 1, types.SignoffCombined, types.OutcomeRejected, fix(), "")
	require.NoError(t, err)
	require.Equal(t, types.PhaseRejected, state)
}

func TestSignoffModeEnforced(t *testing.T) {
	single := newGate(t, false)
	var invalid *types.InvalidTransitionError
	_, _, err := single.Record(types.RoleCoordinator, specWS(), 1, types.SignoffAutomated, types.OutcomeApproved, nil, "")
	require.ErrorAs(t, err, &invalid)

	dual := newGate(t, true)
	_, _, err = dual.Record(types.RoleCoordinator, specWS(), 1, types.SignoffCombined, types.OutcomeApproved, nil, "")
	require.ErrorAs(t, err, &invalid)
}

func TestDualSignoffBothRequiredForApproval(t *testing.T) {
	g := newGate(t, true)

	state, _, err := g.Record(types.RoleCoordinator, specWS(), 1, types.SignoffAutomated, types.OutcomeApproved, nil, "")
	require.NoError(t, err)
	require.Equal(t, types.PhaseSubmittedForReview, state, "one sub-verdict is not enough")

	state, v, err := g.Record(types.RoleCoordinator, specWS(), 1, types.SignoffHuman, types.OutcomeApproved, nil, "alice@example")
	require.NoError(t, err)
	require.Equal(t, types.PhaseApproved, state)
	require.Equal(t, "alice@example", v.ReviewerHuman)
}

func TestDualSignoffEitherRejectionRejects(t *testing.T) {
	g := newGate(t, true)

	state, _, err := g.Record(types.RoleCoordinator, specWS(), 1, types.SignoffAutomated, types.OutcomeApproved, nil, "")
	require.NoError(t, err)
	require.Equal(t, types.PhaseSubmittedForReview, state)

	state, _, err = g.Record(types.RoleCoordinator, specWS(), 1, types.SignoffHuman, types.OutcomeRejected, fix(), "alice@example")
	require.NoError(t, err)
	require.Equal(t, types.PhaseRejected, state)
}

func TestDuplicateSubVerdictConflicts(t *testing.T) {
	g := newGate(t, true)

	_, _, err := g.Record(types.RoleCoordinator, specWS(), 1, types.SignoffAutomated, types.OutcomeApproved, nil, "")
	require.NoError(t, err)

	var conflict *types.ConflictError
	_, _, err = g.Record(types.RoleCoordinator, specWS(), 1, types.SignoffAutomated, types.OutcomeApproved, nil, "")
	require.ErrorAs(t, err, &conflict)
}

func TestExactlyOneVerdictPerIteration(t *testing.T) {
	g := newGate(t, false)

	state, _, err := g.Record(types.RoleCoordinator, specWS(), 1, types.SignoffCombined, types.OutcomeApproved, nil, "")
	require.NoError(t, err)
	require.Equal(t, types.PhaseApproved, state)

	// A second verdict on the approved iteration is an illegal
	// transition, not an amendment.
	var invalid *types.InvalidTransitionError
	_, _, err = g.Record(types.RoleCoordinator, specWS(), 1, types.SignoffCombined, types.OutcomeRejected, fix(), "")
	require.ErrorAs(t, err, &invalid)
}

func TestDefaultSignoffPerMode(t *testing.T) {
	single := newGate(t, false)
	_, v, err := single.Record(types.RoleCoordinator, specWS(), 1, "", types.OutcomeApproved, nil, "")
	require.NoError(t, err)
	require.Equal(t, types.SignoffCombined, v.Signoff)

	dual := newGate(t, true)
	_, v, err = dual.Record(types.RoleCoordinator, specWS(), 1, "", types.OutcomeApproved, nil, "bob@example")
	require.NoError(t, err)
	require.Equal(t, types.SignoffHuman, v.Signoff)
}
