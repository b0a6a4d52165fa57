package handoff

import (
	"testing"

	"github.com/stretchr/testify/require"

	"phasegate/internal/phase"
	"phasegate/internal/store"
	"phasegate/internal/types"
	"phasegate/internal/workspace"
)

type fixture struct {
	store    *store.LocalStore
	registry *workspace.Registry
	machine  *phase.Machine
	manager  *Manager
}

func newFixture(t *testing.T) *fixture {
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
	return &fixture{
		store:    s,
		registry: registry,
		machine:  machine,
		manager:  NewManager(s, registry),
	}
}

func (f *fixture) submitSpecIteration(t *testing.T, payload string) {
	t.Helper()
	ws := types.WorkspaceRef{FeatureID: "tasks-001", Role: "spec"}
	state, err := f.machine.State(ws)
	require.NoError(t, err)
	if state == types.PhaseNotStarted {
		_, err = f.machine.IssueRequest(types.RoleCoordinator, ws, "write tests")
		require.NoError(t, err)
	}
	_, err = f.machine.SubmitIteration("spec", ws, payload)
	require.NoError(t, err)
}

func TestOpenHandoffBeforeApproval(t *testing.T) {
	f := newFixture(t)
	f.submitSpecIteration(t, "v1 interface")

	// Reject the iteration: the source phase is not approved, and the
	// handoff is legal anyway, that is its purpose.
	srcWS := types.WorkspaceRef{FeatureID: "tasks-001", Role: "spec"}
	v := types.Verdict{
		ID: "v-1", FeatureID: "tasks-001", Workspace: "spec", IterationSeq: 1,
		Signoff: types.SignoffCombined, Outcome: types.OutcomeRejected,
		ReviewerRole: types.RoleCoordinator,
		Feedback: []types.FeedbackItem{{
			Severity: types.SeverityMajor, Location: "file:1", Problem: "x", RequiredFix: "y",
		}},
	}
	_, err := f.machine.RecordVerdict(types.RoleCoordinator, srcWS, v)
	require.NoError(t, err)

	doc, err := f.manager.Open(types.RoleCoordinator, "tasks-001", "spec", 1, "build", `{"signature": "Store(task) error"}`)
	require.NoError(t, err)
	require.Equal(t, "handoff-001", doc.Name())
	require.Equal(t, 1, doc.SourceIteration)
	require.Equal(t, types.Role("build"), doc.TargetRole)

	// The handoff lives in the source workspace and the target can now
	// read it.
	ok, err := f.registry.CanRead("build", srcWS)
	require.NoError(t, err)
	require.True(t, ok)

	// The target workspace was created lazily and can accept work once
	// its request arrives.
	dstWS := types.WorkspaceRef{FeatureID: "tasks-001", Role: "build"}
	exists, err := f.registry.Exists(dstWS)
	require.NoError(t, err)
	require.True(t, exists)

	_, err = f.machine.IssueRequest(types.RoleCoordinator, dstWS, "build against the handoff")
	require.NoError(t, err)
	_, err = f.machine.SubmitIteration("build", dstWS, "storage layer v1")
	require.NoError(t, err)
}

func TestOpenHandoffGuards(t *testing.T) {
	f := newFixture(t)
	f.submitSpecIteration(t, "v1")

	var invalid *types.InvalidGrantError
	_, err := f.manager.Open("spec", "tasks-001", "spec", 1, "build", "{}")
	require.ErrorAs(t, err, &invalid)

	_, err = f.manager.Open(types.RoleCoordinator, "tasks-001", "spec", 1, "ui", "{}")
	require.ErrorAs(t, err, &invalid, "target outside the phase sequence")

	var notFound *types.NotFoundError
	_, err = f.manager.Open(types.RoleCoordinator, "tasks-001", "spec", 9, "build", "{}")
	require.ErrorAs(t, err, &notFound, "missing source iteration")
}

func TestReviseHandoffMovesPointerKeepsHistory(t *testing.T) {
	f := newFixture(t)
	f.submitSpecIteration(t, "v1 interface")

	first, err := f.manager.Open(types.RoleCoordinator, "tasks-001", "spec", 1, "build", "interface v1")
	require.NoError(t, err)

	// The spec role iterates; the approved interface drifts.
	srcWS := types.WorkspaceRef{FeatureID: "tasks-001", Role: "spec"}
	v := types.Verdict{
		ID: "v-1", FeatureID: "tasks-001", Workspace: "spec", IterationSeq: 1,
		Signoff: types.SignoffCombined, Outcome: types.OutcomeRejected,
		ReviewerRole: types.RoleCoordinator,
		Feedback: []types.FeedbackItem{{
			Severity: types.SeverityMajor, Location: "file:1", Problem: "x", RequiredFix: "y",
		}},
	}
	_, err = f.machine.RecordVerdict(types.RoleCoordinator, srcWS, v)
	require.NoError(t, err)
	f.submitSpecIteration(t, "v2 interface")

	second, err := f.manager.Revise(types.RoleCoordinator, "tasks-001", "spec", first.Seq, 2, "interface v2: signature changed")
	require.NoError(t, err)
	require.Equal(t, "handoff-002", second.Name())
	require.Equal(t, 2, second.SourceIteration)

	// The visible pointer resolves to the newest handoff.
	visible, err := f.registry.VisibleHandoffs("tasks-001", "build")
	require.NoError(t, err)
	require.Len(t, visible, 1)
	require.Equal(t, second.Seq, visible[0].HandoffSeq)

	// History keeps both; the superseded document is still readable.
	history, err := f.registry.GrantHistory("tasks-001", "spec", "build")
	require.NoError(t, err)
	require.Len(t, history, 2)

	old, err := f.store.GetDocument(srcWS, types.KindHandoff, first.Seq)
	require.NoError(t, err)
	require.Equal(t, "interface v1", old.Payload)
}

func TestReviseAuthorizesRequestReissue(t *testing.T) {
	f := newFixture(t)
	f.submitSpecIteration(t, "v1")

	first, err := f.manager.Open(types.RoleCoordinator, "tasks-001", "spec", 1, "build", "v1")
	require.NoError(t, err)

	dstWS := types.WorkspaceRef{FeatureID: "tasks-001", Role: "build"}
	_, err = f.machine.IssueRequest(types.RoleCoordinator, dstWS, "build it")
	require.NoError(t, err)

	// Without a revision, a second request is a conflict.
	var conflict *types.ConflictError
	_, err = f.machine.IssueRequest(types.RoleCoordinator, dstWS, "build it differently")
	require.ErrorAs(t, err, &conflict)

	_, err = f.manager.Revise(types.RoleCoordinator, "tasks-001", "spec", first.Seq, 1, "revised exposure")
	require.NoError(t, err)

	// The revision authorizes exactly one re-issue.
	_, err = f.machine.IssueRequest(types.RoleCoordinator, dstWS, "build against v2")
	require.NoError(t, err)
	_, err = f.machine.IssueRequest(types.RoleCoordinator, dstWS, "and again")
	require.ErrorAs(t, err, &conflict)
}
