// Package phase implements the per-(feature, role) phase state machine.
//
// State is derived on every query by inspecting the workspace's request,
// iterations, and verdicts; there is no cached "current state" that could
// drift from history. Mutations on the same workspace are serialized by a
// per-workspace lock; operations on different workspaces commute and need no
// coordination.
package phase

import (
	"sync"

	"phasegate/internal/logging"
	"phasegate/internal/types"
	"phasegate/internal/workspace"
)

// Store is the slice of the document store the machine needs.
type Store interface {
	GetFeature(id types.FeatureID) (*types.Feature, error)
	AppendRequest(ws types.WorkspaceRef, payload string, author types.Role) (*types.Document, error)
	AppendIteration(ws types.WorkspaceRef, payload string, author types.Role) (*types.Document, error)
	LatestDocument(ws types.WorkspaceRef, kind types.DocKind) (*types.Document, error)
	CountIterations(ws types.WorkspaceRef) (int, error)
	VerdictsForIteration(ws types.WorkspaceRef, seq int) ([]types.Verdict, error)
	InsertVerdict(v types.Verdict) error
}

// Machine sequences one role's contribution to a feature through
// NotStarted → AwaitingWork → SubmittedForReview → Rejected/Approved.
type Machine struct {
	store    Store
	registry *workspace.Registry
	notifier *Notifier

	mu    sync.Mutex
	locks map[types.WorkspaceRef]*sync.Mutex
}

// NewMachine wires a machine over the store and registry.
func NewMachine(store Store, registry *workspace.Registry, notifier *Notifier) *Machine {
	return &Machine{
		store:    store,
		registry: registry,
		notifier: notifier,
		locks:    make(map[types.WorkspaceRef]*sync.Mutex),
	}
}

// lockFor returns the serialization lock for one workspace.
func (m *Machine) lockFor(ws types.WorkspaceRef) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[ws]
	if !ok {
		l = &sync.Mutex{}
		m.locks[ws] = l
	}
	return l
}

// State derives the current phase state for a workspace from the log.
func (m *Machine) State(ws types.WorkspaceRef) (types.PhaseState, error) {
	exists, err := m.registry.Exists(ws)
	if err != nil {
		return "", err
	}
	if !exists {
		return types.PhaseNotStarted, nil
	}

	req, err := m.store.LatestDocument(ws, types.KindRequest)
	if err != nil {
		return "", err
	}
	if req == nil {
		return types.PhaseNotStarted, nil
	}

	iter, err := m.store.LatestDocument(ws, types.KindIteration)
	if err != nil {
		return "", err
	}
	if iter == nil {
		return types.PhaseAwaitingWork, nil
	}

	verdicts, err := m.store.VerdictsForIteration(ws, iter.Seq)
	if err != nil {
		return "", err
	}
	switch outcome := ResolveOutcome(verdicts); {
	case outcome == nil:
		return types.PhaseSubmittedForReview, nil
	case *outcome == types.OutcomeRejected:
		return types.PhaseRejected, nil
	default:
		return types.PhaseApproved, nil
	}
}

// ResolveOutcome combines the sub-verdicts recorded against one
// iteration. Any rejection rejects the iteration. Approval requires
// either a combined verdict or both the automated and human sub-verdicts
// approving. nil means the review is still incomplete.
func ResolveOutcome(verdicts []types.Verdict) *types.VerdictOutcome {
	var autoApproved, humanApproved, combinedApproved bool
	for _, v := range verdicts {
		if v.Outcome == types.OutcomeRejected {
			out := types.OutcomeRejected
			return &out
		}
		switch v.Signoff {
		case types.SignoffAutomated:
			autoApproved = true
		case types.SignoffHuman:
			humanApproved = true
		case types.SignoffCombined:
			combinedApproved = true
		}
	}
	if combinedApproved || (autoApproved && humanApproved) {
		out := types.OutcomeApproved
		return &out
	}
	return nil
}

// checkActive fails with FeatureAbandonedError (or NotFoundError) when
// the feature cannot accept new work.
func (m *Machine) checkActive(id types.FeatureID) (*types.Feature, error) {
	f, err := m.store.GetFeature(id)
	if err != nil {
		return nil, err
	}
	if f.Status == types.FeatureAbandoned {
		return nil, &types.FeatureAbandonedError{FeatureID: id}
	}
	return f, nil
}

// roleInSequence reports whether the feature's pipeline includes role.
func roleInSequence(f *types.Feature, role types.Role) bool {
	for _, r := range f.PhaseSequence {
		if r == role {
			return true
		}
	}
	return false
}

// IssueRequest opens a phase: it creates the workspace if needed and
// appends the request document. Legal only from NotStarted, except when
// a handoff revision has authorized a re-issue (the store enforces
// that); a plain duplicate fails with ConflictError.
func (m *Machine) IssueRequest(actor types.Role, ws types.WorkspaceRef, payload string) (*types.Document, error) {
	if actor != types.RoleCoordinator {
		return nil, &types.AccessDeniedError{Actor: actor, Workspace: ws}
	}
	f, err := m.checkActive(ws.FeatureID)
	if err != nil {
		return nil, err
	}
	if !roleInSequence(f, ws.Role) {
		return nil, &types.InvalidTransitionError{
			Workspace: ws, State: types.PhaseNotStarted, Op: "issue-request",
			Detail: "role is not part of the feature's phase sequence",
		}
	}

	lock := m.lockFor(ws)
	lock.Lock()
	defer lock.Unlock()

	if err := m.registry.Ensure(ws); err != nil {
		return nil, err
	}

	from, err := m.State(ws)
	if err != nil {
		return nil, err
	}

	doc, err := m.store.AppendRequest(ws, payload, actor)
	if err != nil {
		return nil, err
	}

	to, err := m.State(ws)
	if err != nil {
		return nil, err
	}
	m.notify(ws, from, to)

	logging.Get(logging.CategoryPhase).Infow("request issued",
		"workspace", ws.String(), "seq", doc.Seq, "state", to)
	return doc, nil
}

// SubmitIteration appends the next numbered iteration. Only the owning
// role may submit, and only from AwaitingWork or Rejected.
func (m *Machine) SubmitIteration(actor types.Role, ws types.WorkspaceRef, payload string) (*types.Document, error) {
	if actor != ws.Role {
		return nil, &types.AccessDeniedError{Actor: actor, Workspace: ws}
	}
	if _, err := m.checkActive(ws.FeatureID); err != nil {
		return nil, err
	}

	lock := m.lockFor(ws)
	lock.Lock()
	defer lock.Unlock()

	from, err := m.State(ws)
	if err != nil {
		return nil, err
	}
	if from != types.PhaseAwaitingWork && from != types.PhaseRejected {
		return nil, &types.InvalidTransitionError{
			Workspace: ws, State: from, Op: "submit-iteration",
		}
	}

	doc, err := m.store.AppendIteration(ws, payload, actor)
	if err != nil {
		return nil, err
	}

	m.notify(ws, from, types.PhaseSubmittedForReview)
	logging.Get(logging.CategoryPhase).Infow("iteration submitted",
		"workspace", ws.String(), "iteration", doc.Seq)
	return doc, nil
}

// RecordVerdict persists a verdict and performs the resulting
// transition. Callers go through the review gate, which validates
// feedback, staleness, and sign-off mode before delegating here.
func (m *Machine) RecordVerdict(actor types.Role, ws types.WorkspaceRef, v types.Verdict) (types.PhaseState, error) {
	if actor != types.RoleCoordinator {
		return "", &types.AccessDeniedError{Actor: actor, Workspace: ws}
	}
	if _, err := m.checkActive(ws.FeatureID); err != nil {
		return "", err
	}

	lock := m.lockFor(ws)
	lock.Lock()
	defer lock.Unlock()

	from, err := m.State(ws)
	if err != nil {
		return "", err
	}
	if from != types.PhaseSubmittedForReview {
		return "", &types.InvalidTransitionError{
			Workspace: ws, State: from, Op: "record-verdict",
		}
	}

	// Staleness is checked under the same lock that serializes
	// submissions: a verdict racing a newer iteration must lose.
	latest, err := m.store.LatestDocument(ws, types.KindIteration)
	if err != nil {
		return "", err
	}
	if latest == nil || v.IterationSeq != latest.Seq {
		latestSeq := 0
		if latest != nil {
			latestSeq = latest.Seq
		}
		return "", &types.StaleIterationError{Workspace: ws, Target: v.IterationSeq, Latest: latestSeq}
	}

	if err := m.store.InsertVerdict(v); err != nil {
		return "", err
	}

	to, err := m.State(ws)
	if err != nil {
		return "", err
	}
	m.notify(ws, from, to)

	logging.Get(logging.CategoryPhase).Infow("verdict applied",
		"workspace", ws.String(), "iteration", v.IterationSeq,
		"signoff", v.Signoff, "outcome", v.Outcome, "state", to)
	return to, nil
}

func (m *Machine) notify(ws types.WorkspaceRef, from, to types.PhaseState) {
	if m.notifier == nil || from == to {
		return
	}
	m.notifier.publish(StateChange{Workspace: ws, From: from, To: to})
}
