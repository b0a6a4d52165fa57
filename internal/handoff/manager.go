// Package handoff implements bounded parallelism between phases.
//
// A handoff exposes a named subset of a source iteration's interface to
// a downstream workspace before the source phase is approved. Because
// iterations are immutable, an interface change between iterations is
// surfaced as an explicit revision event (a new numbered handoff
// document and a re-pointed grant), never a silent content swap under
// the downstream role.
package handoff

import (
	"fmt"

	"phasegate/internal/logging"
	"phasegate/internal/types"
	"phasegate/internal/workspace"
)

// Store is the slice of the document store the manager needs.
type Store interface {
	GetFeature(id types.FeatureID) (*types.Feature, error)
	GetDocument(ws types.WorkspaceRef, kind types.DocKind, seq int) (*types.Document, error)
	AppendHandoff(ws types.WorkspaceRef, payload string, author types.Role, sourceIteration int, target types.Role) (*types.Document, error)
	AuthorizeReissue(ws types.WorkspaceRef, handoffSeq int) error
}

// Manager opens and revises handoffs.
type Manager struct {
	store    Store
	registry *workspace.Registry
}

// NewManager wires a manager over the store and registry.
func NewManager(store Store, registry *workspace.Registry) *Manager {
	return &Manager{store: store, registry: registry}
}

// Open creates a handoff document in the source workspace exposing
// sourceIteration's interface to target, and grants target read access.
// Legal at any phase state of the source; the whole point is to
// unblock downstream work before upstream approval.
func (m *Manager) Open(actor types.Role, id types.FeatureID, source types.Role, sourceIteration int, target types.Role, exposedInterface string) (*types.Document, error) {
	if _, err := m.precheck(actor, id, source, target); err != nil {
		return nil, err
	}

	srcWS := types.WorkspaceRef{FeatureID: id, Role: source}
	if _, err := m.store.GetDocument(srcWS, types.KindIteration, sourceIteration); err != nil {
		return nil, err
	}

	// The target workspace may predate its request; create it lazily so
	// the grant has somewhere to point.
	dstWS := types.WorkspaceRef{FeatureID: id, Role: target}
	if err := m.registry.Ensure(dstWS); err != nil {
		return nil, err
	}

	doc, err := m.store.AppendHandoff(srcWS, exposedInterface, actor, sourceIteration, target)
	if err != nil {
		return nil, err
	}

	if err := m.registry.GrantHandoff(actor, srcWS, dstWS, doc.Seq); err != nil {
		return nil, err
	}

	logging.Get(logging.CategoryHandoff).Infow("handoff opened",
		"feature", id, "source", source, "iteration", sourceIteration,
		"target", target, "handoff", doc.Name())
	return doc, nil
}

// Revise supersedes a previous handoff with a new one exposing a newer
// source iteration. The old handoff stays readable in history, the
// registry pointer moves to the new one, and the coordinator is
// authorized to re-issue the target's request to communicate the
// change.
func (m *Manager) Revise(actor types.Role, id types.FeatureID, source types.Role, previousSeq int, newSourceIteration int, changes string) (*types.Document, error) {
	srcWS := types.WorkspaceRef{FeatureID: id, Role: source}

	prev, err := m.store.GetDocument(srcWS, types.KindHandoff, previousSeq)
	if err != nil {
		return nil, err
	}
	target := prev.TargetRole

	if _, err := m.precheck(actor, id, source, target); err != nil {
		return nil, err
	}
	if _, err := m.store.GetDocument(srcWS, types.KindIteration, newSourceIteration); err != nil {
		return nil, err
	}

	doc, err := m.store.AppendHandoff(srcWS, changes, actor, newSourceIteration, target)
	if err != nil {
		return nil, err
	}

	dstWS := types.WorkspaceRef{FeatureID: id, Role: target}
	if err := m.registry.GrantHandoff(actor, srcWS, dstWS, doc.Seq); err != nil {
		return nil, err
	}

	// The exposed interface changed; permit one request re-issue so the
	// coordinator can reconcile downstream work explicitly.
	if err := m.store.AuthorizeReissue(dstWS, doc.Seq); err != nil {
		return nil, err
	}

	logging.Get(logging.CategoryHandoff).Infow("handoff revised",
		"feature", id, "source", source, "superseded", prev.Name(),
		"handoff", doc.Name(), "iteration", newSourceIteration, "target", target)
	return doc, nil
}

// precheck validates actor, feature liveness, and the roles involved.
func (m *Manager) precheck(actor types.Role, id types.FeatureID, source, target types.Role) (*types.Feature, error) {
	if actor != types.RoleCoordinator {
		return nil, &types.InvalidGrantError{Detail: "only the coordinator may open handoffs"}
	}
	if source == target {
		return nil, &types.InvalidGrantError{Detail: "source and target roles must differ"}
	}

	f, err := m.store.GetFeature(id)
	if err != nil {
		return nil, err
	}
	if f.Status == types.FeatureAbandoned {
		return nil, &types.FeatureAbandonedError{FeatureID: id}
	}
	for _, r := range []types.Role{source, target} {
		if !featureHasRole(f, r) {
			return nil, &types.InvalidGrantError{
				Detail: fmt.Sprintf("role %q is not part of the feature's phase sequence", r),
			}
		}
	}
	return f, nil
}

func featureHasRole(f *types.Feature, role types.Role) bool {
	for _, r := range f.PhaseSequence {
		if r == role {
			return true
		}
	}
	return false
}
