// Package workspace implements the workspace registry: one isolated
// storage area per (feature, role) pair, with read visibility limited to
// the owner plus explicitly granted handoffs.
//
// CanRead is the sole enforcement point for the isolation invariant.
// Every read path in the engine consults it and fails closed with
// AccessDeniedError; there is no code path that enumerates another
// role's workspace.
package workspace

import (
	"phasegate/internal/logging"
	"phasegate/internal/types"
)

// Registry maps (feature, role) pairs to workspaces and answers
// visibility queries.
type Registry struct {
	store Store
}

// Store is the slice of the document store the registry needs.
type Store interface {
	CreateWorkspace(ws types.WorkspaceRef) error
	WorkspaceExists(ws types.WorkspaceRef) (bool, error)
	ListWorkspaces(id types.FeatureID) ([]types.WorkspaceRef, error)
	GrantHandoff(g types.HandoffGrant) error
	HasGrant(id types.FeatureID, source, target types.Role) (bool, error)
	VisibleHandoffs(id types.FeatureID, target types.Role) ([]types.HandoffGrant, error)
	GrantHistory(id types.FeatureID, source, target types.Role) ([]types.HandoffGrant, error)
}

// NewRegistry creates a registry over the given store.
func NewRegistry(store Store) *Registry {
	return &Registry{store: store}
}

// Create creates the workspace for a (feature, role) pair. A second
// call for the same pair fails with AlreadyExistsError.
func (r *Registry) Create(ws types.WorkspaceRef) error {
	if err := r.store.CreateWorkspace(ws); err != nil {
		return err
	}
	logging.Get(logging.CategoryRegistry).Infow("workspace created", "workspace", ws.String())
	return nil
}

// Ensure creates the workspace if it does not exist yet. Used by the
// coordinator when opening a phase or a handoff target lazily.
func (r *Registry) Ensure(ws types.WorkspaceRef) error {
	exists, err := r.store.WorkspaceExists(ws)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return r.Create(ws)
}

// Exists reports whether the workspace has been created.
func (r *Registry) Exists(ws types.WorkspaceRef) (bool, error) {
	return r.store.WorkspaceExists(ws)
}

// CanRead reports whether actor may read the given workspace: the
// owner always can, the coordinator always can (it issues requests and
// reviews iterations everywhere), and any other role only via a current
// handoff grant. The predicate is total and has no side effects.
func (r *Registry) CanRead(actor types.Role, ws types.WorkspaceRef) (bool, error) {
	if actor == ws.Role || actor == types.RoleCoordinator {
		return true, nil
	}
	return r.store.HasGrant(ws.FeatureID, ws.Role, actor)
}

// CanReadDocument narrows CanRead to one document. Grant-based access
// only reaches handoff documents addressed to the actor; the rest of
// the source workspace stays invisible.
func (r *Registry) CanReadDocument(actor types.Role, doc *types.Document) (bool, error) {
	ws := types.WorkspaceRef{FeatureID: doc.FeatureID, Role: doc.Workspace}
	if actor == ws.Role || actor == types.RoleCoordinator {
		return true, nil
	}
	if doc.Kind != types.KindHandoff || doc.TargetRole != actor {
		return false, nil
	}
	return r.store.HasGrant(ws.FeatureID, ws.Role, actor)
}

// AuthorizeRead is CanRead with fail-closed semantics: it returns
// AccessDeniedError unless the read is allowed.
func (r *Registry) AuthorizeRead(actor types.Role, ws types.WorkspaceRef) error {
	ok, err := r.CanRead(actor, ws)
	if err != nil {
		return err
	}
	if !ok {
		logging.Get(logging.CategoryRegistry).Warnw("read denied",
			"actor", actor, "workspace", ws.String())
		return &types.AccessDeniedError{Actor: actor, Workspace: ws}
	}
	return nil
}

// GrantHandoff grants target read access to a handoff document in
// source's workspace. Only the coordinator may grant, and both
// workspaces must belong to the same feature.
func (r *Registry) GrantHandoff(actor types.Role, source, target types.WorkspaceRef, handoffSeq int) error {
	if actor != types.RoleCoordinator {
		return &types.InvalidGrantError{Detail: "only the coordinator may grant handoffs"}
	}
	if source.FeatureID != target.FeatureID {
		return &types.InvalidGrantError{Detail: "source and target workspaces belong to different features"}
	}
	if source.Role == target.Role {
		return &types.InvalidGrantError{Detail: "a workspace cannot be granted a handoff to itself"}
	}

	return r.store.GrantHandoff(types.HandoffGrant{
		FeatureID:  source.FeatureID,
		SourceRole: source.Role,
		TargetRole: target.Role,
		HandoffSeq: handoffSeq,
	})
}

// VisibleHandoffs returns the current grants a role holds in a feature.
func (r *Registry) VisibleHandoffs(id types.FeatureID, target types.Role) ([]types.HandoffGrant, error) {
	return r.store.VisibleHandoffs(id, target)
}

// GrantHistory returns all grants ever made for a (source, target)
// pair, including superseded ones.
func (r *Registry) GrantHistory(id types.FeatureID, source, target types.Role) ([]types.HandoffGrant, error) {
	return r.store.GrantHistory(id, source, target)
}
