package coordinator

import (
	"phasegate/internal/types"
)

// Read paths. Every document read consults the registry and fails
// closed before touching the store, so an unauthorized caller cannot
// even distinguish "exists" from "does not exist" in another workspace.

// Show returns one document, subject to the acting role's visibility.
// Non-owners reach only handoff documents addressed to them through a
// current or historical grant; the coordinator reads everything.
func (c *Coordinator) Show(actor types.Role, id types.FeatureID, wsRole types.Role, kind types.DocKind, seq int) (*types.Document, error) {
	ws := types.WorkspaceRef{FeatureID: id, Role: wsRole}
	if !types.ValidKind(kind) {
		return nil, &types.NotFoundError{What: "document kind " + string(kind)}
	}

	owner := actor == wsRole || actor == types.RoleCoordinator
	if !owner {
		if kind != types.KindHandoff {
			return nil, &types.AccessDeniedError{Actor: actor, Workspace: ws}
		}
		ok, err := c.registry.CanRead(actor, ws)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &types.AccessDeniedError{Actor: actor, Workspace: ws}
		}
	}

	doc, err := c.store.GetDocument(ws, kind, seq)
	if err != nil {
		return nil, err
	}
	if !owner && doc.TargetRole != actor {
		return nil, &types.AccessDeniedError{Actor: actor, Workspace: ws}
	}
	return doc, nil
}

// Documents lists a workspace's documents of one kind. Enumeration is
// owner-or-coordinator only; grant holders read individual handoffs via
// Show or VisibleHandoffDocuments, never by listing a foreign
// workspace.
func (c *Coordinator) Documents(actor types.Role, id types.FeatureID, wsRole types.Role, kind types.DocKind) ([]types.Document, error) {
	ws := types.WorkspaceRef{FeatureID: id, Role: wsRole}
	if actor != wsRole && actor != types.RoleCoordinator {
		return nil, &types.AccessDeniedError{Actor: actor, Workspace: ws}
	}
	return c.store.ListDocuments(ws, kind)
}

// VisibleHandoffDocuments resolves the acting role's current grants to
// the handoff documents they point at.
func (c *Coordinator) VisibleHandoffDocuments(actor types.Role, id types.FeatureID) ([]types.Document, error) {
	grants, err := c.registry.VisibleHandoffs(id, actor)
	if err != nil {
		return nil, err
	}

	var docs []types.Document
	for _, g := range grants {
		ws := types.WorkspaceRef{FeatureID: g.FeatureID, Role: g.SourceRole}
		doc, err := c.store.GetDocument(ws, types.KindHandoff, g.HandoffSeq)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, nil
}

// HandoffHistory returns every handoff grant ever made from source to
// target, superseded ones included.
func (c *Coordinator) HandoffHistory(id types.FeatureID, source, target types.Role) ([]types.HandoffGrant, error) {
	return c.registry.GrantHistory(id, source, target)
}
