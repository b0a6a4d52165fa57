package coordinator

import (
	"phasegate/internal/types"
)

// Status derives the snapshot view for a feature. Everything here comes
// from replayable state: the request/iteration/verdict log and the
// grant table. Pass role "" for all phases.
func (c *Coordinator) Status(id types.FeatureID, role types.Role) (*types.FeatureStatusView, error) {
	f, err := c.store.GetFeature(id)
	if err != nil {
		return nil, err
	}

	view := &types.FeatureStatusView{Feature: *f}
	for _, r := range f.PhaseSequence {
		if role != "" && r != role {
			continue
		}
		ps, err := c.phaseStatus(id, r)
		if err != nil {
			return nil, err
		}
		view.Phases = append(view.Phases, *ps)
	}

	if role != "" && len(view.Phases) == 0 {
		return nil, &types.NotFoundError{What: "phase for role " + string(role) + " in feature " + string(id)}
	}

	// The stored status can lag behind the log (it is only rewritten on
	// mutations); the derived view always reflects the log.
	if f.Status != types.FeatureAbandoned {
		view.Feature.Status = deriveFeatureStatus(f, view.Phases, role)
	}
	return view, nil
}

func (c *Coordinator) phaseStatus(id types.FeatureID, r types.Role) (*types.PhaseStatus, error) {
	ws := types.WorkspaceRef{FeatureID: id, Role: r}

	state, err := c.machine.State(ws)
	if err != nil {
		return nil, err
	}
	iterations, err := c.store.CountIterations(ws)
	if err != nil {
		return nil, err
	}

	ps := &types.PhaseStatus{Role: r, State: state, Iterations: iterations}

	if iterations > 0 {
		latest, err := c.store.LatestDocument(ws, types.KindIteration)
		if err != nil {
			return nil, err
		}
		if latest != nil {
			ps.LatestVerdicts, err = c.store.VerdictsForIteration(ws, latest.Seq)
			if err != nil {
				return nil, err
			}
		}
	}

	ps.VisibleHandoffs, err = c.registry.VisibleHandoffs(id, r)
	if err != nil {
		return nil, err
	}
	return ps, nil
}

// deriveFeatureStatus computes the feature lifecycle from its phases.
// Only meaningful for a full (unfiltered) phase list.
func deriveFeatureStatus(f *types.Feature, phases []types.PhaseStatus, filtered types.Role) types.FeatureStatus {
	if filtered != "" || len(phases) != len(f.PhaseSequence) {
		return f.Status
	}

	allNotStarted := true
	allApproved := true
	for _, p := range phases {
		if p.State != types.PhaseNotStarted {
			allNotStarted = false
		}
		if p.State != types.PhaseApproved {
			allApproved = false
		}
	}
	switch {
	case allNotStarted:
		return types.FeatureNotStarted
	case allApproved:
		return types.FeatureComplete
	default:
		return types.FeatureInProgress
	}
}

// refreshFeatureStatus persists the derived lifecycle after a mutation.
// Failures here are logged by the store; the derived view stays correct
// regardless because status is recomputed from the log on every query.
func (c *Coordinator) refreshFeatureStatus(id types.FeatureID) {
	f, err := c.store.GetFeature(id)
	if err != nil || f.Status == types.FeatureAbandoned {
		return
	}
	view, err := c.Status(id, "")
	if err != nil {
		return
	}
	if view.Feature.Status != f.Status {
		_ = c.store.SetFeatureStatus(id, view.Feature.Status)
	}
}
