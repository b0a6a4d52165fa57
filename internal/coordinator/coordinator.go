// Package coordinator is the orchestration facade used by the feature
// owner: it creates features, opens phases, records verdicts, manages
// handoffs, and answers status queries. Every CLI command goes through
// this package; roles other than the coordinator can only submit
// iterations into their own workspace and read what the registry lets
// them see.
package coordinator

import (
	"fmt"

	"phasegate/internal/config"
	"phasegate/internal/gate"
	"phasegate/internal/handoff"
	"phasegate/internal/logging"
	"phasegate/internal/phase"
	"phasegate/internal/store"
	"phasegate/internal/types"
	"phasegate/internal/workspace"
)

// Coordinator wires the engine's components over one document store.
type Coordinator struct {
	store    *store.LocalStore
	registry *workspace.Registry
	machine  *phase.Machine
	gate     *gate.Gate
	handoffs *handoff.Manager
	notifier *phase.Notifier
}

// Open creates a coordinator over the database named in cfg.
func Open(cfg *config.Config) (*Coordinator, error) {
	st, err := store.NewLocalStore(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, err
	}
	return New(st, cfg.Review.DualSignoff), nil
}

// New assembles a coordinator over an existing store. Tests use this
// with an in-memory store.
func New(st *store.LocalStore, dualSignoff bool) *Coordinator {
	registry := workspace.NewRegistry(st)
	notifier := phase.NewNotifier()
	machine := phase.NewMachine(st, registry, notifier)
	return &Coordinator{
		store:    st,
		registry: registry,
		machine:  machine,
		gate:     gate.New(machine, dualSignoff),
		handoffs: handoff.NewManager(st, registry),
		notifier: notifier,
	}
}

// Close releases the notifier and the store.
func (c *Coordinator) Close() error {
	c.notifier.Close()
	return c.store.Close()
}

// Subscribe returns a channel of phase state changes plus a cancel func.
func (c *Coordinator) Subscribe() (<-chan phase.StateChange, func()) {
	return c.notifier.Subscribe()
}

// CreateFeature registers a new feature with its fixed phase sequence.
func (c *Coordinator) CreateFeature(rawID, title string, phaseSequence []types.Role) (*types.Feature, error) {
	id, err := types.ParseFeatureID(rawID)
	if err != nil {
		return nil, err
	}
	if len(phaseSequence) == 0 {
		return nil, fmt.Errorf("feature %s needs at least one phase", id)
	}
	seen := make(map[types.Role]bool, len(phaseSequence))
	for _, r := range phaseSequence {
		if r == types.RoleCoordinator {
			return nil, fmt.Errorf("the coordinator is not a pipeline phase")
		}
		if r == "" {
			return nil, fmt.Errorf("empty role in phase sequence")
		}
		if seen[r] {
			return nil, fmt.Errorf("role %q appears twice in phase sequence", r)
		}
		seen[r] = true
	}

	f := types.Feature{
		ID:            id,
		Title:         title,
		PhaseSequence: phaseSequence,
		Status:        types.FeatureNotStarted,
	}
	if err := c.store.CreateFeature(f); err != nil {
		return nil, err
	}

	logging.Get(logging.CategoryCoordinator).Infow("feature created",
		"feature", id, "title", title, "phases", phaseSequence)
	return &f, nil
}

// IssueRequest opens a phase for a role by writing the request document
// into that role's workspace.
func (c *Coordinator) IssueRequest(id types.FeatureID, role types.Role, payload string) (*types.Document, error) {
	ws := types.WorkspaceRef{FeatureID: id, Role: role}
	doc, err := c.machine.IssueRequest(types.RoleCoordinator, ws, payload)
	if err != nil {
		return nil, err
	}
	c.refreshFeatureStatus(id)
	return doc, nil
}

// SubmitIteration records a role's next numbered iteration. The acting
// role must own the workspace.
func (c *Coordinator) SubmitIteration(actor types.Role, id types.FeatureID, role types.Role, payload string) (*types.Document, error) {
	ws := types.WorkspaceRef{FeatureID: id, Role: role}
	return c.machine.SubmitIteration(actor, ws, payload)
}

// RecordVerdict reviews an iteration. iterationSeq 0 means the latest
// iteration; the machine re-checks staleness under the workspace lock
// either way.
func (c *Coordinator) RecordVerdict(id types.FeatureID, role types.Role, iterationSeq int, signoff types.SignoffKind, outcome types.VerdictOutcome, feedback []types.FeedbackItem, reviewerHuman string) (types.PhaseState, *types.Verdict, error) {
	ws := types.WorkspaceRef{FeatureID: id, Role: role}

	if iterationSeq == 0 {
		latest, err := c.store.LatestDocument(ws, types.KindIteration)
		if err != nil {
			return "", nil, err
		}
		if latest == nil {
			return "", nil, &types.InvalidTransitionError{
				Workspace: ws, State: types.PhaseAwaitingWork, Op: "record-verdict",
				Detail: "no iteration to review",
			}
		}
		iterationSeq = latest.Seq
	}

	state, v, err := c.gate.Record(types.RoleCoordinator, ws, iterationSeq, signoff, outcome, feedback, reviewerHuman)
	if err != nil {
		return "", nil, err
	}
	if state == types.PhaseApproved {
		c.refreshFeatureStatus(id)
	}
	return state, v, nil
}

// OpenHandoff exposes part of a source iteration to a downstream role.
func (c *Coordinator) OpenHandoff(id types.FeatureID, source types.Role, sourceIteration int, target types.Role, exposedInterface string) (*types.Document, error) {
	return c.handoffs.Open(types.RoleCoordinator, id, source, sourceIteration, target, exposedInterface)
}

// ReviseHandoff supersedes an earlier handoff with a newer iteration's
// interface.
func (c *Coordinator) ReviseHandoff(id types.FeatureID, source types.Role, previousSeq, newSourceIteration int, changes string) (*types.Document, error) {
	return c.handoffs.Revise(types.RoleCoordinator, id, source, previousSeq, newSourceIteration, changes)
}

// Abandon stops all further work on a feature. History stays readable.
func (c *Coordinator) Abandon(id types.FeatureID) error {
	f, err := c.store.GetFeature(id)
	if err != nil {
		return err
	}
	if f.Status == types.FeatureAbandoned {
		return &types.FeatureAbandonedError{FeatureID: id}
	}
	if err := c.store.SetFeatureStatus(id, types.FeatureAbandoned); err != nil {
		return err
	}
	logging.Get(logging.CategoryCoordinator).Infow("feature abandoned", "feature", id)
	return nil
}

// Features lists all features.
func (c *Coordinator) Features() ([]types.Feature, error) {
	return c.store.ListFeatures()
}

// Feature fetches one feature record.
func (c *Coordinator) Feature(id types.FeatureID) (*types.Feature, error) {
	return c.store.GetFeature(id)
}

// EventLog replays a feature's full audit history.
func (c *Coordinator) EventLog(id types.FeatureID) ([]types.Event, error) {
	return c.store.EventLog(id)
}
