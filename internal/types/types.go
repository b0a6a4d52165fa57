// Package types provides shared type definitions used across phasegate packages.
// This package exists to break import cycles between the store, registry, and
// engine packages. Types here are foundational data structures with no complex
// dependencies.
package types

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Role identifies a producer/consumer of work within a feature
// (e.g. "spec", "build", "data", "ui"). The coordinator is the single
// privileged role that creates features, issues requests, records
// verdicts, and opens handoffs.
type Role string

// RoleCoordinator is the privileged orchestration role.
const RoleCoordinator Role = "coordinator"

// FeatureID is a domain-prefixed sequence id, e.g. "tasks-001".
// Globally unique and immutable once assigned.
type FeatureID string

var featureIDPattern = regexp.MustCompile(`^[a-z][a-z0-9]*(?:-[a-z0-9]+)*-[0-9]+$`)

// ParseFeatureID validates the domain-sequence form of a feature id.
func ParseFeatureID(s string) (FeatureID, error) {
	if !featureIDPattern.MatchString(s) {
		return "", fmt.Errorf("invalid feature id %q: want <domain>-<sequence>, e.g. tasks-001", s)
	}
	return FeatureID(s), nil
}

// FeatureStatus represents the lifecycle of a feature.
type FeatureStatus string

const (
	FeatureNotStarted FeatureStatus = "not_started"
	FeatureInProgress FeatureStatus = "in_progress"
	FeatureComplete   FeatureStatus = "complete"
	FeatureAbandoned  FeatureStatus = "abandoned"
)

// Feature is one unit of work flowing through the pipeline.
// PhaseSequence is fixed at creation and defines the ordered roles the
// feature passes through. Features are never deleted, only abandoned.
type Feature struct {
	ID            FeatureID     `json:"id"`
	Title         string        `json:"title"`
	PhaseSequence []Role        `json:"phase_sequence"`
	Status        FeatureStatus `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
}

// WorkspaceRef identifies the isolated storage area owned by one
// (feature, role) pair.
type WorkspaceRef struct {
	FeatureID FeatureID `json:"feature_id"`
	Role      Role      `json:"role"`
}

func (w WorkspaceRef) String() string {
	return string(w.FeatureID) + "/" + string(w.Role)
}

// DocKind distinguishes the three document kinds the store accepts.
type DocKind string

const (
	KindRequest   DocKind = "request"
	KindIteration DocKind = "iteration"
	KindHandoff   DocKind = "handoff"
)

// ValidKind reports whether k is one of the three document kinds.
func ValidKind(k DocKind) bool {
	switch k {
	case KindRequest, KindIteration, KindHandoff:
		return true
	}
	return false
}

// Document is an immutable, versioned artifact. Identity is the tuple
// (feature, workspace role, kind, seq); the tuple is never reused and the
// payload is frozen once appended. Handoff documents additionally carry
// the source iteration they expose and the target role granted read
// access.
type Document struct {
	Ref       string    `json:"ref"` // opaque unique token
	FeatureID FeatureID `json:"feature_id"`
	Workspace Role      `json:"workspace"` // owning workspace's role
	Kind      DocKind   `json:"kind"`
	Seq       int       `json:"seq"`
	Payload   string    `json:"payload"`
	Author    Role      `json:"author"`
	CreatedAt time.Time `json:"created_at"`

	// Handoff-only fields.
	SourceIteration int  `json:"source_iteration,omitempty"`
	TargetRole      Role `json:"target_role,omitempty"`
}

// Name returns the human-facing document name, e.g. "iteration-02" or
// "handoff-001".
func (d *Document) Name() string {
	switch d.Kind {
	case KindIteration:
		return fmt.Sprintf("iteration-%02d", d.Seq)
	case KindHandoff:
		return fmt.Sprintf("handoff-%03d", d.Seq)
	default:
		return string(d.Kind)
	}
}

// VerdictOutcome is the result of a review.
type VerdictOutcome string

const (
	OutcomeApproved VerdictOutcome = "approved"
	OutcomeRejected VerdictOutcome = "rejected"
)

// SignoffKind distinguishes the automated/coordinator check from the
// human check in dual sign-off mode. Single-verdict mode records one
// combined sign-off.
type SignoffKind string

const (
	SignoffAutomated SignoffKind = "automated"
	SignoffHuman     SignoffKind = "human"
	SignoffCombined  SignoffKind = "combined"
)

// Severity levels for feedback items.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityMajor    Severity = "major"
	SeverityMinor    Severity = "minor"
)

// FeedbackItem is one structured, actionable finding attached to a
// rejection. Location, problem, and required fix are all mandatory;
// free-text rejections are refused at the gate boundary.
type FeedbackItem struct {
	Severity    Severity `json:"severity"`
	Location    string   `json:"location"`
	Problem     string   `json:"problem"`
	RequiredFix string   `json:"required_fix"`
}

// Validate checks the item is fully specified.
func (f FeedbackItem) Validate() error {
	switch f.Severity {
	case SeverityCritical, SeverityMajor, SeverityMinor:
	default:
		return fmt.Errorf("feedback severity %q: want critical, major, or minor", f.Severity)
	}
	if strings.TrimSpace(f.Location) == "" {
		return fmt.Errorf("feedback item missing location")
	}
	if strings.TrimSpace(f.Problem) == "" {
		return fmt.Errorf("feedback item missing problem")
	}
	if strings.TrimSpace(f.RequiredFix) == "" {
		return fmt.Errorf("feedback item missing required fix")
	}
	return nil
}

// Verdict is an immutable approve/reject decision recorded against one
// iteration. A later re-review produces a new verdict on a later
// iteration, never an amendment.
type Verdict struct {
	ID            string         `json:"id"` // uuid
	FeatureID     FeatureID      `json:"feature_id"`
	Workspace     Role           `json:"workspace"`
	IterationSeq  int            `json:"iteration_seq"`
	Signoff       SignoffKind    `json:"signoff"`
	Outcome       VerdictOutcome `json:"outcome"`
	ReviewerRole  Role           `json:"reviewer_role"`
	ReviewerHuman string         `json:"reviewer_human,omitempty"` // opaque external actor id
	Feedback      []FeedbackItem `json:"feedback,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// PhaseState is the derived lifecycle of one role's contribution to a
// feature. It is always computed from the document/verdict log, never
// stored, so it cannot drift from history.
type PhaseState string

const (
	PhaseNotStarted         PhaseState = "not_started"
	PhaseAwaitingWork       PhaseState = "awaiting_work"
	PhaseSubmittedForReview PhaseState = "submitted_for_review"
	PhaseRejected           PhaseState = "rejected"
	PhaseApproved           PhaseState = "approved"
)

// Terminal reports whether the phase can make no further transitions.
func (s PhaseState) Terminal() bool { return s == PhaseApproved }

// HandoffGrant is the registry's record that a target workspace may read
// a specific handoff document in a source workspace. Current marks the
// newest grant for a (source, target) pair; superseded grants stay in
// history.
type HandoffGrant struct {
	FeatureID  FeatureID `json:"feature_id"`
	SourceRole Role      `json:"source_role"`
	TargetRole Role      `json:"target_role"`
	HandoffSeq int       `json:"handoff_seq"`
	Current    bool      `json:"current"`
	GrantedAt  time.Time `json:"granted_at"`
}

// PhaseStatus is the snapshot view of one phase, derived by replaying
// the event log.
type PhaseStatus struct {
	Role            Role           `json:"role"`
	State           PhaseState     `json:"state"`
	Iterations      int            `json:"iterations"`
	LatestVerdicts  []Verdict      `json:"latest_verdicts,omitempty"` // verdicts on the latest iteration
	VisibleHandoffs []HandoffGrant `json:"visible_handoffs,omitempty"`
}

// FeatureStatusView is the full snapshot for a feature.
type FeatureStatusView struct {
	Feature Feature       `json:"feature"`
	Phases  []PhaseStatus `json:"phases"`
}

// EventKind tags entries in the replayed audit log.
type EventKind string

const (
	EventDocument EventKind = "document"
	EventVerdict  EventKind = "verdict"
)

// Event is one entry of a feature's ordered audit log. Exactly one of
// Document or Verdict is set, matching Kind.
type Event struct {
	Kind     EventKind `json:"kind"`
	Document *Document `json:"document,omitempty"`
	Verdict  *Verdict  `json:"verdict,omitempty"`
	At       time.Time `json:"at"`
}
