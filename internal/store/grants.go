package store

import (
	"database/sql"
	"fmt"

	"phasegate/internal/logging"
	"phasegate/internal/types"
)

// GrantHandoff records that target may read the given handoff document
// in source's workspace, and moves the (source, target) current pointer
// to it. Older grants stay in history with current = 0; their handoff
// documents remain independently readable.
func (s *LocalStore) GrantHandoff(g types.HandoffGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin grant: %w", err)
	}
	defer tx.Rollback()

	// Re-point: only the newest grant per (source, target) is current.
	_, err = tx.Exec(
		`UPDATE handoff_grants SET current = 0
		 WHERE feature_id = ? AND source_role = ? AND target_role = ?`,
		string(g.FeatureID), string(g.SourceRole), string(g.TargetRole),
	)
	if err != nil {
		return fmt.Errorf("failed to supersede grants: %w", err)
	}

	_, ts := now()
	_, err = tx.Exec(
		`INSERT INTO handoff_grants (feature_id, source_role, target_role, handoff_seq, current, granted_at)
		 VALUES (?, ?, ?, ?, 1, ?)`,
		string(g.FeatureID), string(g.SourceRole), string(g.TargetRole), g.HandoffSeq, ts,
	)
	if isUniqueViolation(err) {
		return &types.ConflictError{
			Workspace: types.WorkspaceRef{FeatureID: g.FeatureID, Role: g.SourceRole},
			Kind:      types.KindHandoff,
			Seq:       g.HandoffSeq,
			Detail:    "grant already recorded for this handoff",
		}
	}
	if err != nil {
		return fmt.Errorf("failed to insert grant: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit grant: %w", err)
	}

	logging.Get(logging.CategoryStore).Infow("handoff granted",
		"feature", g.FeatureID, "source", g.SourceRole, "target", g.TargetRole, "handoff_seq", g.HandoffSeq)
	return nil
}

// VisibleHandoffs returns the current grants visible to a target role
// within a feature.
func (s *LocalStore) VisibleHandoffs(id types.FeatureID, target types.Role) ([]types.HandoffGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visibleHandoffsLocked(id, target)
}

func (s *LocalStore) visibleHandoffsLocked(id types.FeatureID, target types.Role) ([]types.HandoffGrant, error) {
	rows, err := s.db.Query(
		`SELECT feature_id, source_role, target_role, handoff_seq, current, granted_at
		 FROM handoff_grants WHERE feature_id = ? AND target_role = ? AND current = 1
		 ORDER BY source_role`,
		string(id), string(target),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query grants: %w", err)
	}
	defer rows.Close()
	return scanGrants(rows)
}

// GrantHistory returns every grant ever recorded for a (source, target)
// pair, oldest first. Superseded grants are included; this is the
// revision audit trail.
func (s *LocalStore) GrantHistory(id types.FeatureID, source, target types.Role) ([]types.HandoffGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT feature_id, source_role, target_role, handoff_seq, current, granted_at
		 FROM handoff_grants WHERE feature_id = ? AND source_role = ? AND target_role = ?
		 ORDER BY handoff_seq`,
		string(id), string(source), string(target),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query grant history: %w", err)
	}
	defer rows.Close()
	return scanGrants(rows)
}

// HasGrant reports whether target currently holds any grant on source's
// workspace. This backs the registry's CanRead predicate.
func (s *LocalStore) HasGrant(id types.FeatureID, source, target types.Role) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var one int
	err := s.db.QueryRow(
		`SELECT 1 FROM handoff_grants
		 WHERE feature_id = ? AND source_role = ? AND target_role = ? AND current = 1
		 LIMIT 1`,
		string(id), string(source), string(target),
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query grant: %w", err)
	}
	return true, nil
}

func scanGrants(rows *sql.Rows) ([]types.HandoffGrant, error) {
	var out []types.HandoffGrant
	for rows.Next() {
		var g types.HandoffGrant
		var current int
		var grantedAt string
		if err := rows.Scan(&g.FeatureID, &g.SourceRole, &g.TargetRole, &g.HandoffSeq, &current, &grantedAt); err != nil {
			return nil, err
		}
		g.Current = current == 1
		g.GrantedAt = parseTime(grantedAt)
		out = append(out, g)
	}
	return out, rows.Err()
}
