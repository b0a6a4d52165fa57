package store

import (
	"encoding/json"
	"fmt"

	"phasegate/internal/logging"
	"phasegate/internal/types"
)

// InsertVerdict persists a verdict against one iteration. The schema's
// UNIQUE constraint on (feature, role, iteration, signoff) makes a
// duplicate sub-verdict a ConflictError. Verdicts are never updated or
// deleted.
func (s *LocalStore) InsertVerdict(v types.Verdict) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	feedback, err := json.Marshal(v.Feedback)
	if err != nil {
		return fmt.Errorf("failed to encode feedback: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin verdict insert: %w", err)
	}
	defer tx.Rollback()

	_, ts := now()
	_, err = tx.Exec(
		`INSERT INTO verdicts (id, feature_id, role_id, iteration_seq, signoff, outcome, reviewer_role, reviewer_human, feedback, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, string(v.FeatureID), string(v.Workspace), v.IterationSeq, string(v.Signoff),
		string(v.Outcome), string(v.ReviewerRole), v.ReviewerHuman, string(feedback), ts,
	)
	if isUniqueViolation(err) {
		ws := types.WorkspaceRef{FeatureID: v.FeatureID, Role: v.Workspace}
		return &types.ConflictError{
			Workspace: ws,
			Kind:      types.KindIteration,
			Seq:       v.IterationSeq,
			Detail:    fmt.Sprintf("%s verdict already recorded for this iteration", v.Signoff),
		}
	}
	if err != nil {
		return fmt.Errorf("failed to insert verdict: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO event_log (feature_id, kind, ref, created_at) VALUES (?, ?, ?, ?)`,
		string(v.FeatureID), string(types.EventVerdict), v.ID, ts,
	)
	if err != nil {
		return fmt.Errorf("failed to log verdict: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit verdict: %w", err)
	}

	logging.Get(logging.CategoryStore).Infow("verdict recorded",
		"feature", v.FeatureID, "workspace", v.Workspace,
		"iteration", v.IterationSeq, "signoff", v.Signoff, "outcome", v.Outcome)
	return nil
}

// VerdictsForIteration returns all sub-verdicts recorded against one
// iteration, in recording order.
func (s *LocalStore) VerdictsForIteration(ws types.WorkspaceRef, seq int) ([]types.Verdict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verdictsForIterationLocked(ws, seq)
}

func (s *LocalStore) verdictsForIterationLocked(ws types.WorkspaceRef, seq int) ([]types.Verdict, error) {
	rows, err := s.db.Query(
		`SELECT id, feature_id, role_id, iteration_seq, signoff, outcome, reviewer_role, reviewer_human, feedback, created_at
		 FROM verdicts WHERE feature_id = ? AND role_id = ? AND iteration_seq = ?
		 ORDER BY created_at, id`,
		string(ws.FeatureID), string(ws.Role), seq,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query verdicts: %w", err)
	}
	defer rows.Close()

	var out []types.Verdict
	for rows.Next() {
		v, err := scanVerdict(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

// verdictByIDLocked fetches one verdict by uuid, for event-log replay.
func (s *LocalStore) verdictByIDLocked(id string) (*types.Verdict, error) {
	row := s.db.QueryRow(
		`SELECT id, feature_id, role_id, iteration_seq, signoff, outcome, reviewer_role, reviewer_human, feedback, created_at
		 FROM verdicts WHERE id = ?`, id,
	)
	return scanVerdict(row)
}

func scanVerdict(sc scanner) (*types.Verdict, error) {
	var v types.Verdict
	var feedback, createdAt string
	err := sc.Scan(&v.ID, &v.FeatureID, &v.Workspace, &v.IterationSeq, &v.Signoff,
		&v.Outcome, &v.ReviewerRole, &v.ReviewerHuman, &feedback, &createdAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(feedback), &v.Feedback); err != nil {
		return nil, fmt.Errorf("corrupt feedback for verdict %s: %w", v.ID, err)
	}
	v.CreatedAt = parseTime(createdAt)
	return &v, nil
}
