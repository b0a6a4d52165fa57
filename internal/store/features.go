package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"phasegate/internal/logging"
	"phasegate/internal/types"
)

// CreateFeature persists a new feature record. The phase sequence is
// frozen here; nothing ever rewrites it.
func (s *LocalStore) CreateFeature(f types.Feature) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq, err := json.Marshal(f.PhaseSequence)
	if err != nil {
		return fmt.Errorf("failed to encode phase sequence: %w", err)
	}

	_, ts := now()
	_, err = s.db.Exec(
		`INSERT INTO features (id, title, phase_sequence, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		string(f.ID), f.Title, string(seq), string(f.Status), ts,
	)
	if isUniqueViolation(err) {
		return &types.ConflictError{
			Workspace: types.WorkspaceRef{FeatureID: f.ID},
			Detail:    "feature id already in use",
		}
	}
	if err != nil {
		return fmt.Errorf("failed to insert feature: %w", err)
	}

	logging.Get(logging.CategoryStore).Infow("feature created",
		"feature", f.ID, "phases", f.PhaseSequence)
	return nil
}

// GetFeature retrieves a feature by id.
func (s *LocalStore) GetFeature(id types.FeatureID) (*types.Feature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getFeatureLocked(id)
}

func (s *LocalStore) getFeatureLocked(id types.FeatureID) (*types.Feature, error) {
	row := s.db.QueryRow(
		`SELECT id, title, phase_sequence, status, created_at FROM features WHERE id = ?`,
		string(id),
	)

	var f types.Feature
	var seqJSON, createdAt string
	err := row.Scan(&f.ID, &f.Title, &seqJSON, &f.Status, &createdAt)
	if err == sql.ErrNoRows {
		return nil, &types.NotFoundError{What: "feature " + string(id)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query feature: %w", err)
	}

	if err := json.Unmarshal([]byte(seqJSON), &f.PhaseSequence); err != nil {
		return nil, fmt.Errorf("corrupt phase sequence for %s: %w", id, err)
	}
	f.CreatedAt = parseTime(createdAt)
	return &f, nil
}

// ListFeatures returns all features in creation order.
func (s *LocalStore) ListFeatures() ([]types.Feature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT id, title, phase_sequence, status, created_at FROM features ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list features: %w", err)
	}
	defer rows.Close()

	var features []types.Feature
	for rows.Next() {
		var f types.Feature
		var seqJSON, createdAt string
		if err := rows.Scan(&f.ID, &f.Title, &seqJSON, &f.Status, &createdAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(seqJSON), &f.PhaseSequence); err != nil {
			return nil, fmt.Errorf("corrupt phase sequence for %s: %w", f.ID, err)
		}
		f.CreatedAt = parseTime(createdAt)
		features = append(features, f)
	}
	return features, rows.Err()
}

// SetFeatureStatus updates the only mutable feature attribute.
func (s *LocalStore) SetFeatureStatus(id types.FeatureID, status types.FeatureStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`UPDATE features SET status = ? WHERE id = ?`, string(status), string(id))
	if err != nil {
		return fmt.Errorf("failed to update feature status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &types.NotFoundError{What: "feature " + string(id)}
	}

	logging.Get(logging.CategoryStore).Infow("feature status changed",
		"feature", id, "status", status)
	return nil
}

// CreateWorkspace records a workspace for a (feature, role) pair.
// A second call for the same pair fails with AlreadyExistsError.
func (s *LocalStore) CreateWorkspace(ws types.WorkspaceRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ts := now()
	_, err := s.db.Exec(
		`INSERT INTO workspaces (feature_id, role_id, created_at) VALUES (?, ?, ?)`,
		string(ws.FeatureID), string(ws.Role), ts,
	)
	if isUniqueViolation(err) {
		return &types.AlreadyExistsError{Workspace: ws}
	}
	if err != nil {
		return fmt.Errorf("failed to create workspace: %w", err)
	}

	logging.Get(logging.CategoryStore).Debugw("workspace created", "workspace", ws.String())
	return nil
}

// WorkspaceExists reports whether the workspace has been created.
func (s *LocalStore) WorkspaceExists(ws types.WorkspaceRef) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workspaceExistsLocked(ws)
}

func (s *LocalStore) workspaceExistsLocked(ws types.WorkspaceRef) (bool, error) {
	var one int
	err := s.db.QueryRow(
		`SELECT 1 FROM workspaces WHERE feature_id = ? AND role_id = ?`,
		string(ws.FeatureID), string(ws.Role),
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query workspace: %w", err)
	}
	return true, nil
}

// ListWorkspaces returns the workspaces created for a feature.
func (s *LocalStore) ListWorkspaces(id types.FeatureID) ([]types.WorkspaceRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT feature_id, role_id FROM workspaces WHERE feature_id = ? ORDER BY created_at, role_id`,
		string(id),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}
	defer rows.Close()

	var out []types.WorkspaceRef
	for rows.Next() {
		var ws types.WorkspaceRef
		if err := rows.Scan(&ws.FeatureID, &ws.Role); err != nil {
			return nil, err
		}
		out = append(out, ws)
	}
	return out, rows.Err()
}
