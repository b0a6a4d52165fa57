package store

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"phasegate/internal/logging"
	"phasegate/internal/types"
)

// AppendRequest appends the request document for a workspace. A phase
// gets exactly one request; a second append fails with ConflictError
// unless a handoff revision has authorized a re-issue, in which case the
// authorization is consumed and the new request appended at the next
// sequence number.
func (s *LocalStore) AppendRequest(ws types.WorkspaceRef, payload string, author types.Role) (*types.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.latestLocked(ws, types.KindRequest)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		authorized, err := s.consumeReissueLocked(ws)
		if err != nil {
			return nil, err
		}
		if !authorized {
			return nil, &types.ConflictError{
				Workspace: ws,
				Kind:      types.KindRequest,
				Detail:    "request already issued and no re-issue authorized",
			}
		}
	}

	return s.appendLocked(ws, types.KindRequest, 0, payload, author, 0, "")
}

// AppendIteration appends the next iteration for a workspace. Sequence
// allocation is atomic under the store lock and backed by the schema's
// identity-tuple constraint.
func (s *LocalStore) AppendIteration(ws types.WorkspaceRef, payload string, author types.Role) (*types.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(ws, types.KindIteration, 0, payload, author, 0, "")
}

// AppendIterationAt appends an iteration at an explicit sequence number.
// A taken number fails with ConflictError; the caller observed a stale
// maximum and must retry at the next free number.
func (s *LocalStore) AppendIterationAt(ws types.WorkspaceRef, seq int, payload string, author types.Role) (*types.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq < 1 {
		return nil, fmt.Errorf("iteration sequence must be >= 1, got %d", seq)
	}
	return s.appendLocked(ws, types.KindIteration, seq, payload, author, 0, "")
}

// AppendHandoff appends the next handoff document into the source
// workspace, recording the exposed iteration and target role.
func (s *LocalStore) AppendHandoff(ws types.WorkspaceRef, payload string, author types.Role, sourceIteration int, target types.Role) (*types.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(ws, types.KindHandoff, 0, payload, author, sourceIteration, target)
}

// appendLocked inserts a document and its event-log entry in one
// transaction. seq 0 means "allocate MAX+1".
func (s *LocalStore) appendLocked(ws types.WorkspaceRef, kind types.DocKind, seq int, payload string, author types.Role, sourceIteration int, target types.Role) (*types.Document, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin append: %w", err)
	}
	defer tx.Rollback()

	if seq == 0 {
		err = tx.QueryRow(
			`SELECT COALESCE(MAX(seq), 0) + 1 FROM documents WHERE feature_id = ? AND role_id = ? AND kind = ?`,
			string(ws.FeatureID), string(ws.Role), string(kind),
		).Scan(&seq)
		if err != nil {
			return nil, fmt.Errorf("failed to allocate sequence: %w", err)
		}
	}

	doc := &types.Document{
		Ref:             uuid.NewString(),
		FeatureID:       ws.FeatureID,
		Workspace:       ws.Role,
		Kind:            kind,
		Seq:             seq,
		Payload:         payload,
		Author:          author,
		SourceIteration: sourceIteration,
		TargetRole:      target,
	}
	t, ts := now()
	doc.CreatedAt = t

	_, err = tx.Exec(
		`INSERT INTO documents (ref, feature_id, role_id, kind, seq, payload, author, source_iteration, target_role, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.Ref, string(doc.FeatureID), string(doc.Workspace), string(doc.Kind), doc.Seq,
		doc.Payload, string(doc.Author), doc.SourceIteration, string(doc.TargetRole), ts,
	)
	if isUniqueViolation(err) {
		return nil, &types.ConflictError{Workspace: ws, Kind: kind, Seq: seq, Detail: "sequence number already claimed"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert document: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO event_log (feature_id, kind, ref, created_at) VALUES (?, ?, ?, ?)`,
		string(ws.FeatureID), string(types.EventDocument), doc.Ref, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to log append: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit append: %w", err)
	}

	logging.Get(logging.CategoryStore).Debugw("document appended",
		"workspace", ws.String(), "kind", kind, "seq", seq, "bytes", len(payload))
	return doc, nil
}

// GetDocument retrieves one document by its identity tuple.
func (s *LocalStore) GetDocument(ws types.WorkspaceRef, kind types.DocKind, seq int) (*types.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(
		`SELECT ref, feature_id, role_id, kind, seq, payload, author, source_iteration, target_role, created_at
		 FROM documents WHERE feature_id = ? AND role_id = ? AND kind = ? AND seq = ?`,
		string(ws.FeatureID), string(ws.Role), string(kind), seq,
	)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, &types.NotFoundError{What: fmt.Sprintf("%s %s %d in %s", kind, "document", seq, ws)}
	}
	return doc, err
}

// GetDocumentByRef retrieves one document by its opaque ref token.
func (s *LocalStore) GetDocumentByRef(ref string) (*types.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.documentByRefLocked(ref)
}

func (s *LocalStore) documentByRefLocked(ref string) (*types.Document, error) {
	row := s.db.QueryRow(
		`SELECT ref, feature_id, role_id, kind, seq, payload, author, source_iteration, target_role, created_at
		 FROM documents WHERE ref = ?`, ref,
	)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, &types.NotFoundError{What: "document " + ref}
	}
	return doc, err
}

// LatestDocument returns the highest-sequence document of a kind, or
// nil when none exists.
func (s *LocalStore) LatestDocument(ws types.WorkspaceRef, kind types.DocKind) (*types.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latestLocked(ws, kind)
}

func (s *LocalStore) latestLocked(ws types.WorkspaceRef, kind types.DocKind) (*types.Document, error) {
	row := s.db.QueryRow(
		`SELECT ref, feature_id, role_id, kind, seq, payload, author, source_iteration, target_role, created_at
		 FROM documents WHERE feature_id = ? AND role_id = ? AND kind = ?
		 ORDER BY seq DESC LIMIT 1`,
		string(ws.FeatureID), string(ws.Role), string(kind),
	)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return doc, err
}

// ListDocuments returns all documents of a kind in sequence order.
func (s *LocalStore) ListDocuments(ws types.WorkspaceRef, kind types.DocKind) ([]types.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT ref, feature_id, role_id, kind, seq, payload, author, source_iteration, target_role, created_at
		 FROM documents WHERE feature_id = ? AND role_id = ? AND kind = ? ORDER BY seq`,
		string(ws.FeatureID), string(ws.Role), string(kind),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []types.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// CountIterations returns the number of iterations in a workspace.
func (s *LocalStore) CountIterations(ws types.WorkspaceRef) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM documents WHERE feature_id = ? AND role_id = ? AND kind = ?`,
		string(ws.FeatureID), string(ws.Role), string(types.KindIteration),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count iterations: %w", err)
	}
	return n, nil
}

// AuthorizeReissue records that a handoff revision permits one new
// request to be issued into the given workspace even though a request
// already exists.
func (s *LocalStore) AuthorizeReissue(ws types.WorkspaceRef, handoffSeq int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ts := now()
	_, err := s.db.Exec(
		`INSERT INTO reissue_authorizations (feature_id, role_id, handoff_seq, consumed, created_at) VALUES (?, ?, ?, 0, ?)`,
		string(ws.FeatureID), string(ws.Role), handoffSeq, ts,
	)
	if err != nil {
		return fmt.Errorf("failed to authorize re-issue: %w", err)
	}

	logging.Get(logging.CategoryStore).Debugw("request re-issue authorized",
		"workspace", ws.String(), "handoff_seq", handoffSeq)
	return nil
}

// consumeReissueLocked consumes one outstanding re-issue authorization,
// reporting whether one existed.
func (s *LocalStore) consumeReissueLocked(ws types.WorkspaceRef) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE reissue_authorizations SET consumed = 1
		 WHERE rowid IN (
			SELECT rowid FROM reissue_authorizations
			WHERE feature_id = ? AND role_id = ? AND consumed = 0
			ORDER BY rowid LIMIT 1
		 )`,
		string(ws.FeatureID), string(ws.Role),
	)
	if err != nil {
		return false, fmt.Errorf("failed to consume re-issue authorization: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// scanner matches *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(sc scanner) (*types.Document, error) {
	var doc types.Document
	var createdAt string
	err := sc.Scan(&doc.Ref, &doc.FeatureID, &doc.Workspace, &doc.Kind, &doc.Seq,
		&doc.Payload, &doc.Author, &doc.SourceIteration, &doc.TargetRole, &createdAt)
	if err != nil {
		return nil, err
	}
	doc.CreatedAt = parseTime(createdAt)
	return &doc, nil
}
