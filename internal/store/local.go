// Package store implements the append-only document store on SQLite.
//
// Everything the engine knows (features, workspaces, documents, verdicts,
// handoff grants) lives in one database. Documents and verdicts have no
// UPDATE or DELETE statements anywhere in this package; immutability is a
// property of the schema and the code, not a convention. Every append also
// writes an entry to the event_log table, so a feature's full history is one
// ordered scan.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"phasegate/internal/logging"
)

// LocalStore is the SQLite-backed document store. All access goes
// through the embedded mutex; sequence allocation happens inside a
// transaction so concurrent appends can never claim the same number.
type LocalStore struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string
}

// NewLocalStore opens (and if needed creates) the database at path.
// Use ":memory:" for tests.
func NewLocalStore(path string) (*LocalStore, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// The modernc driver is not safe for concurrent writers on one
	// connection pool without busy handling; the store serializes all
	// access anyway, so a single connection keeps :memory: coherent too.
	db.SetMaxOpenConns(1)

	s := &LocalStore{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logging.Get(logging.CategoryStore).Debugw("store opened", "path", path)
	return s, nil
}

// Close closes the underlying database.
func (s *LocalStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Path returns the database file path (":memory:" for ephemeral stores).
func (s *LocalStore) Path() string { return s.dbPath }

// initialize creates the required tables and runs pending migrations.
func (s *LocalStore) initialize() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS features (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			phase_sequence TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'not_started',
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS workspaces (
			feature_id TEXT NOT NULL,
			role_id TEXT NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (feature_id, role_id)
		)`,
		`CREATE TABLE IF NOT EXISTS documents (
			ref TEXT NOT NULL UNIQUE,
			feature_id TEXT NOT NULL,
			role_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			seq INTEGER NOT NULL,
			payload TEXT NOT NULL,
			author TEXT NOT NULL,
			source_iteration INTEGER NOT NULL DEFAULT 0,
			target_role TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			PRIMARY KEY (feature_id, role_id, kind, seq)
		)`,
		`CREATE TABLE IF NOT EXISTS verdicts (
			id TEXT PRIMARY KEY,
			feature_id TEXT NOT NULL,
			role_id TEXT NOT NULL,
			iteration_seq INTEGER NOT NULL,
			signoff TEXT NOT NULL,
			outcome TEXT NOT NULL,
			reviewer_role TEXT NOT NULL,
			reviewer_human TEXT NOT NULL DEFAULT '',
			feedback TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL,
			UNIQUE (feature_id, role_id, iteration_seq, signoff)
		)`,
		`CREATE TABLE IF NOT EXISTS handoff_grants (
			feature_id TEXT NOT NULL,
			source_role TEXT NOT NULL,
			target_role TEXT NOT NULL,
			handoff_seq INTEGER NOT NULL,
			current INTEGER NOT NULL DEFAULT 1,
			granted_at TEXT NOT NULL,
			UNIQUE (feature_id, source_role, target_role, handoff_seq)
		)`,
		`CREATE TABLE IF NOT EXISTS reissue_authorizations (
			feature_id TEXT NOT NULL,
			role_id TEXT NOT NULL,
			handoff_seq INTEGER NOT NULL,
			consumed INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS event_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			feature_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			ref TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_event_log_feature ON event_log(feature_id, id)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_ws ON documents(feature_id, role_id, kind, seq)`,
	}

	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return s.migrate()
}

// now returns the canonical stored timestamp.
func now() (time.Time, string) {
	t := time.Now().UTC()
	return t, t.Format(time.RFC3339Nano)
}

// parseTime parses a stored timestamp, tolerating second precision from
// older rows.
func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

// isUniqueViolation reports whether err is a SQLite UNIQUE/PRIMARY KEY
// constraint failure. The store holds its own lock, so this is a
// backstop for the identity-tuple invariant, not the primary guard.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: UNIQUE")
}
