// Versioned schema migrations. The base schema in local.go is created
// fresh; migrations upgrade databases written by earlier releases.
//
// Schema versions:
// v1: features, workspaces, documents, verdicts, handoff_grants, event_log
// v2: reviewer_human column on verdicts; reissue_authorizations table
package store

import (
	"fmt"

	"phasegate/internal/logging"
)

// CurrentSchemaVersion is the version new databases are stamped with.
const CurrentSchemaVersion = 2

// migration adds a column to an existing table when upgrading.
type migration struct {
	Table  string
	Column string
	Def    string
}

var pendingMigrations = []migration{
	{"verdicts", "reviewer_human", "TEXT NOT NULL DEFAULT ''"},
}

// migrate stamps new databases and upgrades old ones.
func (s *LocalStore) migrate() error {
	var version int
	err := s.db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	if err != nil {
		// Fresh database: stamp and return.
		if _, err := s.db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, CurrentSchemaVersion); err != nil {
			return fmt.Errorf("failed to stamp schema version: %w", err)
		}
		return nil
	}

	if version >= CurrentSchemaVersion {
		return nil
	}

	log := logging.Get(logging.CategoryStore)
	log.Infow("migrating schema", "from", version, "to", CurrentSchemaVersion)

	for _, m := range pendingMigrations {
		if s.columnExists(m.Table, m.Column) {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Def)
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %s.%s failed: %w", m.Table, m.Column, err)
		}
		log.Debugw("added column", "table", m.Table, "column", m.Column)
	}

	if _, err := s.db.Exec(`UPDATE schema_version SET version = ?`, CurrentSchemaVersion); err != nil {
		return fmt.Errorf("failed to update schema version: %w", err)
	}
	return nil
}

// columnExists checks table metadata for a column.
func (s *LocalStore) columnExists(table, column string) bool {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt any
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			continue
		}
		if name == column {
			return true
		}
	}
	return false
}
