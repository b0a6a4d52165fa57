package store

import (
	"fmt"

	"phasegate/internal/types"
)

// EventLog replays a feature's full ordered history: every document
// append and every verdict, in the order the store committed them. The
// status snapshot is derived purely from this log, so every rejection
// and its reasoning stays inspectable forever.
func (s *LocalStore) EventLog(id types.FeatureID) ([]types.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT kind, ref, created_at FROM event_log WHERE feature_id = ? ORDER BY id`,
		string(id),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query event log: %w", err)
	}

	type entry struct {
		kind string
		ref  string
		at   string
	}
	var entries []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.kind, &e.ref, &e.at); err != nil {
			rows.Close()
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	var events []types.Event
	for _, e := range entries {
		ev := types.Event{Kind: types.EventKind(e.kind), At: parseTime(e.at)}
		switch ev.Kind {
		case types.EventDocument:
			doc, err := s.documentByRefLocked(e.ref)
			if err != nil {
				return nil, fmt.Errorf("event log references missing document %s: %w", e.ref, err)
			}
			ev.Document = doc
		case types.EventVerdict:
			v, err := s.verdictByIDLocked(e.ref)
			if err != nil {
				return nil, fmt.Errorf("event log references missing verdict %s: %w", e.ref, err)
			}
			ev.Verdict = v
		default:
			return nil, fmt.Errorf("event log contains unknown kind %q", e.kind)
		}
		events = append(events, ev)
	}
	return events, nil
}
