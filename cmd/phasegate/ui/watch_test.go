package ui

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"phasegate/internal/types"
)

func TestSimpleTableRendersRows(t *testing.T) {
	tbl := NewSimpleTable("Phases", []string{"Phase", "State"})
	tbl.AddRow("spec", "approved")
	tbl.AddRow("build", "awaiting_work")

	out := tbl.View(DefaultStyles())
	for _, want := range []string{"Phases", "spec", "approved", "build"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}
}

func TestSimpleTableEmpty(t *testing.T) {
	tbl := NewSimpleTable("Phases", []string{"Phase"})
	if out := tbl.View(DefaultStyles()); out != "" {
		t.Errorf("empty table rendered %q", out)
	}
}

func TestWatchModelRefreshUpdatesView(t *testing.T) {
	view := &types.FeatureStatusView{
		Feature: types.Feature{ID: "tasks-001", Status: types.FeatureInProgress},
		Phases: []types.PhaseStatus{
			{Role: "spec", State: types.PhaseApproved, Iterations: 2},
			{Role: "build", State: types.PhaseAwaitingWork},
		},
	}
	fetch := func() (*types.FeatureStatusView, error) { return view, nil }

	dir := t.TempDir()
	m, err := NewWatchModel(fetch, filepath.Join(dir, "phasegate.db"))
	if err != nil {
		t.Fatalf("NewWatchModel: %v", err)
	}
	defer m.watcher.Close()

	msg := m.refresh()()
	updated, _ := m.Update(msg)
	m = updated.(*WatchModel)

	out := m.View()
	for _, want := range []string{"tasks-001", "spec", "build"} {
		if !strings.Contains(out, want) {
			t.Errorf("view missing %q:\n%s", want, out)
		}
	}
	if m.updated.IsZero() {
		t.Error("refresh should stamp the update time")
	}
}

func TestWatchModelQuitClosesWatcher(t *testing.T) {
	fetch := func() (*types.FeatureStatusView, error) {
		return &types.FeatureStatusView{}, nil
	}
	m, err := NewWatchModel(fetch, filepath.Join(t.TempDir(), "phasegate.db"))
	if err != nil {
		t.Fatalf("NewWatchModel: %v", err)
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("expected quit command")
	}

	// The closed watcher ends the blocking wait instead of leaking it.
	done := make(chan struct{})
	go func() {
		m.waitForChange()()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("waitForChange did not return after close")
	}
}

func TestPhaseRowsFormatting(t *testing.T) {
	rows := phaseRows([]types.PhaseStatus{
		{
			Role: "spec", State: types.PhaseRejected, Iterations: 3,
			LatestVerdicts: []types.Verdict{{Signoff: types.SignoffCombined, Outcome: types.OutcomeRejected}},
			VisibleHandoffs: []types.HandoffGrant{{}},
		},
	}, DefaultStyles())
	if len(rows) != 1 {
		t.Fatalf("rows = %d", len(rows))
	}
	if rows[0][2] != "3" || rows[0][4] != "1" {
		t.Errorf("row = %v", rows[0])
	}
	if !strings.Contains(rows[0][3], "combined:rejected") {
		t.Errorf("verdict cell = %q", rows[0][3])
	}
}
