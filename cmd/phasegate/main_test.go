package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"phasegate/internal/types"
)

func TestExitCodes(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&types.ConflictError{}, 2},
		{&types.AlreadyExistsError{}, 2},
		{&types.NotFoundError{}, 3},
		{&types.AccessDeniedError{}, 4},
		{&types.InvalidTransitionError{}, 5},
		{&types.InvalidGrantError{}, 5},
		{&types.StaleIterationError{}, 6},
		{&types.FeatureAbandonedError{}, 7},
		{io.EOF, 1},
		{fmt.Errorf("wrapped: %w", &types.StaleIterationError{}), 6},
	}
	for _, tc := range cases {
		if got := exitCode(tc.err); got != tc.want {
			t.Errorf("exitCode(%T) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestParseOutcome(t *testing.T) {
	for in, want := range map[string]types.VerdictOutcome{
		"approved": types.OutcomeApproved,
		"Approve":  types.OutcomeApproved,
		"rejected": types.OutcomeRejected,
		"REJECT":   types.OutcomeRejected,
	} {
		got, err := parseOutcome(in)
		if err != nil || got != want {
			t.Errorf("parseOutcome(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := parseOutcome("maybe"); err == nil {
		t.Error("parseOutcome accepted unknown outcome")
	}
}

func TestResolvePayloadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payload.md")
	if err := os.WriteFile(path, []byte("# interface"), 0644); err != nil {
		t.Fatal(err)
	}
	got, err := resolvePayload("ignored", path)
	if err != nil || got != "# interface" {
		t.Fatalf("resolvePayload = %q, %v", got, err)
	}
	got, err = resolvePayload("inline", "")
	if err != nil || got != "inline" {
		t.Fatalf("resolvePayload = %q, %v", got, err)
	}
}

// runCLI executes the root command against a shared temp database and
// returns captured output.
func runCLI(t *testing.T, db string, args ...string) (string, error) {
	t.Helper()

	// Persistent flag values survive between Execute calls; pin the
	// acting role back to its default unless the test overrides it.
	actingRole = string(types.RoleCoordinator)

	full := append([]string{"--db", db}, args...)
	rootCmd.SetArgs(full)

	var execErr error
	out := captureOutput(t, func() {
		execErr = rootCmd.Execute()
	})
	return out, execErr
}

func TestWorkflowRoundTrip(t *testing.T) {
	db := filepath.Join(t.TempDir(), "phasegate.db")

	out, err := runCLI(t, db, "create-feature", "tasks-001", "spec,build")
	if err != nil {
		t.Fatalf("create-feature: %v", err)
	}
	if !strings.Contains(out, "tasks-001") {
		t.Fatalf("unexpected output: %s", out)
	}

	if _, err := runCLI(t, db, "issue-request", "tasks-001", "spec", "write tests"); err != nil {
		t.Fatalf("issue-request: %v", err)
	}
	if _, err := runCLI(t, db, "--role", "spec", "submit-iteration", "tasks-001", "spec", "25 tests"); err != nil {
		t.Fatalf("submit-iteration: %v", err)
	}

	out, err = runCLI(t, db, "record-verdict", "tasks-001", "spec", "rejected",
		`[{"severity":"CRITICAL","location":"file:120","problem":"missing case","required_fix":"add test X"}]`)
	if err != nil {
		t.Fatalf("record-verdict: %v", err)
	}
	if !strings.Contains(out, string(types.PhaseRejected)) {
		t.Fatalf("expected rejected phase, got: %s", out)
	}

	if _, err := runCLI(t, db, "--role", "spec", "submit-iteration", "tasks-001", "spec", "27 tests"); err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	out, err = runCLI(t, db, "record-verdict", "tasks-001", "spec", "approved")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if !strings.Contains(out, string(types.PhaseApproved)) {
		t.Fatalf("expected approved phase, got: %s", out)
	}

	out, err = runCLI(t, db, "status", "tasks-001")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "spec") || !strings.Contains(out, "build") {
		t.Fatalf("status missing phases: %s", out)
	}

	out, err = runCLI(t, db, "log", "tasks-001")
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	if !strings.Contains(out, "iteration-01") || !strings.Contains(out, "iteration-02") {
		t.Fatalf("log missing iterations: %s", out)
	}
}

func TestRejectionRequiresFeedback(t *testing.T) {
	db := filepath.Join(t.TempDir(), "phasegate.db")

	mustRun := func(args ...string) {
		t.Helper()
		if _, err := runCLI(t, db, args...); err != nil {
			t.Fatalf("%v: %v", args, err)
		}
	}
	mustRun("create-feature", "tasks-001", "spec")
	mustRun("issue-request", "tasks-001", "spec", "write tests")
	mustRun("--role", "spec", "submit-iteration", "tasks-001", "spec", "25 tests")

	_, err := runCLI(t, db, "record-verdict", "tasks-001", "spec", "rejected")
	if err == nil {
		t.Fatal("rejection without feedback should fail")
	}
	if got := exitCode(err); got != 5 {
		t.Fatalf("exit code = %d, want 5", got)
	}
}

func TestIsolationDeniedViaCLI(t *testing.T) {
	db := filepath.Join(t.TempDir(), "phasegate.db")

	mustRun := func(args ...string) {
		t.Helper()
		if _, err := runCLI(t, db, args...); err != nil {
			t.Fatalf("%v: %v", args, err)
		}
	}
	mustRun("create-feature", "tasks-001", "spec,build")
	mustRun("issue-request", "tasks-001", "spec", "write tests")
	mustRun("--role", "spec", "submit-iteration", "tasks-001", "spec", "secret")

	_, err := runCLI(t, db, "--role", "build", "show", "tasks-001", "spec", "iteration", "1")
	if err == nil {
		t.Fatal("cross-workspace read should be denied")
	}
	if got := exitCode(err); got != 4 {
		t.Fatalf("exit code = %d, want 4", got)
	}
}

func captureOutput(t *testing.T, fn func()) string {
	t.Helper()

	origOut := os.Stdout
	origErr := os.Stderr
	rOut, wOut, _ := os.Pipe()
	rErr, wErr, _ := os.Pipe()
	os.Stdout = wOut
	os.Stderr = wErr

	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, rOut)
		_, _ = io.Copy(&buf, rErr)
		done <- buf.String()
	}()

	fn()

	_ = wOut.Close()
	_ = wErr.Close()
	os.Stdout = origOut
	os.Stderr = origErr
	return <-done
}
