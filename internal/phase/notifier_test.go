package phase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"phasegate/internal/types"
)

func TestNotifierDeliversStateChanges(t *testing.T) {
	defer goleak.VerifyNone(t)

	n := NewNotifier()
	defer n.Close()

	ch, cancel := n.Subscribe()
	defer cancel()

	n.publish(StateChange{
		Workspace: types.WorkspaceRef{FeatureID: "tasks-001", Role: "spec"},
		From:      types.PhaseNotStarted,
		To:        types.PhaseAwaitingWork,
	})

	select {
	case c := <-ch:
		require.Equal(t, types.PhaseAwaitingWork, c.To)
		require.False(t, c.At.IsZero())
	case <-time.After(time.Second):
		t.Fatal("no state change delivered")
	}
}

func TestNotifierCancelIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	n := NewNotifier()
	ch, cancel := n.Subscribe()
	cancel()
	cancel()

	// Channel is closed after cancel; publish must not panic.
	n.publish(StateChange{To: types.PhaseAwaitingWork})
	_, open := <-ch
	require.False(t, open)

	n.Close()
	n.Close()
}

func TestNotifierSlowSubscriberDoesNotBlock(t *testing.T) {
	defer goleak.VerifyNone(t)

	n := NewNotifier()
	defer n.Close()

	_, cancel := n.Subscribe()
	defer cancel()

	// Nobody drains; publishing far past the buffer must return.
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*4; i++ {
			n.publish(StateChange{To: types.PhaseSubmittedForReview})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestMachinePublishesTransitions(t *testing.T) {
	m, _ := newMachine(t)

	ch, cancel := m.notifier.Subscribe()
	defer cancel()

	_, err := m.IssueRequest(types.RoleCoordinator, ws("spec"), "write tests")
	require.NoError(t, err)
	_, err = m.SubmitIteration("spec", ws("spec"), "v1")
	require.NoError(t, err)

	want := []types.PhaseState{types.PhaseAwaitingWork, types.PhaseSubmittedForReview}
	for _, to := range want {
		select {
		case c := <-ch:
			require.Equal(t, to, c.To)
		case <-time.After(time.Second):
			t.Fatalf("missing transition to %s", to)
		}
	}
}
