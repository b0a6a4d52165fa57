package phase

import (
	"sync"
	"time"

	"phasegate/internal/types"
)

// StateChange is published whenever a workspace's derived phase state
// moves. Waiting for review is an observable state, not a blocking
// call: callers poll State or subscribe here.
type StateChange struct {
	Workspace types.WorkspaceRef
	From      types.PhaseState
	To        types.PhaseState
	At        time.Time
}

// Notifier fans state changes out to subscribers. Publishing never
// blocks; a subscriber that falls more than subscriberBuffer events
// behind misses the overflow and should re-derive state from the log.
type Notifier struct {
	mu     sync.Mutex
	subs   map[int]chan StateChange
	next   int
	closed bool
}

const subscriberBuffer = 16

// NewNotifier creates an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[int]chan StateChange)}
}

// Subscribe registers a listener. The returned cancel func must be
// called to release the channel; it is idempotent.
func (n *Notifier) Subscribe() (<-chan StateChange, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.next
	n.next++
	ch := make(chan StateChange, subscriberBuffer)
	if n.closed {
		close(ch)
		return ch, func() {}
	}
	n.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			if sub, ok := n.subs[id]; ok {
				delete(n.subs, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

func (n *Notifier) publish(c StateChange) {
	c.At = time.Now().UTC()

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	for _, ch := range n.subs {
		select {
		case ch <- c:
		default:
			// Slow subscriber; it re-derives state when it catches up.
		}
	}
}

// Close closes all subscriber channels. Further publishes are dropped.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	for id, ch := range n.subs {
		delete(n.subs, id)
		close(ch)
	}
}
