package transport

import (
	"sync"

	"veilchat/internal/domain"
)

// stateTracker serialises connection-state transitions and fans them out to
// the registered observer. Both channel variants embed one.
type stateTracker struct {
	mu      sync.Mutex
	state   domain.ConnectionState
	onState func(domain.ConnectionState)
}

func (t *stateTracker) set(st domain.ConnectionState) {
	t.mu.Lock()
	if t.state == st {
		t.mu.Unlock()
		return
	}
	t.state = st
	fn := t.onState
	t.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}

func (t *stateTracker) get() domain.ConnectionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *stateTracker) observe(fn func(domain.ConnectionState)) {
	t.mu.Lock()
	t.onState = fn
	t.mu.Unlock()
}
