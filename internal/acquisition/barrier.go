package acquisition

import (
	"sync"
	"time"
)

// Barrier is the TOP-first barrier of spec.md §4.3: a latched condition
// that fires exactly once per reconfiguration cycle, replacing the
// original source's ad-hoc "broadcast once when ready" with an explicit,
// reusable happens-before edge. Grounded on the reply-channel idiom of
// jangala-dev-devicecode-go/bus/bus.go's Connection.RequestWait (a
// channel closed exactly once to broadcast completion to any number of
// waiters) rather than sync.Cond, since a channel gives Wait a timeout
// for free via select.
type Barrier struct {
	mu sync.Mutex
	ch chan struct{}
}

func NewBarrier() *Barrier {
	return &Barrier{ch: make(chan struct{})}
}

// Reset re-arms the barrier for the next reconfiguration cycle.
func (b *Barrier) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ch = make(chan struct{})
}

// Fire latches the barrier open, releasing every current and future
// Wait call until the next Reset. Safe to call more than once per cycle.
func (b *Barrier) Fire() {
	b.mu.Lock()
	defer b.mu.Unlock()
	select {
	case <-b.ch:
	default:
		close(b.ch)
	}
}

// Wait blocks until Fire or timeout, returning false on timeout (spec.md
// §4.3: "Timeout: 10s; on timeout, Tuner2 proceeds with a warning").
func (b *Barrier) Wait(timeout time.Duration) bool {
	b.mu.Lock()
	ch := b.ch
	b.mu.Unlock()
	select {
	case <-ch:
		return true
	case <-time.After(timeout):
		return false
	}
}
