package mandelring

import (
	"sync"
)

// Gate is one binary permission slot of an OrderRing.
//
// A gate is either open or closed. Acquire waits for it to be open and closes it again in the same
// atomic step, so two callers can never both be granted the same opening. Release opens it and
// lets exactly one current or future Acquire through. Releasing a gate that is already open is a
// protocol violation and returns a *ConsistencyError.
//
// Abort poisons the gate for teardown: every blocked and future Acquire or Release returns
// ErrAborted. It exists so that a fatal error in one worker doesn't leave the others parked
// forever; it does not interrupt computation.
type Gate interface {
	Acquire() error
	Release() error
	Abort()
}

// condGate is a Gate built from a mutex, a condition variable and an explicit open flag. The flag
// is what makes it immune to lost wake-ups: a Release that happens before anyone waits is recorded
// in the flag, not in the signal.
type condGate struct {
	mu      sync.Mutex
	cond    sync.Cond
	open    bool
	aborted bool
}

func newCondGate(open bool) *condGate {
	g := &condGate{open: open}
	g.cond.L = &g.mu
	return g
}

func (g *condGate) Acquire() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for !g.open && !g.aborted {
		g.cond.Wait()
	}
	if g.aborted {
		return ErrAborted
	}
	g.open = false
	return nil
}

func (g *condGate) Release() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.aborted {
		return ErrAborted
	} else if g.open {
		return consistencyErrorf(nil, "release of a gate that is already open")
	}
	g.open = true
	g.cond.Signal()
	return nil
}

func (g *condGate) Abort() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.aborted = true
	g.cond.Broadcast()
}

// semGate is a Gate built from a channel with capacity one, used as a binary semaphore: a token in
// the channel means open.
type semGate struct {
	token     chan struct{}
	abortOnce sync.Once
	aborted   chan struct{}
}

func newSemGate(open bool) *semGate {
	g := &semGate{
		token:   make(chan struct{}, 1),
		aborted: make(chan struct{}),
	}
	if open {
		g.token <- struct{}{}
	}
	return g
}

func (g *semGate) Acquire() error {
	// prefer reporting the abort over taking a token that happens to be there
	if isClosed(g.aborted) {
		return ErrAborted
	}

	select {
	case <-g.token:
		return nil
	case <-g.aborted:
		return ErrAborted
	}
}

func (g *semGate) Release() error {
	if isClosed(g.aborted) {
		return ErrAborted
	}

	select {
	case g.token <- struct{}{}:
		return nil
	default:
		return consistencyErrorf(nil, "release of a gate that is already open")
	}
}

func (g *semGate) Abort() {
	g.abortOnce.Do(func() { close(g.aborted) })
}

func isClosed(c <-chan struct{}) bool {
	select {
	case <-c:
		return true
	default:
		return false
	}
}
