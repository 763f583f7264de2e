package mandelring

import (
	"fmt"
	"sync/atomic"
)

// Layout of an order ring inside a SharedArena. Every word gets its own cache line so that workers
// spinning through CAS on neighbouring gates don't false-share.
const (
	cacheLine       = 64
	ringSizeOffset  = 0 // uint32: number of gates, checked on attach
	ringAbortOffset = 4 // uint32: non-zero once the ring is aborted
)

// states of a gate word
const (
	futexClosed  uint32 = 0
	futexOpen    uint32 = 1
	futexAborted uint32 = 2
)

func gateOffset(slot int) int {
	return (slot + 1) * cacheLine
}

// SharedRingSize returns the arena bytes needed to host a ring of n gates.
func SharedRingSize(n int) int {
	return gateOffset(n)
}

// OrderRing is a fixed ring of N gates that passes a single write permission around in row order.
//
// Exactly one gate is open at any time, and it is the gate of the smallest row not yet emitted:
// slot 0 is open from construction, a worker only acquires slot r mod N right before emitting row
// r, and only releases slot (r+1) mod N right after. Because rows are striped (see RowAssigner), the
// worker that owns row r+1 is the one that waits on that slot.
//
// The ring never polices which row a caller is about to emit; Worker does that.
type OrderRing struct {
	gates []Gate

	aborted   atomic.Bool
	abortWord *uint32 // shared flag, nil for in-process gates

	// private arena backing futex gates of a thread-topology ring, closed by Close
	ownArena *SharedArena
}

// NewOrderRing builds a ring of n in-process gates of the given kind. GateFutex gates are hosted in
// a private arena, released by Close.
func NewOrderRing(n int, kind GateKind) (*OrderRing, error) {
	if n <= 0 {
		return nil, &ArgumentError{Field: "ring size", Msg: fmt.Sprintf("must be positive, got %d", n)}
	}

	switch kind {
	case GateDefault, GateCond:
		return newLocalRing(n, func(open bool) Gate { return newCondGate(open) }), nil
	case GateSemaphore:
		return newLocalRing(n, func(open bool) Gate { return newSemGate(open) }), nil
	case GateFutex:
		arena, err := CreateArena(SharedRingSize(n))
		if err != nil {
			return nil, err
		}
		r, err := NewSharedOrderRing(arena, n)
		if err != nil {
			_ = arena.Close()
			return nil, err
		}
		r.ownArena = arena
		return r, nil
	default:
		return nil, &ArgumentError{Field: "gate", Msg: kind.String()}
	}
}

func newLocalRing(n int, newGate func(open bool) Gate) *OrderRing {
	gates := make([]Gate, n)
	for i := range gates {
		gates[i] = newGate(i == 0)
	}
	return &OrderRing{gates: gates}
}

// NewSharedOrderRing initializes a ring of n futex gates inside arena: slot 0 open, every other
// slot closed. It must run before any process that will attach to the arena is spawned, so there is
// never a window where a release could precede the matching wait.
func NewSharedOrderRing(arena *SharedArena, n int) (*OrderRing, error) {
	if err := checkArenaFits(arena, n); err != nil {
		return nil, err
	}

	atomic.StoreUint32(arena.Word(ringAbortOffset), 0)
	for i := 0; i < n; i++ {
		state := futexClosed
		if i == 0 {
			state = futexOpen
		}
		atomic.StoreUint32(arena.Word(gateOffset(i)), state)
	}
	atomic.StoreUint32(arena.Word(ringSizeOffset), uint32(n))

	return attach(arena, n), nil
}

// AttachSharedOrderRing returns a view of a ring previously set up with NewSharedOrderRing, from a
// process that mapped the same arena. It never modifies gate state.
func AttachSharedOrderRing(arena *SharedArena, n int) (*OrderRing, error) {
	if err := checkArenaFits(arena, n); err != nil {
		return nil, err
	}
	if got := atomic.LoadUint32(arena.Word(ringSizeOffset)); got != uint32(n) {
		return nil, consistencyErrorf(nil, "arena hosts a ring of %d gates, expected %d", got, n)
	}
	return attach(arena, n), nil
}

func checkArenaFits(arena *SharedArena, n int) error {
	if n <= 0 {
		return &ArgumentError{Field: "ring size", Msg: fmt.Sprintf("must be positive, got %d", n)}
	}
	if arena.Len() < SharedRingSize(n) {
		return &ArgumentError{
			Field: "arena size",
			Msg:   fmt.Sprintf("%d bytes cannot host %d gates", arena.Len(), n),
		}
	}
	return nil
}

func attach(arena *SharedArena, n int) *OrderRing {
	gates := make([]Gate, n)
	for i := range gates {
		gates[i] = newFutexGate(arena.Word(gateOffset(i)))
	}
	return &OrderRing{gates: gates, abortWord: arena.Word(ringAbortOffset)}
}

// Size returns the number of gates.
func (r *OrderRing) Size() int {
	return len(r.gates)
}

// Slot returns the gate index guarding row.
func (r *OrderRing) Slot(row int) int {
	return row % len(r.gates)
}

// Acquire blocks until slot holds the permission, and takes it.
func (r *OrderRing) Acquire(slot int) error {
	if slot < 0 || slot >= len(r.gates) {
		return consistencyErrorf(nil, "acquire of slot %d in a ring of %d", slot, len(r.gates))
	}
	return r.gates[slot].Acquire()
}

// Release hands the permission to slot.
func (r *OrderRing) Release(slot int) error {
	if slot < 0 || slot >= len(r.gates) {
		return consistencyErrorf(nil, "release of slot %d in a ring of %d", slot, len(r.gates))
	}
	return r.gates[slot].Release()
}

// Abort poisons every gate; all blocked and future Acquire and Release calls fail with ErrAborted.
// For a shared ring this reaches every attached process.
func (r *OrderRing) Abort() {
	r.aborted.Store(true)
	if r.abortWord != nil {
		atomic.StoreUint32(r.abortWord, 1)
	}
	for _, g := range r.gates {
		g.Abort()
	}
}

// Aborted reports whether Abort has been called on this ring, from any process.
func (r *OrderRing) Aborted() bool {
	if r.aborted.Load() {
		return true
	}
	return r.abortWord != nil && atomic.LoadUint32(r.abortWord) != 0
}

// Close releases resources the ring owns itself. Rings built on a caller's arena own nothing; the
// arena stays the caller's to close after every worker is gone.
func (r *OrderRing) Close() error {
	if r.ownArena == nil {
		return nil
	}
	err := r.ownArena.Close()
	r.ownArena = nil
	return err
}
