//go:build race

package mandelring

import "sync/atomic"

// raceEdge mirrors a futex gate handoff on the Go heap. The race detector does not track atomics
// on mmap'd memory, so without it the handoff of the emitter buffer between workers sharing a
// futex ring is reported as a data race.
type raceEdge struct {
	seq atomic.Uint32
}

func (e *raceEdge) release() { e.seq.Add(1) }
func (e *raceEdge) acquire() { e.seq.Load() }
