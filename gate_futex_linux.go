//go:build linux

package mandelring

import (
	"math"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// futex(2) operations. Deliberately not the _PRIVATE variants: the words live in a MAP_SHARED
// arena and the waiters may be in other processes.
const (
	futexWaitOp = 0
	futexWakeOp = 1
)

// futexGate is a Gate whose entire state is one word in a SharedArena, so every process mapping the
// arena sees the same gate. Waiters park in the kernel on the word's address.
type futexGate struct {
	word *uint32
	edge *raceEdge
}

func newFutexGate(word *uint32) Gate {
	return futexGate{word: word, edge: new(raceEdge)}
}

func (g futexGate) Acquire() error {
	for {
		switch v := atomic.LoadUint32(g.word); v {
		case futexOpen:
			if atomic.CompareAndSwapUint32(g.word, futexOpen, futexClosed) {
				g.edge.acquire()
				return nil
			}
		case futexClosed:
			// returns immediately if the word already moved on from futexClosed
			if err := futexWait(g.word, futexClosed); err != nil {
				return &ResourceError{Op: "futex wait", Err: err}
			}
		case futexAborted:
			return ErrAborted
		default:
			return consistencyErrorf(nil, "gate word holds unknown state %d", v)
		}
	}
}

func (g futexGate) Release() error {
	g.edge.release()
	if !atomic.CompareAndSwapUint32(g.word, futexClosed, futexOpen) {
		switch v := atomic.LoadUint32(g.word); v {
		case futexAborted:
			return ErrAborted
		case futexOpen:
			return consistencyErrorf(nil, "release of a gate that is already open")
		default:
			return consistencyErrorf(nil, "gate word holds unknown state %d", v)
		}
	}
	if err := futexWake(g.word, 1); err != nil {
		return &ResourceError{Op: "futex wake", Err: err}
	}
	return nil
}

func (g futexGate) Abort() {
	atomic.StoreUint32(g.word, futexAborted)
	_ = futexWake(g.word, math.MaxInt32)
}

func futexWait(addr *uint32, val uint32) error {
	_, _, errno := unix.Syscall6(unix.SYS_FUTEX, uintptr(unsafe.Pointer(addr)), futexWaitOp, uintptr(val), 0, 0, 0)
	switch errno {
	case 0, unix.EAGAIN, unix.EINTR:
		return nil
	default:
		return errno
	}
}

func futexWake(addr *uint32, n int) error {
	_, _, errno := unix.Syscall6(unix.SYS_FUTEX, uintptr(unsafe.Pointer(addr)), futexWakeOp, uintptr(n), 0, 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}
