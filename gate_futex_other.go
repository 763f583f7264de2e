//go:build !linux

package mandelring

// unreachable in practice: without a SharedArena there is no word to build a futex gate on
func newFutexGate(*uint32) Gate {
	return noFutexGate{}
}

type noFutexGate struct{}

func (noFutexGate) Acquire() error { return &ResourceError{Op: "futex wait", Err: errNoSharedArena} }
func (noFutexGate) Release() error { return &ResourceError{Op: "futex wake", Err: errNoSharedArena} }
func (noFutexGate) Abort()         {}
