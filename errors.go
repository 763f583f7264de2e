package mandelring

import (
	"errors"
	"fmt"
	"sync"
)

// ErrAborted is returned by gate operations after the ring they belong to has been aborted,
// typically because another worker hit a fatal error or the run was interrupted.
var ErrAborted = errors.New("order ring aborted")

// ArgumentError reports an invalid run parameter. It is always produced before any resource is
// allocated.
type ArgumentError struct {
	Field string
	Msg   string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

// ResourceError reports a failure to create or destroy a gate, arena or worker.
type ResourceError struct {
	Op  string
	Err error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// IOError reports a partial or failed write of a row (or of the final reset) to the sink.
type IOError struct {
	Row int // a raster row, ResetRow or UnknownRow
	Err error
}

// Values of IOError.Row that don't name a raster row.
const (
	// ResetRow marks a failed write of the colour reset directive.
	ResetRow = -1
	// UnknownRow marks a failed write inside a worker process, which reports it only through its
	// exit status.
	UnknownRow = -2
)

func (e *IOError) Error() string {
	switch e.Row {
	case ResetRow:
		return fmt.Sprintf("write colour reset: %s", e.Err)
	case UnknownRow:
		return fmt.Sprintf("write row: %s", e.Err)
	default:
		return fmt.Sprintf("write row %d: %s", e.Row, e.Err)
	}
}

func (e *IOError) Unwrap() error { return e.Err }

// ConsistencyError is a violated protocol invariant: releasing an open gate, acquiring a slot the
// caller does not own, and the like. It is a programming defect, never a recoverable condition.
type ConsistencyError struct {
	Msg   string
	Stack StackTrace
}

func (e *ConsistencyError) Error() string {
	return "internal consistency failure: " + e.Msg
}

func consistencyErrorf(parent *StackTrace, format string, args ...any) *ConsistencyError {
	return &ConsistencyError{
		Msg:   fmt.Sprintf(format, args...),
		Stack: GetStackTrace(parent, 1),
	}
}

// WorkerError attributes a fatal error to the worker that produced it.
type WorkerError struct {
	ID  int
	Err error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("worker %d: %s", e.ID, e.Err)
}

func (e *WorkerError) Unwrap() error { return e.Err }

// firstError keeps the most relevant of a set of concurrently reported errors: the first one that
// isn't just a consequence of the ring being aborted.
type firstError struct {
	mu  sync.Mutex
	err error
}

func (f *firstError) record(err error) {
	if err == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err == nil || (errors.Is(f.err, ErrAborted) && !errors.Is(err, ErrAborted)) {
		f.err = err
	}
}

func (f *firstError) get() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}
