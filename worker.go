package mandelring

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// WorkerState is a step of the per-worker state machine:
//
//	Idle -> Computing -> AwaitingPermission -> Emitting -> (Computing | Done)
//
// with a direct Idle -> Done for a worker that owns no rows.
type WorkerState int32

const (
	Idle WorkerState = iota
	Computing
	AwaitingPermission
	Emitting
	Done
)

func (s WorkerState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Computing:
		return "computing"
	case AwaitingPermission:
		return "awaiting-permission"
	case Emitting:
		return "emitting"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("WorkerState(%d)", int32(s))
	}
}

// WorkerStats summarizes one worker's run.
type WorkerStats struct {
	Rows    int           // rows emitted
	Compute time.Duration // time spent computing rows
	Wait    time.Duration // time spent blocked in Acquire
}

// Worker computes its assigned rows one at a time and emits each of them once the order ring hands
// it the permission. Everything a worker touches besides the ring and the emitter is private to it.
type Worker struct {
	id      int
	rows    RowAssigner
	ring    *OrderRing
	emitter *Emitter
	colorOf ColorFunc
	width   int
	height  int
	plane   Plane
	pin     bool

	// where the coordinator spawned this worker, for linking into ConsistencyError stacks
	spawnedAt StackTrace

	state atomic.Int32
	stats WorkerStats
}

// NewWorker builds worker id of a ring-sized pool. The ring and emitter are shared with the other
// workers; the worker never closes either of them.
func NewWorker(id int, cfg Config, ring *OrderRing, emitter *Emitter) *Worker {
	return &Worker{
		id:        id,
		rows:      NewRowAssigner(id, ring.Size(), cfg.Height),
		ring:      ring,
		emitter:   emitter,
		colorOf:   cfg.colorFunc(),
		width:     cfg.Width,
		height:    cfg.Height,
		plane:     cfg.Plane,
		pin:       cfg.PinWorkers,
		spawnedAt: GetStackTrace(nil, 1).WithLabel("coordinator"),
	}
}

func (w *Worker) ID() int { return w.id }

// State returns the worker's current state. Safe to call from any goroutine.
func (w *Worker) State() WorkerState {
	return WorkerState(w.state.Load())
}

// Stats is only meaningful after Run has returned.
func (w *Worker) Stats() WorkerStats {
	return w.stats
}

func (w *Worker) setState(s WorkerState) {
	w.state.Store(int32(s))
}

// Run drives the worker through all of its rows. It returns nil once every assigned row has been
// emitted, or the first error, at which point the worker stops without releasing anything further.
func (w *Worker) Run() (err error) {
	log := Logger().With("worker", w.id)
	defer func() {
		w.setState(Done)
		log.Debug("worker finished", "rows", w.stats.Rows, "compute", w.stats.Compute, "wait", w.stats.Wait, "err", err)
	}()

	// A worker without rows must never touch the ring: it would wait on a slot whose release never
	// comes, or open a slot out of turn.
	if w.rows.Empty() {
		return nil
	}

	if w.pin {
		if cpu, err := pinToCPU(w.id); err != nil {
			log.Warn("could not pin worker", "cpu", cpu, "err", err)
		}
	}

	buf := make([]uint8, w.width)
	for row := range w.rows.Rows() {
		if w.ring.Aborted() {
			return ErrAborted
		}

		w.setState(Computing)
		start := time.Now()
		w.computeRow(row, buf)
		w.stats.Compute += time.Since(start)

		w.setState(AwaitingPermission)
		slot := w.ring.Slot(row)
		if slot != w.id {
			return w.linkStack(consistencyErrorf(&w.spawnedAt, "worker %d asked for slot %d to emit row %d", w.id, slot, row))
		}
		start = time.Now()
		if err := w.ring.Acquire(slot); err != nil {
			return w.linkStack(err)
		}
		w.stats.Wait += time.Since(start)

		w.setState(Emitting)
		if err := w.emitter.WriteRow(Row{Index: row, Colors: buf}); err != nil {
			return err
		}
		if err := w.ring.Release(w.ring.Slot(row + 1)); err != nil {
			return w.linkStack(err)
		}
		w.stats.Rows++
	}

	return nil
}

func (w *Worker) computeRow(row int, buf []uint8) {
	for col := range buf {
		buf[col] = w.colorOf(w.plane.Point(row, col, w.width, w.height))
	}
}

// linkStack chains the spawn stack under consistency errors raised by the gates, which don't know
// which worker called them.
func (w *Worker) linkStack(err error) error {
	var ce *ConsistencyError
	if errors.As(err, &ce) {
		if ce.Stack.Label == "" {
			ce.Stack.Label = fmt.Sprintf("worker %d", w.id)
		}
		if ce.Stack.Parent == nil {
			ce.Stack.Parent = &w.spawnedAt
		}
	}
	return err
}
