package mandelring

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

// Render draws the raster described by cfg to out, one row at a time in ascending order, with the
// rows computed in parallel by cfg.Workers workers. On success the colour-reset directive follows
// the last row.
//
// Every failure is fatal: the first worker error aborts the order ring, the remaining workers are
// joined (or reaped), and that error is returned wrapped in a *WorkerError. Canceling ctx aborts the
// ring the same way; rows already being computed are finished but never emitted.
//
// For the Processes topology out must be an *os.File, which every worker process inherits as its
// standard output.
func Render(ctx context.Context, cfg Config, out io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := Logger().With("workers", cfg.Workers, "topology", cfg.Topology.String(), "gate", cfg.gateKind().String())
	log.Info("render starting", "width", cfg.Width, "height", cfg.Height)
	start := time.Now()

	var err error
	switch cfg.Topology {
	case Processes:
		f, ok := out.(*os.File)
		if !ok {
			return &ArgumentError{Field: "output", Msg: fmt.Sprintf("worker processes need an *os.File, got %T", out)}
		}
		err = renderProcesses(ctx, cfg, f)
	default:
		err = renderThreads(ctx, cfg, out)
	}

	if err == nil {
		err = NewEmitter(out, cfg.Glyph).Reset()
	}
	if err != nil {
		log.Error("render failed", "err", err, "elapsed", time.Since(start))
		return err
	}

	log.Info("render finished", "elapsed", time.Since(start))
	return nil
}

// RenderSequential draws the raster on the calling goroutine with no ring at all. It is the
// reference every parallel render must match byte for byte.
func RenderSequential(cfg Config, out io.Writer) error {
	cfg.Workers = 1
	cfg.Topology = Threads
	if err := cfg.Validate(); err != nil {
		return err
	}

	colorOf := cfg.colorFunc()
	emitter := NewEmitter(out, cfg.Glyph)
	buf := make([]uint8, cfg.Width)
	for row := 0; row < cfg.Height; row++ {
		for col := range buf {
			buf[col] = colorOf(cfg.Plane.Point(row, col, cfg.Width, cfg.Height))
		}
		if err := emitter.WriteRow(Row{Index: row, Colors: buf}); err != nil {
			return err
		}
	}
	return emitter.Reset()
}

func workerName(id int) string {
	return "worker-" + strconv.Itoa(id)
}

func renderThreads(ctx context.Context, cfg Config, out io.Writer) (err error) {
	ring, err := NewOrderRing(cfg.Workers, cfg.gateKind())
	if err != nil {
		return err
	}
	// workers are all joined before this runs
	defer func() {
		if cerr := ring.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	emitter := NewEmitter(out, cfg.Glyph)
	group := NewWorkerGroup("render")
	var errs firstError

	for id := 0; id < cfg.Workers; id++ {
		w := NewWorker(id, cfg, ring, emitter)
		name := workerName(id)
		group.Add(name)
		go func() {
			defer group.Done(name)
			if err := w.Run(); err != nil {
				errs.record(&WorkerError{ID: w.ID(), Err: err})
				ring.Abort()
			}
		}()
	}

	stop := context.AfterFunc(ctx, func() {
		Logger().Debug("render canceled", "pending", group.Pending())
		ring.Abort()
	})
	defer stop()

	<-group.Wait()
	return joinError(ctx, errs.get())
}

// joinError picks what a coordinator returns once every worker is gone: the root cause if some
// worker failed, or the cancellation if the ring was only aborted from outside.
func joinError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrAborted) && ctx.Err() != nil {
		return fmt.Errorf("render interrupted: %w: %w", context.Cause(ctx), err)
	}
	return err
}
