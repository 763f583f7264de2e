//go:build linux

package mandelring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/sugawarayuuta/sonnet"
)

const (
	// workerEnv carries the JSON spawn parameters of a worker process. Its presence is what makes
	// a process a worker.
	workerEnv = "MANDELRING_WORKER"

	// the arena's file is the first of cmd.ExtraFiles, which always lands on descriptor 3
	arenaFD = 3
)

// worker process exit codes
const (
	exitWorkerFailed   = 1
	exitWorkerAborted  = 3
	exitWorkerIOFailed = 4
)

// spawnParams is everything a worker process needs. Nothing else crosses the process boundary
// except the arena.
type spawnParams struct {
	ID            int   `json:"id"`
	Workers       int   `json:"workers"`
	Width         int   `json:"width"`
	Height        int   `json:"height"`
	Plane         Plane `json:"plane"`
	MaxIterations int   `json:"max_iterations"`
	Glyph         byte  `json:"glyph"`
	ArenaLen      int   `json:"arena_len"`
	Pin           bool  `json:"pin"`

	// LogLevel is the coordinator's lowest enabled level; nil when it logs nothing
	LogLevel *slog.Level `json:"log_level,omitempty"`
}

func (p spawnParams) config() Config {
	cfg := DefaultConfig(p.Workers)
	cfg.Width = p.Width
	cfg.Height = p.Height
	cfg.Plane = p.Plane
	cfg.MaxIterations = p.MaxIterations
	cfg.Glyph = p.Glyph
	cfg.Topology = Processes
	cfg.Gate = GateFutex
	cfg.PinWorkers = p.Pin
	return cfg
}

// IsWorkerProcess reports whether this process was spawned as a render worker. Programs that may
// use the Processes topology must check it first thing in main and hand over to RunWorkerProcess.
func IsWorkerProcess() bool {
	_, ok := os.LookupEnv(workerEnv)
	return ok
}

// RunWorkerProcess runs the worker described by the environment and returns the process exit
// code.
func RunWorkerProcess() int {
	var p spawnParams
	if err := sonnet.Unmarshal([]byte(os.Getenv(workerEnv)), &p); err != nil {
		fmt.Fprintf(os.Stderr, "mandelring worker: bad spawn parameters: %s\n", err)
		return exitWorkerFailed
	}

	if p.LogLevel != nil {
		h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: *p.LogLevel})
		SetLogger(slog.New(h).With("pid", os.Getpid()))
	}

	err := runWorkerProcess(p)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrAborted):
		return exitWorkerAborted
	}

	fmt.Fprintf(os.Stderr, "mandelring worker %d: %s\n", p.ID, err)
	var ioErr *IOError
	if errors.As(err, &ioErr) {
		return exitWorkerIOFailed
	}
	var ce *ConsistencyError
	if errors.As(err, &ce) {
		fmt.Fprint(os.Stderr, ce.Stack.String())
	}
	return exitWorkerFailed
}

func runWorkerProcess(p spawnParams) (err error) {
	arena, err := OpenArena(os.NewFile(arenaFD, arenaName), p.ArenaLen)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := arena.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	ring, err := AttachSharedOrderRing(arena, p.Workers)
	if err != nil {
		return err
	}

	cfg := p.config()
	if err := cfg.Validate(); err != nil {
		return err
	}
	return NewWorker(p.ID, cfg, ring, NewEmitter(os.Stdout, cfg.Glyph)).Run()
}

func renderProcesses(ctx context.Context, cfg Config, out *os.File) (err error) {
	self, err := os.Executable()
	if err != nil {
		return &ResourceError{Op: "locate executable", Err: err}
	}

	arena, err := CreateArena(SharedRingSize(cfg.Workers))
	if err != nil {
		return err
	}
	// every worker has been reaped by the time this runs
	defer func() {
		if cerr := arena.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	ring, err := NewSharedOrderRing(arena, cfg.Workers)
	if err != nil {
		return err
	}

	group := NewWorkerGroup("render")
	var errs firstError
	var procs []*exec.Cmd

	for id := 0; id < cfg.Workers; id++ {
		cmd, err := spawnWorker(self, id, cfg, arena, out)
		if err != nil {
			errs.record(&WorkerError{ID: id, Err: err})
			ring.Abort()
			break
		}
		procs = append(procs, cmd)

		name := workerName(id)
		group.Add(name)
		go func(id int) {
			defer group.Done(name)
			if err := reapWorker(cmd); err != nil {
				if ctx.Err() != nil {
					// killed by the cancellation below
					err = fmt.Errorf("%w: %w", ErrAborted, err)
				}
				errs.record(&WorkerError{ID: id, Err: err})
				ring.Abort()
			}
		}(id)
	}

	stop := context.AfterFunc(ctx, func() {
		Logger().Debug("render canceled, killing workers", "pending", group.Pending())
		ring.Abort()
		for _, cmd := range procs {
			_ = cmd.Process.Kill()
		}
	})
	defer stop()

	<-group.Wait()
	return joinError(ctx, errs.get())
}

func spawnWorker(self string, id int, cfg Config, arena *SharedArena, out *os.File) (*exec.Cmd, error) {
	params := spawnParams{
		ID:            id,
		Workers:       cfg.Workers,
		Width:         cfg.Width,
		Height:        cfg.Height,
		Plane:         cfg.Plane,
		MaxIterations: cfg.MaxIterations,
		Glyph:         cfg.Glyph,
		ArenaLen:      arena.Len(),
		Pin:           cfg.PinWorkers,
		LogLevel:      lowestEnabledLevel(),
	}
	encoded, err := sonnet.Marshal(params)
	if err != nil {
		return nil, &ResourceError{Op: "encode spawn parameters", Err: err}
	}

	cmd := exec.Command(self)
	cmd.Env = append(os.Environ(), workerEnv+"="+string(encoded))
	cmd.Stdout = out
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{arena.File()}

	if err := cmd.Start(); err != nil {
		return nil, &ResourceError{Op: "spawn worker", Err: err}
	}
	Logger().Debug("spawned worker", "worker", id, "pid", cmd.Process.Pid)
	return cmd, nil
}

func reapWorker(cmd *exec.Cmd) error {
	err := cmd.Wait()
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return &ResourceError{Op: "reap worker", Err: err}
	}
	switch exitErr.ExitCode() {
	case exitWorkerAborted:
		return fmt.Errorf("%w: worker exited after the ring was aborted", ErrAborted)
	case exitWorkerIOFailed:
		// the row itself was reported on the worker's stderr
		return &IOError{Row: UnknownRow, Err: fmt.Errorf("worker process %d: %w", cmd.Process.Pid, err)}
	default:
		return fmt.Errorf("worker process %d: %w", cmd.Process.Pid, err)
	}
}

func lowestEnabledLevel() *slog.Level {
	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		if Logger().Enabled(context.Background(), level) {
			return &level
		}
	}
	return nil
}
