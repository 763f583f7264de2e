// Command mandelring draws the Mandelbrot set on a 256-colour xterm, computing rows in parallel.
//
// Usage:
//
//	mandelring [-procs] [-gate cond|sem|futex] [-pin] [-v] <workers>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/sharnoff/mandelring"
)

const (
	exitOK          = 0
	exitFailure     = 1
	exitUsage       = 2
	exitInterrupted = 130
)

// how long an interrupt waits for workers to wind down before resetting the terminal anyway
const teardownGrace = 500 * time.Millisecond

func main() {
	if mandelring.IsWorkerProcess() {
		os.Exit(mandelring.RunWorkerProcess())
	}
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout *os.File, stderr io.Writer) int {
	flags := flag.NewFlagSet("mandelring", flag.ContinueOnError)
	flags.SetOutput(stderr)
	procs := flags.Bool("procs", false, "run workers as separate processes sharing the order ring")
	gate := flags.String("gate", "default", "gate backend: cond, sem or futex")
	pin := flags.Bool("pin", false, "pin each worker to one CPU")
	verbose := flags.Bool("v", false, "log debug output to stderr")
	flags.Usage = func() {
		fmt.Fprintln(flags.Output(), "usage: mandelring [flags] <workers>")
		flags.PrintDefaults()
	}

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	mandelring.SetLogger(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})))
	defer mandelring.SetLogger(nil)

	cfg, err := buildConfig(flags.Args(), *procs, *gate, *pin)
	if err != nil {
		fmt.Fprintf(stderr, "mandelring: %s\n", err)
		flags.Usage()
		return exitUsage
	}

	if !term.IsTerminal(int(stdout.Fd())) {
		mandelring.Logger().Info("standard output is not a terminal, colour escapes are written verbatim")
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)
	renderDone := make(chan struct{})
	handled := make(chan struct{})
	emitter := mandelring.NewEmitter(stdout, cfg.Glyph)

	// callbacks run last-registered first: stop the workers, reset the colour, hand back the exit
	intr := mandelring.NewInterruptHandler()
	defer intr.Stop()
	_ = intr.On(context.Background(), func(context.Context) error {
		close(handled)
		select {
		case <-renderDone:
		default:
			// the workers outlived the grace period; the colour is already reset
			os.Exit(exitInterrupted)
		}
		return nil
	})
	_ = intr.WithErrorHandler(logAndContinue).On(context.Background(), func(context.Context) error {
		return emitter.Reset()
	})
	_ = intr.On(context.Background(), func(context.Context) error {
		cancel(interruptCause(intr.Cause()))
		select {
		case <-renderDone:
		case <-time.After(teardownGrace):
		}
		return nil
	})
	intr.Watch(os.Interrupt, syscall.SIGTERM)

	err = mandelring.Render(ctx, cfg, stdout)
	close(renderDone)
	return finish(err, intr, handled, emitter, stderr)
}

// finish picks the exit code once Render has returned. An interrupt that arrived at any point
// before this, even after the last row, wins over the render's own outcome.
func finish(err error, intr *mandelring.InterruptHandler, handled <-chan struct{}, emitter *mandelring.Emitter, stderr io.Writer) int {
	// from here on a signal gets its default disposition
	intr.Stop()
	if intr.Context().Err() != nil {
		<-handled
		return exitInterrupted
	}
	if err == nil {
		return exitOK
	}

	var ce *mandelring.ConsistencyError
	if errors.As(err, &ce) {
		fmt.Fprint(stderr, ce.Stack.String())
	}
	_ = emitter.Reset()

	var ae *mandelring.ArgumentError
	if errors.As(err, &ae) {
		return exitUsage
	}
	return exitFailure
}

func interruptCause(cause any) error {
	return fmt.Errorf("received %v", cause)
}

func buildConfig(args []string, procs bool, gate string, pin bool) (mandelring.Config, error) {
	if len(args) != 1 {
		return mandelring.Config{}, &mandelring.ArgumentError{
			Field: "arguments",
			Msg:   fmt.Sprintf("expected exactly one worker count, got %d arguments", len(args)),
		}
	}
	workers, err := strconv.Atoi(args[0])
	if err != nil {
		return mandelring.Config{}, &mandelring.ArgumentError{Field: "worker count", Msg: fmt.Sprintf("%q is not an integer", args[0])}
	}

	cfg := mandelring.DefaultConfig(workers)
	if procs {
		cfg.Topology = mandelring.Processes
	}
	if cfg.Gate, err = mandelring.ParseGateKind(gate); err != nil {
		return mandelring.Config{}, err
	}
	cfg.PinWorkers = pin

	return cfg, cfg.Validate()
}

func logAndContinue(_ context.Context, err error) error {
	mandelring.Logger().Error("interrupt cleanup failed", "err", err)
	return nil
}
