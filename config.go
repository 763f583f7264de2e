package mandelring

import (
	"fmt"
	"strings"
)

const (
	DefaultWidth         = 90
	DefaultHeight        = 50
	DefaultMaxIterations = 100000
	DefaultGlyph         = '@'
)

// Topology selects what a worker is: a goroutine in this process, or a separate process sharing
// only the order ring's arena.
type Topology int

const (
	Threads Topology = iota
	Processes
)

func (t Topology) String() string {
	switch t {
	case Threads:
		return "threads"
	case Processes:
		return "processes"
	default:
		return fmt.Sprintf("Topology(%d)", int(t))
	}
}

// ParseTopology is the inverse of Topology.String.
func ParseTopology(s string) (Topology, error) {
	switch strings.ToLower(s) {
	case "threads", "thread":
		return Threads, nil
	case "processes", "process", "procs":
		return Processes, nil
	default:
		return 0, &ArgumentError{Field: "topology", Msg: fmt.Sprintf("unknown topology %q", s)}
	}
}

// GateKind selects the synchronization backend of the order ring.
type GateKind int

const (
	// GateDefault is GateCond for threads and GateFutex for processes.
	GateDefault GateKind = iota
	GateCond
	GateSemaphore
	GateFutex
)

func (k GateKind) String() string {
	switch k {
	case GateDefault:
		return "default"
	case GateCond:
		return "cond"
	case GateSemaphore:
		return "sem"
	case GateFutex:
		return "futex"
	default:
		return fmt.Sprintf("GateKind(%d)", int(k))
	}
}

// ParseGateKind is the inverse of GateKind.String.
func ParseGateKind(s string) (GateKind, error) {
	switch strings.ToLower(s) {
	case "", "default":
		return GateDefault, nil
	case "cond":
		return GateCond, nil
	case "sem", "semaphore":
		return GateSemaphore, nil
	case "futex":
		return GateFutex, nil
	default:
		return 0, &ArgumentError{Field: "gate", Msg: fmt.Sprintf("unknown gate kind %q", s)}
	}
}

// Config describes one render.
type Config struct {
	Width, Height int
	Plane         Plane
	MaxIterations int
	// Workers is the number of parallel workers, and the size of the order ring.
	Workers  int
	Topology Topology
	Gate     GateKind
	Glyph    byte
	// PinWorkers locks every worker to one CPU (worker id modulo the CPU count). Linux only;
	// elsewhere it is a no-op.
	PinWorkers bool
	// ColorOf overrides the escape-time colouring. Threads only: worker processes can't receive a
	// function, so they always use MandelbrotColor(MaxIterations).
	ColorOf ColorFunc
}

// DefaultConfig returns the fixed 90x50 configuration with the given worker count.
func DefaultConfig(workers int) Config {
	return Config{
		Width:         DefaultWidth,
		Height:        DefaultHeight,
		Plane:         DefaultPlane,
		MaxIterations: DefaultMaxIterations,
		Workers:       workers,
		Topology:      Threads,
		Gate:          GateDefault,
		Glyph:         DefaultGlyph,
	}
}

// Validate checks c without allocating anything.
func (c Config) Validate() error {
	switch {
	case c.Workers <= 0:
		return &ArgumentError{Field: "worker count", Msg: fmt.Sprintf("must be positive, got %d", c.Workers)}
	case c.Width <= 0 || c.Height <= 0:
		return &ArgumentError{Field: "raster size", Msg: fmt.Sprintf("must be positive, got %dx%d", c.Width, c.Height)}
	case !(c.Plane.XMin < c.Plane.XMax) || !(c.Plane.YMin < c.Plane.YMax):
		return &ArgumentError{Field: "plane", Msg: fmt.Sprintf("empty rectangle %+v", c.Plane)}
	case c.MaxIterations <= 0:
		return &ArgumentError{Field: "max iterations", Msg: fmt.Sprintf("must be positive, got %d", c.MaxIterations)}
	case c.Glyph < 0x20 || c.Glyph > 0x7e:
		return &ArgumentError{Field: "glyph", Msg: fmt.Sprintf("must be printable ASCII, got %#x", c.Glyph)}
	}

	switch c.Topology {
	case Threads:
	case Processes:
		if c.ColorOf != nil {
			return &ArgumentError{Field: "colour function", Msg: "cannot be passed to worker processes"}
		}
		if c.Gate != GateDefault && c.Gate != GateFutex {
			return &ArgumentError{Field: "gate", Msg: fmt.Sprintf("%s gates cannot be shared between processes", c.Gate)}
		}
	default:
		return &ArgumentError{Field: "topology", Msg: c.Topology.String()}
	}

	if c.Gate < GateDefault || c.Gate > GateFutex {
		return &ArgumentError{Field: "gate", Msg: c.Gate.String()}
	}
	return nil
}

func (c Config) gateKind() GateKind {
	if c.Gate != GateDefault {
		return c.Gate
	}
	if c.Topology == Processes {
		return GateFutex
	}
	return GateCond
}

func (c Config) colorFunc() ColorFunc {
	if c.ColorOf != nil {
		return c.ColorOf
	}
	return MandelbrotColor(c.MaxIterations)
}
