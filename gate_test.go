package mandelring

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type gateCtor struct {
	name string
	new  func(t *testing.T, open bool) Gate
}

var gateCtors = []gateCtor{
	{"cond", func(_ *testing.T, open bool) Gate { return newCondGate(open) }},
	{"sem", func(_ *testing.T, open bool) Gate { return newSemGate(open) }},
}

// runs f in the background, returning a channel that receives its result
func async(f func() error) <-chan error {
	ch := make(chan error, 1)
	go func() { ch <- f() }()
	return ch
}

func requirePending(t *testing.T, ch <-chan error) {
	select {
	case err := <-ch:
		t.Fatalf("expected call to block, returned %v", err)
	case <-time.After(50 * time.Millisecond):
	}
}

func requireReturns(t *testing.T, ch <-chan error) error {
	select {
	case err := <-ch:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("call did not return")
		return nil
	}
}

func TestGateHandoff(t *testing.T) {
	for _, c := range gateCtors {
		t.Run(c.name, func(t *testing.T) {
			g := c.new(t, false)

			acquired := async(g.Acquire)
			requirePending(t, acquired)

			require.NoError(t, g.Release())
			require.NoError(t, requireReturns(t, acquired))

			// the acquire closed it again
			again := async(g.Acquire)
			requirePending(t, again)
			require.NoError(t, g.Release())
			require.NoError(t, requireReturns(t, again))
		})
	}
}

func TestGateReleaseBeforeAcquire(t *testing.T) {
	for _, c := range gateCtors {
		t.Run(c.name, func(t *testing.T) {
			g := c.new(t, false)
			require.NoError(t, g.Release())
			require.NoError(t, requireReturns(t, async(g.Acquire)))

			open := c.new(t, true)
			require.NoError(t, requireReturns(t, async(open.Acquire)))
		})
	}
}

func TestGateDoubleRelease(t *testing.T) {
	for _, c := range gateCtors {
		t.Run(c.name, func(t *testing.T) {
			g := c.new(t, true)

			err := g.Release()
			var ce *ConsistencyError
			require.True(t, errors.As(err, &ce), "expected ConsistencyError, got %v", err)
			require.NotEmpty(t, ce.Stack.Frames)

			// the gate is still usable and still holds exactly one opening
			require.NoError(t, requireReturns(t, async(g.Acquire)))
			pending := async(g.Acquire)
			requirePending(t, pending)
			g.Abort()
			require.ErrorIs(t, requireReturns(t, pending), ErrAborted)
		})
	}
}

func TestGateAbort(t *testing.T) {
	for _, c := range gateCtors {
		t.Run(c.name, func(t *testing.T) {
			g := c.new(t, false)

			blocked := []<-chan error{async(g.Acquire), async(g.Acquire)}
			for _, ch := range blocked {
				requirePending(t, ch)
			}

			g.Abort()
			for _, ch := range blocked {
				require.ErrorIs(t, requireReturns(t, ch), ErrAborted)
			}

			require.ErrorIs(t, g.Acquire(), ErrAborted)
			require.ErrorIs(t, g.Release(), ErrAborted)
			g.Abort() // idempotent

			// an open gate reports the abort too
			open := c.new(t, true)
			open.Abort()
			require.ErrorIs(t, open.Acquire(), ErrAborted)
		})
	}
}
