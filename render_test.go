package mandelring_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sharnoff/mandelring"
)

// a quick raster: the default plane at low resolution and depth
func quickConfig(workers int) mandelring.Config {
	cfg := mandelring.DefaultConfig(workers)
	cfg.Width = 24
	cfg.Height = 13
	cfg.MaxIterations = 200
	return cfg
}

func sequential(t *testing.T, cfg mandelring.Config) string {
	var buf bytes.Buffer
	require.NoError(t, mandelring.RenderSequential(cfg, &buf))
	return buf.String()
}

func render(t *testing.T, cfg mandelring.Config) string {
	var buf bytes.Buffer
	require.NoError(t, mandelring.Render(context.Background(), cfg, &buf))
	return buf.String()
}

func TestRenderSequentialShape(t *testing.T) {
	t.Parallel()

	out := sequential(t, quickConfig(1))
	require.True(t, strings.HasSuffix(out, "\n\x1b[0m"))

	lines := strings.Split(strings.TrimSuffix(out, "\x1b[0m"), "\n")
	require.Len(t, lines, 13+1) // trailing empty string after the last newline
	for _, line := range lines[:13] {
		require.Equal(t, 24, strings.Count(line, "\x1b[38;5;"))
		require.Equal(t, 24, strings.Count(line, "@"))
	}
}

func TestRenderMatchesSequential(t *testing.T) {
	for _, kind := range ringKinds() {
		t.Run(kind.String(), func(t *testing.T) {
			t.Parallel()

			expected := sequential(t, quickConfig(1))
			// every worker count up to the height, and a few past it
			for n := 1; n <= 13+3; n++ {
				cfg := quickConfig(n)
				cfg.Gate = kind
				require.Equal(t, expected, render(t, cfg), "%d workers", n)
			}
		})
	}
}

func TestRenderFullRaster(t *testing.T) {
	t.Parallel()

	base := mandelring.DefaultConfig(1)
	base.MaxIterations = 1000
	expected := sequential(t, base)

	for _, n := range []int{4, 7, 50, 64} {
		cfg := mandelring.DefaultConfig(n)
		cfg.MaxIterations = 1000
		require.Equal(t, expected, render(t, cfg), "%d workers", n)
	}
}

func TestRenderDeterministic(t *testing.T) {
	t.Parallel()

	cfg := quickConfig(5)
	first := render(t, cfg)
	for i := 0; i < 20; i++ {
		require.Equal(t, first, render(t, cfg))
	}
}

// rowLines renders with each row painted its own index, sleeping a row-dependent amount first so
// that workers finish out of order, and returns the row index of each emitted line.
func rowLines(t *testing.T, workers, height int, kind mandelring.GateKind) []int {
	cfg := mandelring.DefaultConfig(workers)
	cfg.Width = 2
	cfg.Height = height
	cfg.Gate = kind
	cfg.ColorOf = func(p mandelring.Point) uint8 {
		if p.Col == 0 {
			// later rows of a stripe tend to finish first
			time.Sleep(time.Duration((height-p.Row)*37%11) * time.Millisecond)
		}
		return uint8(p.Row)
	}

	out := strings.TrimSuffix(render(t, cfg), "\x1b[0m")
	var rows []int
	for _, line := range strings.Split(strings.TrimSuffix(out, "\n"), "\n") {
		var a, b int
		_, err := fmt.Sscanf(line, "\x1b[38;5;%dm@\x1b[38;5;%dm@", &a, &b)
		require.NoError(t, err, "line %q", line)
		require.Equal(t, a, b)
		rows = append(rows, a)
	}
	return rows
}

func TestRenderOrderUnderSkew(t *testing.T) {
	scenarios := []struct {
		name    string
		workers int
		height  int
	}{
		{"four workers", 4, 10},
		{"seven workers", 7, 50},
		{"more workers than rows", 9, 5},
	}

	for _, s := range scenarios {
		for _, kind := range ringKinds() {
			t.Run(s.name+"/"+kind.String(), func(t *testing.T) {
				t.Parallel()

				expected := make([]int, s.height)
				for i := range expected {
					expected[i] = i
				}
				require.Equal(t, expected, rowLines(t, s.workers, s.height, kind))
			})
		}
	}
}

func TestRenderSinkFailure(t *testing.T) {
	for _, kind := range ringKinds() {
		t.Run(kind.String(), func(t *testing.T) {
			t.Parallel()

			const okRows = 5
			cfg := quickConfig(4)
			cfg.Gate = kind
			expected := strings.SplitAfter(sequential(t, quickConfig(1)), "\n")[:okRows]

			w := &limitedWriter{budget: okRows}
			err := mandelring.Render(context.Background(), cfg, w)

			var ioErr *mandelring.IOError
			require.ErrorAs(t, err, &ioErr)
			require.Equal(t, okRows, ioErr.Row)
			require.ErrorIs(t, err, errSinkFull)

			var we *mandelring.WorkerError
			require.ErrorAs(t, err, &we)
			require.Equal(t, okRows%4, we.ID)

			// nothing after the failed row, not even the reset
			require.Equal(t, strings.Join(expected, ""), w.buf.String())
		})
	}
}

func TestRenderCanceled(t *testing.T) {
	t.Parallel()

	unblock := make(chan struct{})
	computing := make(chan struct{})
	var once bool

	cfg := quickConfig(3)
	cfg.ColorOf = func(p mandelring.Point) uint8 {
		if p.Row == 0 && p.Col == 0 && !once {
			// only worker 0 ever computes row 0
			once = true
			close(computing)
			<-unblock
		}
		return 1
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	var buf bytes.Buffer
	done := make(chan error, 1)
	go func() { done <- mandelring.Render(ctx, cfg, &buf) }()

	<-computing
	cancel(errors.New("received interrupt"))
	// the ring is aborted asynchronously; give it a moment before row 0 is ready to emit
	time.Sleep(100 * time.Millisecond)
	close(unblock)

	select {
	case err := <-done:
		require.ErrorIs(t, err, mandelring.ErrAborted)
		require.True(t, strings.HasPrefix(err.Error(), "render interrupted: received interrupt: worker "), "got %q", err)
	case <-time.After(10 * time.Second):
		t.Fatal("render did not stop after cancellation")
	}
	require.Empty(t, buf.String())
}

func TestRenderArgumentErrors(t *testing.T) {
	t.Parallel()

	var ae *mandelring.ArgumentError
	var buf bytes.Buffer

	err := mandelring.Render(context.Background(), mandelring.DefaultConfig(0), &buf)
	require.ErrorAs(t, err, &ae)

	cfg := quickConfig(2)
	cfg.Topology = mandelring.Processes
	err = mandelring.Render(context.Background(), cfg, &buf)
	require.ErrorAs(t, err, &ae)
	require.Equal(t, "output", ae.Field)

	require.Empty(t, buf.String())
	require.False(t, errors.Is(err, mandelring.ErrAborted))
}
