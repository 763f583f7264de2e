package mandelring_test

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sharnoff/mandelring"
)

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestWorkerGroupBasic(t *testing.T) {
	t.Parallel()

	g := mandelring.NewWorkerGroup(t.Name())
	closed := g.Wait()
	require.True(t, isClosed(closed))
	require.True(t, g.Finished())

	g.Add("worker-1")
	require.True(t, isClosed(closed), "a channel handed out earlier stays closed")
	waitCh := g.Wait()
	require.False(t, isClosed(waitCh))

	g.Add("worker-2")
	g.Add("worker-2") // intentionally add a duplicate
	require.Equal(t, []string{"worker-1", "worker-2", "worker-2"}, g.Pending())

	g.Done("worker-1")
	g.Done("worker-2")
	require.False(t, isClosed(waitCh))
	require.False(t, g.Finished())
	require.Equal(t, []string{"worker-2"}, g.Pending())

	g.Done("worker-2")
	require.True(t, isClosed(waitCh))
	require.True(t, g.Finished())
	require.Empty(t, g.Pending())
}

func TestWorkerGroupTryWait(t *testing.T) {
	t.Parallel()

	g := mandelring.NewWorkerGroup(t.Name())

	// nothing outstanding, live context
	require.NoError(t, g.TryWait(context.Background()))

	g.Add("worker-0")

	// returns when the context is canceled
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, g.TryWait(ctx), context.DeadlineExceeded)

	// returns when the last member is done
	done := make(chan error)
	go func() { done <- g.TryWait(context.Background()) }()
	g.Done("worker-0")
	require.NoError(t, <-done)

	// a canceled context always wins, even if nothing is outstanding
	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, g.TryWait(canceled), context.Canceled)
}

func TestWorkerGroupDoubleDonePanics(t *testing.T) {
	t.Parallel()

	g := mandelring.NewWorkerGroup(t.Name())
	g.Add("worker-1")
	g.Done("worker-1")
	require.Panics(t, func() { g.Done("worker-1") })
}

func TestWorkerGroupDoneMissingPanics(t *testing.T) {
	t.Parallel()

	g := mandelring.NewWorkerGroup(t.Name())
	require.Panics(t, func() { g.Done("worker-1") })
}

func TestWorkerGroupManyConcurrent(t *testing.T) {
	t.Parallel()

	const (
		parallelism = 50
		iterations  = 200
	)

	g := mandelring.NewWorkerGroup(t.Name())
	var wg sync.WaitGroup
	wg.Add(parallelism)
	for i := 0; i < parallelism; i += 1 {
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("worker-%d", i)
			for iter := 0; iter < iterations; iter += 1 {
				g.Add(name)
				time.Sleep(time.Duration(rand.Intn(20)) * time.Microsecond)
				g.Done(name)
			}
		}(i)
	}
	wg.Wait()

	require.True(t, g.Finished())
}
