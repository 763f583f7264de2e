package mandelring

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/exp/slices"
)

// WorkerGroup is the coordinator's record of spawned workers that haven't been joined or reaped
// yet. It behaves like a [sync.WaitGroup] with a few changes:
//
//  1. Members are named, added one at a time with [WorkerGroup.Add]
//  2. [WorkerGroup.Wait] returns a channel, so it can be selected over
//  3. The outstanding members can be listed with [WorkerGroup.Pending]
//  4. Members may be added again after the group has drained
type WorkerGroup struct {
	mu      sync.Mutex
	name    string
	count   uint
	allDone chan struct{}
	members map[string]uint
}

var alwaysClosed = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// NewWorkerGroup creates an empty WorkerGroup with the given name
func NewWorkerGroup(name string) *WorkerGroup {
	return &WorkerGroup{name: name, members: make(map[string]uint)}
}

func (g *WorkerGroup) Name() string {
	return g.name
}

// Add records a running member. The same name may be added several times, in which case each
// instance needs its own call to [WorkerGroup.Done].
func (g *WorkerGroup) Add(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.count += 1
	g.members[name] += 1
}

// Done marks one instance of the named member as finished.
//
// Done panics if no instance of the name is outstanding: joining a worker twice, or one that was
// never spawned, means the coordinator's bookkeeping is broken.
func (g *WorkerGroup) Done(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	c := g.members[name]
	if c == 0 {
		panic(fmt.Sprintf("%s: no outstanding member named %q", g.name, name))
	}

	if c == 1 {
		delete(g.members, name)
	} else {
		g.members[name] = c - 1
	}

	g.count -= 1
	if g.count == 0 && g.allDone != nil {
		close(g.allDone)
		g.allDone = nil
	}
}

// Wait returns a channel that is closed once every member has been marked Done.
func (g *WorkerGroup) Wait() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.count == 0 {
		return alwaysClosed
	}
	if g.allDone == nil {
		g.allDone = make(chan struct{})
	}
	return g.allDone
}

// TryWait waits on the group, returning early with ctx.Err() if the context is canceled.
//
// If the context is already canceled when TryWait is called, it always returns the context's
// error.
func (g *WorkerGroup) TryWait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-g.Wait():
			return nil
		}
	}
}

// Finished returns whether waiting would complete immediately.
func (g *WorkerGroup) Finished() bool {
	return isClosed(g.Wait())
}

// Pending returns the sorted names of outstanding members, one entry per instance.
func (g *WorkerGroup) Pending() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var names []string
	for name, count := range g.members {
		for i := uint(0); i < count; i++ {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}
