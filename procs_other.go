//go:build !linux

package mandelring

import (
	"context"
	"fmt"
	"os"
)

// IsWorkerProcess is always false where worker processes aren't supported.
func IsWorkerProcess() bool { return false }

func RunWorkerProcess() int {
	fmt.Fprintln(os.Stderr, "mandelring worker: worker processes require linux")
	return 1
}

func renderProcesses(ctx context.Context, cfg Config, out *os.File) error {
	return &ResourceError{Op: "spawn workers", Err: errNoSharedArena}
}
