//go:build linux

package mandelring

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// pinToCPU locks the calling goroutine to its OS thread and binds that thread to one CPU, chosen
// as id modulo the CPU count. The thread is never unlocked: when the worker goroutine exits, the
// runtime discards the thread instead of reusing it with a narrowed affinity mask.
func pinToCPU(id int) (cpu int, err error) {
	runtime.LockOSThread()

	cpu = id % runtime.NumCPU()
	var set unix.CPUSet
	set.Set(cpu)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return cpu, err
	}
	return cpu, nil
}
