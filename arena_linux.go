//go:build linux

package mandelring

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

const arenaName = "mandelring-arena"

// SharedArena is a page-rounded memory region that several processes map at once. It is backed by
// an anonymous memfd: the creating process passes the file to the processes it spawns (as an
// inherited descriptor), and each of them maps the same pages with MAP_SHARED.
//
// The arena only ever hosts the order ring's gate words. Its owner creates it before spawning any
// worker and closes it only after every worker has been reaped.
type SharedArena struct {
	file *os.File
	mem  []byte
}

// CreateArena allocates a new arena of at least size bytes.
func CreateArena(size int) (*SharedArena, error) {
	if size <= 0 {
		return nil, &ArgumentError{Field: "arena size", Msg: fmt.Sprintf("must be positive, got %d", size)}
	}
	length := roundToPages(size)

	fd, err := unix.MemfdCreate(arenaName, unix.MFD_CLOEXEC)
	if err != nil {
		return nil, &ResourceError{Op: "memfd_create", Err: err}
	}
	file := os.NewFile(uintptr(fd), arenaName)

	if err := file.Truncate(int64(length)); err != nil {
		_ = file.Close()
		return nil, &ResourceError{Op: "size arena", Err: err}
	}

	a, err := mapArena(file, length)
	if err != nil {
		_ = file.Close()
		return nil, err
	}

	Logger().Debug("created shared arena", "fd", fd, "requested", size, "length", length)
	return a, nil
}

// OpenArena maps an arena created by another process, given its inherited file. length must be the
// creator's Len().
func OpenArena(file *os.File, length int) (*SharedArena, error) {
	if length <= 0 {
		return nil, &ArgumentError{Field: "arena size", Msg: fmt.Sprintf("must be positive, got %d", length)}
	}

	var st unix.Stat_t
	if err := unix.Fstat(int(file.Fd()), &st); err != nil {
		return nil, &ResourceError{Op: "stat arena", Err: err}
	}
	if st.Size < int64(length) {
		return nil, &ResourceError{
			Op:  "open arena",
			Err: fmt.Errorf("backing file holds %d bytes, want %d", st.Size, length),
		}
	}

	return mapArena(file, length)
}

func mapArena(file *os.File, length int) (*SharedArena, error) {
	mem, err := unix.Mmap(int(file.Fd()), 0, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, &ResourceError{Op: "mmap arena", Err: err}
	}
	return &SharedArena{file: file, mem: mem}, nil
}

// Len returns the mapped length in bytes, always a whole number of pages.
func (a *SharedArena) Len() int {
	return len(a.mem)
}

// File returns the backing file, for handing to child processes.
func (a *SharedArena) File() *os.File {
	return a.file
}

// Word returns the 32-bit word at byte offset off. off must be 4-byte aligned and in range.
func (a *SharedArena) Word(off int) *uint32 {
	if off < 0 || off%4 != 0 || off+4 > len(a.mem) {
		panic(fmt.Sprintf("arena word offset %d out of range for %d-byte arena", off, len(a.mem)))
	}
	return (*uint32)(unsafe.Pointer(&a.mem[off]))
}

// Close unmaps the arena and closes its file. Nothing may touch words obtained from Word
// afterwards.
func (a *SharedArena) Close() error {
	if a.mem == nil {
		return nil
	}

	err := unix.Munmap(a.mem)
	a.mem = nil
	if err != nil {
		_ = a.file.Close()
		return &ResourceError{Op: "munmap arena", Err: err}
	}
	if err := a.file.Close(); err != nil {
		return &ResourceError{Op: "close arena", Err: err}
	}
	return nil
}

func roundToPages(size int) int {
	page := unix.Getpagesize()
	return ((size-1)/page + 1) * page
}
