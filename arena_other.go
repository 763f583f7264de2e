//go:build !linux

package mandelring

import (
	"errors"
	"os"
)

var errNoSharedArena = errors.New("shared arenas require linux")

// SharedArena is unavailable on this platform; every constructor fails with a ResourceError.
type SharedArena struct{}

func CreateArena(size int) (*SharedArena, error) {
	return nil, &ResourceError{Op: "create arena", Err: errNoSharedArena}
}

func OpenArena(file *os.File, length int) (*SharedArena, error) {
	return nil, &ResourceError{Op: "open arena", Err: errNoSharedArena}
}

func (a *SharedArena) Len() int         { return 0 }
func (a *SharedArena) File() *os.File   { return nil }
func (a *SharedArena) Word(int) *uint32 { panic(errNoSharedArena) }
func (a *SharedArena) Close() error     { return nil }
