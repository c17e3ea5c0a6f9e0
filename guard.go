package driverbase

import (
	"github.com/Brazilian-Institute-of-Robotics/ros-driver-base/internal/fdio"
)

// FileGuard owns a file descriptor and closes it exactly once. Use it to keep
// a descriptor from leaking across early returns. FileGuard is used through a
// pointer and must not be copied; Release transfers ownership back to the
// caller.
type FileGuard struct {
	fd int
}

func NewFileGuard(fd int) *FileGuard {
	return &FileGuard{fd: fd}
}

// Get returns the guarded descriptor, or -1 after release.
func (g *FileGuard) Get() int { return g.fd }

// Release disarms the guard and returns the descriptor without closing it.
func (g *FileGuard) Release() int {
	fd := g.fd
	g.fd = -1
	return fd
}

// Close closes the guarded descriptor. Closing an already-released guard is
// a no-op, never a double close.
func (g *FileGuard) Close() error {
	if g.fd < 0 {
		return nil
	}
	fd := g.fd
	g.fd = -1
	return fdio.Close(fd)
}
