//go:build unix

// Package fdio wraps the non-blocking file descriptor primitives the driver
// read/write loops are built on. All calls are non-suspending except the
// Wait* readiness helpers, which park in poll(2) for at most the supplied
// duration.
package fdio

import (
	"errors"
	"io"
	"time"

	"golang.org/x/sys/unix"
)

// ErrWouldBlock reports that a read or write found the descriptor not ready.
// It is a first-class outcome, not a failure.
var ErrWouldBlock = errors.New("fdio: operation would block")

func SetNonblock(fd int) error {
	return unix.SetNonblock(fd, true)
}

// Read drains up to len(p) ready bytes. It returns ErrWouldBlock when no data
// is ready and io.EOF when the peer has closed the stream.
func Read(fd int, p []byte) (int, error) {
	for {
		n, err := unix.Read(fd, p)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
			return 0, ErrWouldBlock
		case err != nil:
			return 0, err
		case n == 0 && len(p) > 0:
			return 0, io.EOF
		default:
			return n, nil
		}
	}
}

// Write pushes up to len(p) bytes without blocking, returning ErrWouldBlock
// when the descriptor cannot accept any.
func Write(fd int, p []byte) (int, error) {
	for {
		n, err := unix.Write(fd, p)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
			return 0, ErrWouldBlock
		case err != nil:
			return 0, err
		default:
			return n, nil
		}
	}
}

// WaitReadable parks until fd has data to read, reports an error condition,
// or d elapses. It returns false on timeout. POLLHUP and POLLERR report as
// ready so the following read surfaces the actual condition.
func WaitReadable(fd int, d time.Duration) (bool, error) {
	return wait(fd, unix.POLLIN, d)
}

// WaitWritable parks until fd accepts writes or d elapses.
func WaitWritable(fd int, d time.Duration) (bool, error) {
	return wait(fd, unix.POLLOUT, d)
}

func wait(fd int, events int16, d time.Duration) (bool, error) {
	deadline := time.Now().Add(d)
	for {
		// Round up: poll takes whole milliseconds and rounding down would
		// busy-spin out sub-millisecond remainders.
		ms := int((time.Until(deadline) + time.Millisecond - 1) / time.Millisecond)
		if ms < 0 {
			ms = 0
		}
		fds := []unix.PollFd{{Fd: int32(fd), Events: events}}
		n, err := unix.Poll(fds, ms)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return false, err
		}
		return n > 0, nil
	}
}

func Close(fd int) error {
	return unix.Close(fd)
}
