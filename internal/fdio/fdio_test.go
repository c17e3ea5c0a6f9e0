//go:build unix

package fdio

import (
	"errors"
	"io"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func pipePair(t *testing.T) (int, int) {
	t.Helper()
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		t.Fatalf("pipe: %v", err)
	}
	if err := SetNonblock(fds[0]); err != nil {
		t.Fatalf("set nonblock: %v", err)
	}
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestReadWouldBlockOnEmptyPipe(t *testing.T) {
	r, _ := pipePair(t)
	buf := make([]byte, 8)
	if _, err := Read(r, buf); !errors.Is(err, ErrWouldBlock) {
		t.Fatalf("expected ErrWouldBlock, got %v", err)
	}
}

func TestReadDrainsReadyBytes(t *testing.T) {
	r, w := pipePair(t)
	unix.Write(w, []byte("abc"))
	buf := make([]byte, 8)
	n, err := Read(r, buf)
	if err != nil || n != 3 {
		t.Fatalf("n=%d err=%v", n, err)
	}
}

func TestReadReportsEOF(t *testing.T) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer unix.Close(fds[0])
	if err := SetNonblock(fds[0]); err != nil {
		t.Fatalf("set nonblock: %v", err)
	}
	unix.Close(fds[1])
	buf := make([]byte, 8)
	if _, err := Read(fds[0], buf); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestWaitReadableTimesOut(t *testing.T) {
	r, _ := pipePair(t)
	start := time.Now()
	ready, err := WaitReadable(r, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if ready {
		t.Fatal("nothing to read, yet ready")
	}
	if time.Since(start) < 15*time.Millisecond {
		t.Fatal("wait returned too early")
	}
}

func TestWaitReadableWakesOnData(t *testing.T) {
	r, w := pipePair(t)
	go func() {
		time.Sleep(5 * time.Millisecond)
		unix.Write(w, []byte{'x'})
	}()
	ready, err := WaitReadable(r, time.Second)
	if err != nil || !ready {
		t.Fatalf("ready=%v err=%v", ready, err)
	}
}
