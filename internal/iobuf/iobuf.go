// Package iobuf implements the bounded input buffer backing a packet driver.
//
// The buffer is linear with lazy compaction: bytes are appended at the tail
// and dropped from the head, and the storage is only compacted when an append
// would otherwise run past the end of the allocation. Bytes() always returns
// a single contiguous view, which frame detectors require.
package iobuf

import "errors"

var ErrFull = errors.New("iobuf: buffer full")

// Buffer accumulates unread transport bytes up to a fixed capacity.
// The zero value is not usable; construct with New.
type Buffer struct {
	data  []byte
	start int
	size  int
}

func New(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{data: make([]byte, capacity)}
}

func (b *Buffer) Cap() int { return len(b.data) }

func (b *Buffer) Len() int { return b.size }

// Bytes returns the unread bytes as one contiguous slice. The slice aliases
// the buffer storage and is invalidated by the next Append, Drop or Clear.
func (b *Buffer) Bytes() []byte {
	return b.data[b.start : b.start+b.size]
}

// Append adds p at the tail. It fails with ErrFull if the buffer cannot hold
// the additional bytes; in that case the buffer is left unchanged.
func (b *Buffer) Append(p []byte) error {
	if b.size+len(p) > len(b.data) {
		return ErrFull
	}
	if b.start+b.size+len(p) > len(b.data) {
		b.compact()
	}
	copy(b.data[b.start+b.size:], p)
	b.size += len(p)
	return nil
}

// Drop removes the first n unread bytes. Dropping more than Len removes
// everything.
func (b *Buffer) Drop(n int) {
	if n >= b.size {
		b.start = 0
		b.size = 0
		return
	}
	if n < 0 {
		return
	}
	b.start += n
	b.size -= n
}

func (b *Buffer) Clear() {
	b.start = 0
	b.size = 0
}

func (b *Buffer) compact() {
	copy(b.data, b.data[b.start:b.start+b.size])
	b.start = 0
}
