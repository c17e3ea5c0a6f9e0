package driverbase

import (
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/Brazilian-Institute-of-Robotics/ros-driver-base/internal/fdio"
	"github.com/Brazilian-Institute-of-Robotics/ros-driver-base/internal/iobuf"
)

// MinInternalBufferSize is the smallest internal buffer a Driver will accept;
// smaller requests are clamped.
const MinInternalBufferSize = 16

const scratchSize = 4096

// Driver turns a raw byte source into a framed packet reader. The framing
// itself is delegated to a FrameExtractor; the driver owns the sliding input
// buffer, the deadline clock and the byte accounting.
//
// A Driver is single-context: it is not safe for concurrent use, and its
// descriptor must not be shared with another reader for the driver's
// lifetime.
type Driver struct {
	buf     *iobuf.Buffer
	extract FrameExtractor

	// fd is the handle source, -1 in the pushed variant.
	fd     int
	ownsFD bool

	extractLast bool
	writeSink   func([]byte) error

	frame   []byte
	scratch []byte

	stats Status
	log   zerolog.Logger
}

// New creates a driver with the given internal buffer capacity and frame
// extractor. The driver starts in the pushed variant; install a descriptor
// with SetFileDescriptor or one of the Open helpers.
func New(internalBufferSize int, extract FrameExtractor) *Driver {
	if extract == nil {
		panic("driverbase: nil frame extractor")
	}
	if internalBufferSize < MinInternalBufferSize {
		internalBufferSize = MinInternalBufferSize
	}
	return &Driver{
		buf:     iobuf.New(internalBufferSize),
		extract: extract,
		fd:      -1,
		frame:   make([]byte, internalBufferSize),
		scratch: make([]byte, scratchSize),
		stats:   Status{Stamp: time.Now()},
		log:     zerolog.Nop(),
	}
}

// SetLogger enables byte-level tracing; the default logger is a no-op.
func (d *Driver) SetLogger(log zerolog.Logger) { d.log = log }

// SetExtractLastPacket switches between returning the first available frame
// (default) and draining the buffer to return only the newest one.
func (d *Driver) SetExtractLastPacket(enable bool) { d.extractLast = enable }

// SetWriteSink installs a collector for WritePacket in the pushed variant.
func (d *Driver) SetWriteSink(sink func([]byte) error) { d.writeSink = sink }

// IsValid reports whether a handle source is active.
func (d *Driver) IsValid() bool { return d.fd >= 0 }

// FileDescriptor returns the active handle, or -1 in the pushed variant.
func (d *Driver) FileDescriptor() int { return d.fd }

// InternalBufferSize returns the capacity of the input buffer.
func (d *Driver) InternalBufferSize() int { return d.buf.Cap() }

// SetFileDescriptor installs fd as the driver's byte source, switching the
// descriptor to non-blocking mode. With owned set, the driver closes it on
// Close or when another source replaces it.
func (d *Driver) SetFileDescriptor(fd int, owned bool) error {
	if fd < 0 {
		return &IOError{Op: "set file descriptor", Err: errors.New("negative descriptor")}
	}
	if err := fdio.SetNonblock(fd); err != nil {
		return &IOError{Op: "set nonblocking", Err: err}
	}
	d.closeSource()
	d.fd = fd
	d.ownsFD = owned
	d.log.Debug().Int("fd", fd).Bool("owned", owned).Msg("handle source installed")
	return nil
}

// Close drops the current source, closing the descriptor if owned, and
// leaves the driver in the pushed variant. It is idempotent.
func (d *Driver) Close() error {
	return d.closeSource()
}

func (d *Driver) closeSource() error {
	if d.fd < 0 {
		return nil
	}
	fd, owned := d.fd, d.ownsFD
	d.fd = -1
	d.ownsFD = false
	if !owned {
		return nil
	}
	if err := fdio.Close(fd); err != nil {
		return &IOError{Op: "close", Err: err}
	}
	return nil
}

// PushInputRaw appends bytes directly to the input buffer (pushed variant and
// tests). Unlike the read loop's own drain, it does not recycle old bytes:
// overfilling fails with ErrBufferFull and leaves the buffer unchanged.
func (d *Driver) PushInputRaw(p []byte) error {
	if err := d.buf.Append(p); err != nil {
		return ErrBufferFull
	}
	return nil
}

// Clear empties the input buffer and discards any bytes already pending on
// the handle. Everything discarded is charged to BadRx.
func (d *Driver) Clear() error {
	d.commitGarbage(d.buf.Len())
	if d.fd < 0 {
		return nil
	}
	for {
		n, err := fdio.Read(d.fd, d.scratch)
		switch {
		case errors.Is(err, fdio.ErrWouldBlock), errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return &IOError{Op: "clear", Err: err}
		default:
			d.addBadRx(n)
		}
	}
}

// ReadPacket reads one packet into out with a single deadline for both the
// first byte and the complete frame. See ReadPacketWithFirstByte.
func (d *Driver) ReadPacket(out []byte, timeout time.Duration) (int, error) {
	return d.ReadPacketWithFirstByte(out, timeout, timeout)
}

// ReadPacketWithFirstByte reads one packet into out, returning its length.
//
// The total deadline bounds the whole call; the first-byte deadline applies
// only while no byte has been received within this call and the input buffer
// is empty, protecting against silent peers. When a deadline expires the
// returned *TimeoutError carries FirstByteTimeout if no byte was delivered
// during the call and the buffer is empty, PacketTimeout otherwise; partial
// frames stay buffered for the next call.
//
// A frame larger than out is dropped and fails with ErrBufferTooSmall after
// its bytes have been counted as GoodRx.
func (d *Driver) ReadPacketWithFirstByte(out []byte, total, firstByte time.Duration) (int, error) {
	if firstByte > total {
		firstByte = total
	}
	now := time.Now()
	deadlineTotal := now.Add(total)
	deadlineFirst := now.Add(firstByte)
	received := false

	for {
		sawEOF := false
		if d.fd >= 0 {
			got, eof, err := d.drainAvailable()
			if err != nil {
				return 0, err
			}
			received = received || got
			sawEOF = eof
		}

		packet, err := d.extractPacket()
		if err != nil {
			return 0, err
		}
		if packet != nil {
			n := copy(out, packet)
			if n < len(packet) {
				return 0, ErrBufferTooSmall
			}
			return n, nil
		}
		if sawEOF {
			return 0, ErrEOF
		}

		firstArmed := !received && d.buf.Len() == 0
		if d.fd < 0 {
			// Pushed variant: the buffer cannot grow within this call, so
			// there is nothing to wait for.
			return 0, d.timeoutError(firstArmed)
		}
		deadline := deadlineTotal
		if firstArmed && deadlineFirst.Before(deadline) {
			deadline = deadlineFirst
		}
		wait := time.Until(deadline)
		if wait <= 0 {
			return 0, d.timeoutError(firstArmed)
		}
		if _, err := fdio.WaitReadable(d.fd, wait); err != nil {
			return 0, &IOError{Op: "wait readable", Err: err}
		}
	}
}

func (d *Driver) timeoutError(firstByte bool) error {
	if firstByte {
		return &TimeoutError{Kind: FirstByteTimeout}
	}
	return &TimeoutError{Kind: PacketTimeout}
}

// drainAvailable moves every byte currently ready on the handle into the
// input buffer without blocking. It reports whether any byte arrived and
// whether the stream ended.
func (d *Driver) drainAvailable() (got, eof bool, err error) {
	for {
		n, rerr := fdio.Read(d.fd, d.scratch)
		switch {
		case errors.Is(rerr, fdio.ErrWouldBlock):
			return got, false, nil
		case errors.Is(rerr, io.EOF):
			return got, true, nil
		case rerr != nil:
			return got, false, &IOError{Op: "read", Err: rerr}
		}
		got = true
		d.appendIncoming(d.scratch[:n])
	}
}

// appendIncoming adds freshly read bytes, recycling the oldest buffered
// bytes when the buffer would overflow. Fresh bytes are the most likely to
// start a valid frame, so they win over stale ones; everything recycled is
// charged to BadRx.
func (d *Driver) appendIncoming(p []byte) {
	if len(p) > d.buf.Cap() {
		over := len(p) - d.buf.Cap()
		d.addBadRx(over)
		p = p[over:]
	}
	if excess := d.buf.Len() + len(p) - d.buf.Cap(); excess > 0 {
		d.log.Debug().Int("bytes", excess).Msg("input buffer overflow, recycling oldest bytes")
		d.addBadRx(excess)
		d.buf.Drop(excess)
	}
	// Cannot fail: the buffer has room now.
	_ = d.buf.Append(p)
}

// WritePacket writes p through the handle against a deadline, retrying
// non-blocking writes between writability waits. In the pushed variant the
// bytes go to the configured write sink, or are counted and discarded.
// The Tx counter advances by the number of bytes actually written.
func (d *Driver) WritePacket(p []byte, timeout time.Duration) error {
	if d.fd < 0 {
		if d.writeSink != nil {
			if err := d.writeSink(p); err != nil {
				return err
			}
		}
		d.addTx(len(p))
		return nil
	}
	deadline := time.Now().Add(timeout)
	written := 0
	for written < len(p) {
		n, err := fdio.Write(d.fd, p[written:])
		if err != nil && !errors.Is(err, fdio.ErrWouldBlock) {
			return &IOError{Op: "write", Err: err}
		}
		if n > 0 {
			written += n
			d.addTx(n)
			continue
		}
		wait := time.Until(deadline)
		if wait <= 0 {
			return &TimeoutError{Kind: PacketTimeout}
		}
		if _, err := fdio.WaitWritable(d.fd, wait); err != nil {
			return &IOError{Op: "wait writable", Err: err}
		}
	}
	return nil
}
