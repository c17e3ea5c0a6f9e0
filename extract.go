package driverbase

// FrameExtractor classifies the leading bytes of the input buffer. Given the
// current contiguous view it returns r with:
//
//	r > 0: the first r bytes form one complete frame
//	r == 0: undetermined, more bytes are needed
//	r < 0: the first -r bytes are garbage and no frame starts inside them
//
// The extractor must tolerate an empty view (return 0), must not retain the
// slice, and must be deterministic: it is consulted repeatedly on the same
// prefix. |r| larger than the view is a contract violation and fails the
// current read with ErrBufferCorrupt.
type FrameExtractor func(buffer []byte) int

// scan walks the buffer view with the extractor, accumulating garbage skips.
// It does not commit anything: on success the frame occupies
// view[skipped : skipped+length], on miss length is zero and skipped is the
// garbage prefix to discard.
func (d *Driver) scan() (skipped, length int, err error) {
	view := d.buf.Bytes()
	for skipped < len(view) {
		rest := view[skipped:]
		r := d.extract(rest)
		switch {
		case r > len(rest), -r > len(rest):
			return 0, 0, ErrBufferCorrupt
		case r > 0:
			return skipped, r, nil
		case r == 0:
			return skipped, 0, nil
		default:
			skipped += -r
		}
	}
	return skipped, 0, nil
}

// extractPacket applies the configured extraction mode, committing garbage
// drops and statistics as it goes. It returns the packet bytes in the
// driver's side slot, or nil when no complete frame is available. Bytes of
// frames drained but superseded under extract-last mode still count as
// GoodRx.
func (d *Driver) extractPacket() ([]byte, error) {
	var packet []byte
	for {
		skipped, length, err := d.scan()
		if err != nil {
			return nil, err
		}
		if length == 0 {
			d.commitGarbage(skipped)
			return packet, nil
		}
		view := d.buf.Bytes()
		packet = d.frame[:copy(d.frame, view[skipped:skipped+length])]
		d.commitGarbage(skipped)
		d.addGoodRx(length)
		d.buf.Drop(length)
		if !d.extractLast {
			return packet, nil
		}
	}
}

func (d *Driver) commitGarbage(n int) {
	if n == 0 {
		return
	}
	d.log.Debug().Int("bytes", n).Msg("discarding garbage")
	d.addBadRx(n)
	d.buf.Drop(n)
}
