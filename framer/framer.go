// Package framer provides ready-made frame extractors for common wire
// formats: terminator-delimited lines, start/end marker protocols and
// length-prefixed binary frames. Each constructor returns a
// driverbase.FrameExtractor honoring the signed-result convention, so they
// plug straight into a Driver.
package framer

import (
	"bytes"
	"encoding/binary"

	driverbase "github.com/Brazilian-Institute-of-Robotics/ros-driver-base"
)

// Terminated frames streams where every byte belongs to some frame and
// frames end with the given terminator (lines, NMEA-style sentences). The
// terminator is part of the returned frame. max bounds the frame length; a
// run of max bytes without a terminator is discarded as garbage so the
// stream can resynchronize.
func Terminated(terminator []byte, max int) driverbase.FrameExtractor {
	if len(terminator) == 0 {
		panic("framer: empty terminator")
	}
	if max < len(terminator) {
		panic("framer: max smaller than terminator")
	}
	return func(buffer []byte) int {
		if i := bytes.Index(buffer, terminator); i >= 0 {
			n := i + len(terminator)
			if n > max {
				return -n
			}
			return n
		}
		if len(buffer) >= max {
			return -(len(buffer) - len(terminator) + 1)
		}
		return 0
	}
}

// Delimited frames protocols with an explicit start marker and end marker,
// both part of the frame (GT06-style trackers, SLIP-like links). Bytes
// before a start marker are garbage. max bounds the frame length and forces
// resynchronization past a start marker that never completes.
func Delimited(start, end []byte, max int) driverbase.FrameExtractor {
	if len(start) == 0 || len(end) == 0 {
		panic("framer: empty delimiter")
	}
	return func(buffer []byte) int {
		i := bytes.Index(buffer, start)
		if i < 0 {
			// Keep a tail that may be the beginning of a start marker.
			if idx := partialSuffix(buffer, start); idx > 0 {
				return -idx
			}
			return 0
		}
		if i > 0 {
			return -i
		}
		rest := buffer[len(start):]
		j := bytes.Index(rest, end)
		if j < 0 {
			if len(buffer) >= max {
				// Oversized candidate: drop the start marker to resync.
				return -len(start)
			}
			return 0
		}
		n := len(start) + j + len(end)
		if n > max {
			return -len(start)
		}
		return n
	}
}

// partialSuffix returns the index where a trailing partial occurrence of
// marker begins, or len(buffer) when the tail cannot start one.
func partialSuffix(buffer, marker []byte) int {
	maxTail := len(marker) - 1
	if maxTail > len(buffer) {
		maxTail = len(buffer)
	}
	for tail := maxTail; tail > 0; tail-- {
		if bytes.Equal(buffer[len(buffer)-tail:], marker[:tail]) {
			return len(buffer) - tail
		}
	}
	return len(buffer)
}

// LengthPrefixConfig describes a binary frame whose total size is derived
// from a length field inside a fixed header.
type LengthPrefixConfig struct {
	// Magic, when set, must open every frame; bytes that do not match are
	// garbage.
	Magic []byte
	// HeaderLen is the fixed header size in bytes; the length field must lie
	// inside it.
	HeaderLen int
	// LengthOffset and LengthSize (1, 2 or 4 bytes, big-endian) locate the
	// length field within the header.
	LengthOffset int
	LengthSize   int
	// LengthAdjust is added to the decoded value to obtain the total frame
	// size including the header (e.g. HeaderLen when the field counts only
	// the payload).
	LengthAdjust int
	// Max rejects absurd lengths so one corrupt header cannot stall the
	// stream.
	Max int
}

// LengthPrefix frames binary protocols with a length field in a fixed
// header, the layout used by most telemetry and RPC framings.
func LengthPrefix(cfg LengthPrefixConfig) driverbase.FrameExtractor {
	switch cfg.LengthSize {
	case 1, 2, 4:
	default:
		panic("framer: length size must be 1, 2 or 4")
	}
	if cfg.LengthOffset+cfg.LengthSize > cfg.HeaderLen {
		panic("framer: length field outside header")
	}
	if cfg.Max < cfg.HeaderLen {
		panic("framer: max smaller than header")
	}
	return func(buffer []byte) int {
		if len(cfg.Magic) > 0 {
			n := len(cfg.Magic)
			if n > len(buffer) {
				n = len(buffer)
			}
			if !bytes.Equal(buffer[:n], cfg.Magic[:n]) {
				return -1
			}
			if n < len(cfg.Magic) {
				return 0
			}
		}
		if len(buffer) < cfg.HeaderLen {
			return 0
		}
		field := buffer[cfg.LengthOffset : cfg.LengthOffset+cfg.LengthSize]
		var value int
		switch cfg.LengthSize {
		case 1:
			value = int(field[0])
		case 2:
			value = int(binary.BigEndian.Uint16(field))
		case 4:
			value = int(binary.BigEndian.Uint32(field))
		}
		total := value + cfg.LengthAdjust
		if total < cfg.HeaderLen || total > cfg.Max {
			// Corrupt header: shift one byte and hunt for the next frame.
			return -1
		}
		if len(buffer) < total {
			return 0
		}
		return total
	}
}
