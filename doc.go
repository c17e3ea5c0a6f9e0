// Package driverbase is a byte-stream driver framework for packet-oriented
// communication over unreliable or stream-based transports: serial lines,
// pipes, sockets, in-memory channels.
//
// On top of a raw byte source it provides framed reads: callers supply a
// FrameExtractor describing their wire format and obtain whole packets with
// bounded-latency timeouts, automatic garbage skipping and byte-accurate
// statistics. The engine behaves identically whether it is fed by a
// non-blocking descriptor or by directly pushed buffers, so protocol drivers
// can be exercised in tests without any I/O.
//
// Typical use:
//
//	drv := driverbase.New(1024, framer.Terminated([]byte{'\n'}, 1024))
//	if err := drv.OpenURI("serial:///dev/ttyUSB0:115200"); err != nil {
//		...
//	}
//	defer drv.Close()
//
//	buf := make([]byte, 1024)
//	n, err := drv.ReadPacket(buf, 500*time.Millisecond)
package driverbase
