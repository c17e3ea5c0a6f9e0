package driverbase

import (
	"errors"
	"net"
	"testing"
	"time"
)

func TestOpenURIRejectsMalformedURIs(t *testing.T) {
	drv := New(100, testExtractor)
	for _, uri := range []string{
		"",
		"no-scheme",
		"ftp://host:1",
		"serial:///dev/ttyUSB0",
		"serial:///dev/ttyUSB0:fast",
		"tcp://host",
		"tcp://host:notaport",
		"udp://host:99999",
	} {
		if err := drv.OpenURI(uri); !errors.Is(err, ErrBadURI) {
			t.Fatalf("OpenURI(%q) = %v, want ErrBadURI", uri, err)
		}
	}
	if drv.IsValid() {
		t.Fatal("failed opens must not install a source")
	}
}

func TestOpenTCPRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	msg := []byte{0, 'a', 'b', 0}
	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conn.Write(msg)
		accepted <- conn
	}()

	drv := New(100, testExtractor)
	addr := ln.Addr().(*net.TCPAddr)
	if err := drv.OpenTCP("127.0.0.1", addr.Port); err != nil {
		t.Fatalf("open tcp: %v", err)
	}
	defer drv.Close()
	if !drv.IsValid() {
		t.Fatal("driver should hold a handle source")
	}

	buf := make([]byte, 100)
	n, err := drv.ReadPacket(buf, time.Second)
	if err != nil {
		t.Fatalf("read packet: %v", err)
	}
	if n != 4 {
		t.Fatalf("n=%d, want 4", n)
	}
	conn := <-accepted
	defer conn.Close()

	if err := drv.WritePacket(msg, time.Second); err != nil {
		t.Fatalf("write packet: %v", err)
	}
	got := make([]byte, 10)
	conn.SetReadDeadline(time.Now().Add(time.Second))
	rn, err := conn.Read(got)
	if err != nil || rn != 4 {
		t.Fatalf("peer read %d bytes, err %v", rn, err)
	}
	requireStats(t, drv, 4, 0, 4)
}

func TestOpenURIParsesSerialDeviceAndBaud(t *testing.T) {
	// No serial hardware in CI; a bad baud rate must be caught during
	// parsing, before any device access.
	drv := New(100, testExtractor)
	if err := drv.OpenURI("serial:///dev/ttyUSB0:12abc"); !errors.Is(err, ErrBadURI) {
		t.Fatalf("expected ErrBadURI for bad baud, got %v", err)
	}
}
