package driverbase

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/Brazilian-Institute-of-Robotics/ros-driver-base/internal/serialport"
)

// OpenURI installs an owned handle source described by uri:
//
//	serial:///dev/ttyUSB0:115200
//	tcp://host:port
//	udp://host:port
//	file:///path/to/fifo
//
// Any previously installed source is closed first (if owned).
func (d *Driver) OpenURI(uri string) error {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return fmt.Errorf("%w: %q", ErrBadURI, uri)
	}
	switch scheme {
	case "serial":
		idx := strings.LastIndexByte(rest, ':')
		if idx <= 0 || idx == len(rest)-1 {
			return fmt.Errorf("%w: serial needs device:baud, got %q", ErrBadURI, uri)
		}
		baud, err := strconv.Atoi(rest[idx+1:])
		if err != nil {
			return fmt.Errorf("%w: bad baud rate in %q", ErrBadURI, uri)
		}
		return d.OpenSerial(rest[:idx], baud)
	case "tcp", "udp":
		host, portStr, err := net.SplitHostPort(rest)
		if err != nil {
			return fmt.Errorf("%w: %q: %v", ErrBadURI, uri, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("%w: bad port in %q", ErrBadURI, uri)
		}
		if scheme == "tcp" {
			return d.OpenTCP(host, port)
		}
		return d.OpenUDP(host, port)
	case "file":
		return d.OpenFile(rest)
	default:
		return fmt.Errorf("%w: unknown scheme %q", ErrBadURI, scheme)
	}
}

// OpenSerial opens a serial device in raw 8N1 mode and installs it as an
// owned source.
func (d *Driver) OpenSerial(device string, baud int) error {
	fd, err := serialport.Open(device, baud)
	if err != nil {
		return &IOError{Op: "open serial", Err: err}
	}
	guard := NewFileGuard(fd)
	if err := d.SetFileDescriptor(fd, true); err != nil {
		guard.Close()
		return err
	}
	guard.Release()
	return nil
}

// OpenTCP connects a stream socket to host:port and installs it as an owned
// source.
func (d *Driver) OpenTCP(host string, port int) error {
	return d.openSocket("tcp", unix.SOCK_STREAM, host, port)
}

// OpenUDP connects a datagram socket to host:port and installs it as an
// owned source. The socket only exchanges datagrams with that peer.
func (d *Driver) OpenUDP(host string, port int) error {
	return d.openSocket("udp", unix.SOCK_DGRAM, host, port)
}

func (d *Driver) openSocket(network string, socktype int, host string, port int) error {
	ips, err := net.LookupIP(host)
	if err != nil {
		return &IOError{Op: "resolve " + host, Err: err}
	}
	if len(ips) == 0 {
		return &IOError{Op: "resolve " + host, Err: errors.New("no addresses")}
	}
	sa, family := sockaddrFor(ips[0], port)
	fd, err := unix.Socket(family, socktype, 0)
	if err != nil {
		return &IOError{Op: "socket", Err: err}
	}
	guard := NewFileGuard(fd)
	for {
		err = unix.Connect(fd, sa)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		guard.Close()
		return &IOError{Op: fmt.Sprintf("connect %s %s:%d", network, host, port), Err: err}
	}
	if err := d.SetFileDescriptor(fd, true); err != nil {
		guard.Close()
		return err
	}
	guard.Release()
	return nil
}

func sockaddrFor(ip net.IP, port int) (unix.Sockaddr, int) {
	if ip4 := ip.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: port}
		copy(sa.Addr[:], ip4)
		return sa, unix.AF_INET
	}
	sa := &unix.SockaddrInet6{Port: port}
	copy(sa.Addr[:], ip.To16())
	return sa, unix.AF_INET6
}

// OpenFile opens a path (typically a FIFO or character device) read/write
// and installs it as an owned source.
func (d *Driver) OpenFile(path string) error {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		return &IOError{Op: "open " + path, Err: err}
	}
	guard := NewFileGuard(fd)
	if err := d.SetFileDescriptor(fd, true); err != nil {
		guard.Close()
		return err
	}
	guard.Release()
	return nil
}
