//go:build linux

// Package serialport opens and configures serial devices for raw,
// non-blocking byte I/O. Configuration goes straight through termios; the
// port comes back in raw mode with VMIN=0/VTIME=0 so reads never block.
package serialport

import (
	"fmt"

	"golang.org/x/sys/unix"
)

var baudRates = map[int]uint32{
	1200:    unix.B1200,
	2400:    unix.B2400,
	4800:    unix.B4800,
	9600:    unix.B9600,
	19200:   unix.B19200,
	38400:   unix.B38400,
	57600:   unix.B57600,
	115200:  unix.B115200,
	230400:  unix.B230400,
	460800:  unix.B460800,
	921600:  unix.B921600,
	1000000: unix.B1000000,
}

// Open opens device at the given baud rate and returns a non-blocking
// descriptor configured 8N1 raw. The caller owns the descriptor.
func Open(device string, baud int) (int, error) {
	code, ok := baudRates[baud]
	if !ok {
		return -1, fmt.Errorf("serialport: unsupported baud rate %d", baud)
	}
	fd, err := unix.Open(device, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		return -1, fmt.Errorf("serialport: open %s: %w", device, err)
	}
	if err := configure(fd, code); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("serialport: configure %s: %w", device, err)
	}
	return fd, nil
}

func configure(fd int, speed uint32) error {
	tio, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return err
	}
	// Raw 8N1, modem status lines ignored.
	tio.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	tio.Oflag &^= unix.OPOST
	tio.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	tio.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB | unix.CBAUD
	tio.Cflag |= unix.CS8 | unix.CLOCAL | unix.CREAD | speed
	tio.Ispeed = speed
	tio.Ospeed = speed
	// Non-blocking semantics belong to O_NONBLOCK, not to VMIN/VTIME.
	tio.Cc[unix.VMIN] = 0
	tio.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, tio); err != nil {
		return err
	}
	return unix.IoctlSetInt(fd, unix.TCFLSH, unix.TCIOFLUSH)
}
