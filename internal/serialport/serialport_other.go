//go:build !linux

package serialport

import "errors"

// Open is only implemented on Linux; the serial examples this framework
// targets all run there.
func Open(device string, baud int) (int, error) {
	return -1, errors.New("serialport: serial devices are only supported on linux")
}
