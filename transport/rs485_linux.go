//go:build linux

package transport

import (
	"unsafe"

	"go.bug.st/serial"
	"golang.org/x/sys/unix"
)

const (
	tiocsrs485 = 0x542F
	tiocgrs485 = 0x542E

	serialRS485Enabled = 1 << 0
)

type rs485Flags struct {
	flags              uint32
	delayRTSBeforeSend uint32
	delayRTSAfterSend  uint32
	padding            [5]uint32
}

// enableRS485 sets the RS-485 direction-control enable flag via
// TIOCSRS485 on ports that expose their file descriptor. Ports that
// don't (the common case with go.bug.st/serial) are left untouched.
func enableRS485(port serial.Port) error {
	capable, ok := port.(rs485Capable)
	if !ok {
		return nil
	}
	cfg := rs485Flags{flags: serialRS485Enabled}
	return ioctl(capable.Fd(), tiocsrs485, unsafe.Pointer(&cfg))
}

// disableRS485 clears the enable flag on disconnect.
func disableRS485(port serial.Port) error {
	capable, ok := port.(rs485Capable)
	if !ok {
		return nil
	}
	cfg := rs485Flags{}
	return ioctl(capable.Fd(), tiocsrs485, unsafe.Pointer(&cfg))
}

func ioctl(fd uintptr, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}
