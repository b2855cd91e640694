//go:build !linux

package transport

import "go.bug.st/serial"

// enableRS485 is a no-op outside Linux; TIOCSRS485 doesn't exist elsewhere.
func enableRS485(port serial.Port) error { return nil }

// disableRS485 is a no-op outside Linux.
func disableRS485(port serial.Port) error { return nil }
