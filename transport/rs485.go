package transport

// rs485Capable is implemented by serial ports that can expose their
// underlying file descriptor for the Linux RS-485 ioctls. go.bug.st/serial
// does not expose one, so on every platform this degrades to a no-op
// unless some future port implementation adds it.
// Ref: spec "Unix RS-485 IOCTL" - "feature-gate per platform and degrade
// to a no-op on unsupported OSes."
type rs485Capable interface {
	Fd() uintptr
}
