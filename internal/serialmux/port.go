package serialmux

import "io"

// SerialPorter defines the minimal interface needed for a serial port.
// This abstraction enables unit testing without real serial hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// Opener opens (or reopens) the transport. The Source calls it again after
// a read error when reconnecting is enabled.
type Opener func() (SerialPorter, error)
