package serialmux

import (
	"fmt"

	"go.bug.st/serial"
)

// OpenPort opens the serial device at path and applies the read timeout.
func OpenPort(path string, opts PortOptions) (SerialPorter, error) {
	normalized, err := opts.Normalize()
	if err != nil {
		return nil, err
	}
	mode, err := normalized.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", path, err)
	}
	if err := port.SetReadTimeout(normalized.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", path, err)
	}
	return port, nil
}

// PortOpener returns an Opener for a real serial device.
func PortOpener(path string, opts PortOptions) Opener {
	return func() (SerialPorter, error) {
		return OpenPort(path, opts)
	}
}
