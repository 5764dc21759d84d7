// Package bus provides byte-register access to the AS3935 over I2C or SPI.
// The real buses are opened through periph.io; the fake is an in-memory
// register file for testing without hardware.
package bus

import "fmt"

// Transport reads and writes 8-bit registers on the chip.
type Transport interface {
	// ReadBlock returns length consecutive registers starting at start.
	ReadBlock(start, length byte) ([]byte, error)

	// WriteRegister stores value in a single register.
	WriteRegister(reg, value byte) error

	// Close releases the underlying bus.
	Close() error
}

// TransportError reports a failed bus transfer (bus error, NACK, short read).
type TransportError struct {
	Op  string // "read" or "write"
	Reg byte
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("bus %s 0x%02X: %v", e.Op, e.Reg, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func readError(reg byte, err error) error {
	return &TransportError{Op: "read", Reg: reg, Err: err}
}

func writeError(reg byte, err error) error {
	return &TransportError{Op: "write", Reg: reg, Err: err}
}
