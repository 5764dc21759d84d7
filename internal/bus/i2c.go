package bus

import (
	"errors"
	"sync"

	"tinygo.org/x/drivers"
)

// DefaultI2CAddr is the address strapped on the CJMCU-3935 breakout.
const DefaultI2CAddr = 0x03

// I2C is a Transport over an I2C bus. The chip accepts a one-byte
// register pointer followed by a sequential read.
type I2C struct {
	bus    drivers.I2C
	addr   uint16
	closer func() error
	once   sync.Once
}

// NewI2C wraps an I2C bus. closer may be nil.
func NewI2C(bus drivers.I2C, addr uint16, closer func() error) *I2C {
	return &I2C{bus: bus, addr: addr, closer: closer}
}

// ReadBlock reads length registers starting at start.
func (t *I2C) ReadBlock(start, length byte) ([]byte, error) {
	if length == 0 {
		return nil, readError(start, errors.New("zero length read"))
	}
	buf := make([]byte, length)
	if err := t.bus.Tx(t.addr, []byte{start}, buf); err != nil {
		return nil, readError(start, err)
	}
	return buf, nil
}

// WriteRegister writes value to reg.
func (t *I2C) WriteRegister(reg, value byte) error {
	if err := t.bus.Tx(t.addr, []byte{reg, value}, nil); err != nil {
		return writeError(reg, err)
	}
	return nil
}

// Close closes the bus once.
func (t *I2C) Close() error {
	var err error
	t.once.Do(func() {
		if t.closer != nil {
			err = t.closer()
		}
	})
	return err
}
