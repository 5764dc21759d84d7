package bus

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"tinygo.org/x/drivers"
)

// CSSettle is the minimum wait on each side of a chip-select edge.
const CSSettle = time.Millisecond

// SPI command byte layout: bits 7:6 select the mode, bits 5:0 the address.
const (
	spiModeWrite = 0x00
	spiModeRead  = 0x40
	spiAddrMask  = 0x3F
)

// OutputPin drives a chip-select line. *gpiocdev.Line satisfies it.
type OutputPin interface {
	SetValue(value int) error
}

// SPI is a Transport over an SPI bus with a software-driven chip select.
// Chip select is active low.
type SPI struct {
	conn   drivers.SPI
	cs     OutputPin
	sleep  func(time.Duration)
	closer func() error
	once   sync.Once
}

// NewSPI wraps an SPI connection. closer may be nil.
func NewSPI(conn drivers.SPI, cs OutputPin, closer func() error) *SPI {
	return &SPI{conn: conn, cs: cs, sleep: time.Sleep, closer: closer}
}

// SetSleep replaces the settle delay function. Intended for tests.
func (t *SPI) SetSleep(sleep func(time.Duration)) {
	t.sleep = sleep
}

// ReadBlock reads length registers starting at start.
func (t *SPI) ReadBlock(start, length byte) ([]byte, error) {
	if length == 0 {
		return nil, readError(start, errors.New("zero length read"))
	}
	if start > spiAddrMask {
		return nil, readError(start, errors.New("address out of SPI range"))
	}
	w := make([]byte, int(length)+1)
	w[0] = spiModeRead | start
	r := make([]byte, len(w))
	if err := t.transfer(w, r); err != nil {
		return nil, readError(start, err)
	}
	return r[1:], nil
}

// WriteRegister writes value to reg.
func (t *SPI) WriteRegister(reg, value byte) error {
	if reg > spiAddrMask {
		return writeError(reg, errors.New("address out of SPI range"))
	}
	if err := t.transfer([]byte{spiModeWrite | reg, value}, nil); err != nil {
		return writeError(reg, err)
	}
	return nil
}

// transfer brackets one transaction with chip select. CS is released even
// when the transfer fails.
func (t *SPI) transfer(w, r []byte) error {
	if err := t.cs.SetValue(0); err != nil {
		return fmt.Errorf("assert cs: %w", err)
	}
	t.sleep(CSSettle)
	txErr := t.conn.Tx(w, r)
	t.sleep(CSSettle)
	if err := t.cs.SetValue(1); err != nil && txErr == nil {
		return fmt.Errorf("release cs: %w", err)
	}
	return txErr
}

// Close closes the bus once.
func (t *SPI) Close() error {
	var err error
	t.once.Do(func() {
		if t.closer != nil {
			err = t.closer()
		}
	})
	return err
}
