package bus

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
	"tinygo.org/x/drivers"
)

// DefaultSPIHz is the SPI clock used when none is configured. The chip
// tolerates up to 2MHz.
const DefaultSPIHz = 1_000_000

var (
	_ drivers.I2C = i2c.Bus(nil)
	_ drivers.SPI = (*spiConn)(nil)
)

// OpenI2C opens a Linux I2C bus by name ("" for the first one, or "1" for
// /dev/i2c-1) and returns a Transport addressing the chip at addr.
func OpenI2C(name string, addr uint16) (*I2C, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init host drivers: %w", err)
	}
	b, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", name, err)
	}
	return NewI2C(b, addr, b.Close), nil
}

// OpenSPI opens a Linux SPI port in mode 1 with hardware chip select
// disabled; cs is driven by the transport instead.
func OpenSPI(name string, hz int64, cs OutputPin) (*SPI, error) {
	if hz <= 0 {
		hz = DefaultSPIHz
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init host drivers: %w", err)
	}
	p, err := spireg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open spi port %q: %w", name, err)
	}
	c, err := p.Connect(physic.Frequency(hz)*physic.Hertz, spi.Mode1|spi.NoCS, 8)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("connect spi port %q: %w", name, err)
	}
	if err := cs.SetValue(1); err != nil {
		p.Close()
		return nil, fmt.Errorf("release cs: %w", err)
	}
	return NewSPI(&spiConn{conn: c}, cs, p.Close), nil
}

// spiConn adapts a periph connection to drivers.SPI.
type spiConn struct {
	conn spi.Conn
}

func (c *spiConn) Tx(w, r []byte) error {
	if r != nil && len(r) != len(w) {
		return fmt.Errorf("spi: mismatched buffers %d/%d", len(w), len(r))
	}
	return c.conn.Tx(w, r)
}

func (c *spiConn) Transfer(b byte) (byte, error) {
	r := make([]byte, 1)
	if err := c.conn.Tx([]byte{b}, r); err != nil {
		return 0, err
	}
	return r[0], nil
}
