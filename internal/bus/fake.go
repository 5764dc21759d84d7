package bus

import (
	"errors"
	"sync"
)

// Power-on register values of the AS3935.
var powerOnDefaults = map[byte]byte{
	0x00: 0x24,
	0x01: 0x22,
	0x02: 0xC2,
	0x03: 0x00,
	0x07: 0x3F,
}

// directCommand is the value the chip expects in its command registers.
const directCommand = 0x96

// Write is a single recorded register write.
type Write struct {
	Reg   byte
	Value byte
}

// Fake is an in-memory AS3935 register file implementing Transport.
// Safe for concurrent use.
type Fake struct {
	mu   sync.Mutex
	regs [0x40]byte

	// Writes holds every accepted write in order.
	Writes []Write
	// Reads counts ReadBlock calls that reached the register file.
	Reads int

	// ReadError, if set, is returned by ReadBlock.
	ReadError error
	// WriteError, if set, is returned by WriteRegister.
	WriteError error
	// FailAfterWrites, if > 0, makes every write after that many accepted
	// writes fail.
	FailAfterWrites int
	// CalibrationNotOK makes CALIB_RCO report TRCO/SRCO failure.
	CalibrationNotOK bool
	// Closed tracks if Close was called.
	Closed bool
}

// NewFake creates a register file holding the chip's power-on values.
func NewFake() *Fake {
	f := &Fake{}
	f.preset()
	return f
}

func (f *Fake) preset() {
	f.regs = [0x40]byte{}
	for reg, v := range powerOnDefaults {
		f.regs[reg] = v
	}
}

// ReadBlock returns a copy of the requested registers.
func (f *Fake) ReadBlock(start, length byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadError != nil {
		return nil, readError(start, f.ReadError)
	}
	if length == 0 || int(start)+int(length) > len(f.regs) {
		return nil, readError(start, errors.New("read outside register file"))
	}
	f.Reads++
	out := make([]byte, length)
	copy(out, f.regs[start:int(start)+int(length)])
	return out, nil
}

// WriteRegister stores value, applying the chip's read-only and command
// register behaviour.
func (f *Fake) WriteRegister(reg, value byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteError != nil {
		return writeError(reg, f.WriteError)
	}
	if f.FailAfterWrites > 0 && len(f.Writes) >= f.FailAfterWrites {
		return writeError(reg, errors.New("simulated bus failure"))
	}
	if int(reg) >= len(f.regs) {
		return writeError(reg, errors.New("write outside register file"))
	}
	f.Writes = append(f.Writes, Write{Reg: reg, Value: value})

	switch reg {
	case 0x03:
		// Interrupt bits are read-only.
		f.regs[reg] = value&0xF0 | f.regs[reg]&0x0F
	case 0x3C:
		if value == directCommand {
			f.preset()
		}
	case 0x3D:
		if value == directCommand {
			status := byte(0x80)
			if f.CalibrationNotOK {
				status = 0x40
			}
			f.regs[0x3A] = status
			f.regs[0x3B] = status
		}
	default:
		f.regs[reg] = value
	}
	return nil
}

// Set forces a register value, bypassing write rules. Used to script
// interrupt and telemetry registers.
func (f *Fake) Set(reg, value byte) {
	f.mu.Lock()
	f.regs[reg] = value
	f.mu.Unlock()
}

// Reg returns the current value of a register.
func (f *Fake) Reg(reg byte) byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.regs[reg]
}

// WriteLog returns a copy of the recorded writes.
func (f *Fake) WriteLog() []Write {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Write(nil), f.Writes...)
}

// ResetLog clears recorded writes and read counts.
func (f *Fake) ResetLog() {
	f.mu.Lock()
	f.Writes = nil
	f.Reads = 0
	f.mu.Unlock()
}

// Close marks the fake as closed.
func (f *Fake) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}
