//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealIRQ watches the IRQ pin using Linux GPIO character device.
type RealIRQ struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewRealIRQ requests pin as a pulled-up input and calls handler on every
// falling edge. The AS3935 pulls IRQ low when an interrupt is pending.
// Edges are delivered one at a time from the gpiocdev watcher goroutine.
func NewRealIRQ(chipName string, pin int, handler func()) (*RealIRQ, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	line, err := chip.RequestLine(pin,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithFallingEdge,
		gpiocdev.WithConsumer("lightning-sensor"),
		gpiocdev.WithEventHandler(func(gpiocdev.LineEvent) { handler() }))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request IRQ pin %d: %w", pin, err)
	}

	return &RealIRQ{chip: chip, line: line}, nil
}

// Close stops edge detection and releases GPIO resources.
// Reconfigures the pin to a plain input with pull-down (matching Pi boot
// defaults) before closing.
func (r *RealIRQ) Close() error {
	var errs []error

	if r.line != nil {
		if err := r.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown, gpiocdev.WithoutEdges); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure IRQ pin: %w", err))
		}
		if err := r.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close IRQ pin: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealOutput is an output line, used as the SPI chip select.
type RealOutput struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewRealOutput requests pin as an output driven to initial.
func NewRealOutput(chipName string, pin int, initial int) (*RealOutput, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	line, err := chip.RequestLine(pin, gpiocdev.AsOutput(initial), gpiocdev.WithConsumer("lightning-sensor"))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request output pin %d: %w", pin, err)
	}

	return &RealOutput{chip: chip, line: line}, nil
}

// SetValue drives the line.
func (o *RealOutput) SetValue(v int) error {
	return o.line.SetValue(v)
}

// Close releases the line, leaving it as an input with pull-up so the
// chip select stays deasserted.
func (o *RealOutput) Close() error {
	var errs []error

	if o.line != nil {
		if err := o.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullUp); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure output pin: %w", err))
		}
		if err := o.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close output pin: %w", err))
		}
	}
	if o.chip != nil {
		if err := o.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
