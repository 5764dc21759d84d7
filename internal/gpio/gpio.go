// Package gpio provides the AS3935 interrupt line and SPI chip-select
// output with hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// IRQ delivers interrupt edges from the sensor.
type IRQ interface {
	// Close stops edge delivery and releases GPIO resources.
	Close() error
}

// OutputPin is a single output line. It satisfies bus.OutputPin.
type OutputPin interface {
	SetValue(v int) error
	Close() error
}

// Defaults (BCM numbering).
const (
	DefaultChip   = "gpiochip0"
	DefaultPinIRQ = 22 // AS3935 IRQ
	DefaultPinCS  = 8  // SPI0 CE0, driven in software
)
