package as3935

import "fmt"

// IRQOutput selects which internal oscillator is displayed on the IRQ pin.
type IRQOutput string

const (
	IRQNone IRQOutput = "NONE"
	IRQTRCO IRQOutput = "TRCO"
	IRQSRCO IRQOutput = "SRCO"
	IRQLCO  IRQOutput = "LCO"
)

func (o IRQOutput) bits() (byte, error) {
	switch o {
	case IRQNone, "":
		return 0x00, nil
	case IRQTRCO:
		return 0x20, nil
	case IRQSRCO:
		return 0x40, nil
	case IRQLCO:
		return 0x80, nil
	}
	return 0, &ConfigError{Field: "irq_output", Value: string(o), Allowed: "NONE, TRCO, SRCO or LCO"}
}

// decodeIRQOutput reports the highest display bit set. The chip expects at
// most one of them.
func decodeIRQOutput(b byte) IRQOutput {
	switch {
	case b&0x80 != 0:
		return IRQLCO
	case b&0x40 != 0:
		return IRQSRCO
	case b&0x20 != 0:
		return IRQTRCO
	}
	return IRQNone
}

// Capacitance limits of the antenna tuning bank.
const (
	TuningCapStepPF = 8
	MaxTuningCapPF  = 120
)

// DeviceConfig holds every configurable field of the chip.
type DeviceConfig struct {
	Indoor            bool
	NoiseFloor        uint8 // 0..7
	WatchdogThreshold uint8 // 0..15
	SpikeRejection    uint8 // 0..15
	MinStrikes        int   // 1, 5, 9 or 16
	TuningCapSteps    uint8 // 0..15, 8pF each
	MaskDisturber     bool
	IRQOutput         IRQOutput
}

// DefaultConfig returns the profile applied after calibration when nothing
// else is configured: indoor, noise floor 2, watchdog 2, spike rejection 2,
// one strike, 96pF.
func DefaultConfig() DeviceConfig {
	return DeviceConfig{
		Indoor:            true,
		NoiseFloor:        2,
		WatchdogThreshold: 2,
		SpikeRejection:    2,
		MinStrikes:        1,
		TuningCapSteps:    TuningStepsForPF(96),
		IRQOutput:         IRQNone,
	}
}

// Validate checks every field against its bit width.
func (c DeviceConfig) Validate() error {
	if err := checkField("noise_floor", int(c.NoiseFloor), FieldNoiseFloor); err != nil {
		return err
	}
	if err := checkField("watchdog_threshold", int(c.WatchdogThreshold), FieldWatchdog); err != nil {
		return err
	}
	if err := checkField("spike_rejection", int(c.SpikeRejection), FieldSpikeRej); err != nil {
		return err
	}
	if err := checkField("tuning_cap_steps", int(c.TuningCapSteps), FieldTuningCap); err != nil {
		return err
	}
	if _, err := EncodeMinStrikes(c.MinStrikes); err != nil {
		return err
	}
	if _, err := c.IRQOutput.bits(); err != nil {
		return err
	}
	return nil
}

// TuningStepsForPF converts a capacitance to TUN_CAP steps. Values above
// 120pF clamp to 15; values between steps round down.
func TuningStepsForPF(pf int) uint8 {
	if pf <= 0 {
		return 0
	}
	if pf > MaxTuningCapPF {
		return uint8(MaxTuningCapPF / TuningCapStepPF)
	}
	return uint8(pf / TuningCapStepPF)
}

func checkField(name string, v int, f Field) error {
	if v < 0 || v > int(f.Max()) {
		return &ConfigError{Field: name, Value: v, Allowed: fmt.Sprintf("0..%d", f.Max())}
	}
	return nil
}
