// Package as3935 drives the AS3935 Franklin lightning sensor: register
// codec, calibration and configuration.
//
// Every register access reads the whole 0x00..0x08 block first and
// derives fields from that snapshot. Field writes are read-modify-write so
// unrelated bits in the same register survive.
package as3935

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/raupulus/rpi-pico-sensor-lightning-cjmcu-3935/internal/bus"
)

// SettleDelay is the minimum wait the chip needs after a calibration or
// display-toggle write.
const SettleDelay = 2 * time.Millisecond

// MaxNoiseFloor is the highest NF_LEV setting.
const MaxNoiseFloor = 7

// ErrCalibrationNotOK is reported when the chip flags an oscillator as not
// calibrated.
var ErrCalibrationNotOK = errors.New("oscillator calibration not ok")

// Telemetry is the strike data read after a lightning interrupt.
type Telemetry struct {
	DistanceKm uint8
	InRange    bool
	Energy     uint32
	NoiseFloor uint8
}

// Device is one AS3935 on a bus. All register sequences run under a single
// lock, so an interrupt handler and the control loop never interleave.
type Device struct {
	mu    sync.Mutex
	bus   bus.Transport
	sleep func(time.Duration)
}

// New creates a Device owning the transport.
func New(t bus.Transport) *Device {
	return &Device{bus: t, sleep: time.Sleep}
}

// SetSleep replaces the settle delay function. Intended for tests.
func (d *Device) SetSleep(sleep func(time.Duration)) {
	d.mu.Lock()
	d.sleep = sleep
	d.mu.Unlock()
}

// Close releases the transport.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bus.Close()
}

// Snapshot reads registers 0x00..0x08.
func (d *Device) Snapshot() (Snapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshot()
}

// Config reads back the current configuration.
func (d *Device) Config() (DeviceConfig, error) {
	s, err := d.Snapshot()
	if err != nil {
		return DeviceConfig{}, err
	}
	return s.Config(), nil
}

func (d *Device) snapshot() (Snapshot, error) {
	b, err := d.bus.ReadBlock(RegAFE, snapshotLen)
	if err != nil {
		return Snapshot{}, err
	}
	return SnapshotFrom(b)
}

// writeField performs a read-modify-write of one field. Caller holds d.mu.
func (d *Device) writeField(f Field, v byte) error {
	s, err := d.snapshot()
	if err != nil {
		return err
	}
	return d.bus.WriteRegister(f.Reg, f.Apply(s[f.Reg], v))
}

func (d *Device) setField(f Field, v byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writeField(f, v)
}

// PowerUp clears the power-down bit.
func (d *Device) PowerUp() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.writeField(FieldPowerDown, 0); err != nil {
		return err
	}
	d.sleep(SettleDelay)
	return nil
}

// PowerDown sets the power-down bit. Oscillators must be recalibrated
// after the next PowerUp.
func (d *Device) PowerDown() error {
	return d.setField(FieldPowerDown, 1)
}

// Reset restores every register to its power-on default.
func (d *Device) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.bus.WriteRegister(RegPresetDefault, DirectCommand); err != nil {
		return err
	}
	d.sleep(SettleDelay)
	return nil
}

type calibrationStep struct {
	name string
	run  func() error
}

// Calibrate runs the full power-up and calibration sequence and then
// applies cfg. The configuration is validated before the first write. On
// failure no further steps run and nothing is rolled back.
func (d *Device) Calibrate(cfg DeviceConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	steps := []calibrationStep{
		{"power up", func() error {
			return d.writeField(FieldPowerDown, 0)
		}},
		{"calibrate rco", func() error {
			return d.bus.WriteRegister(RegCalibRCO, DirectCommand)
		}},
		{"latch rco", func() error {
			if err := d.writeField(FieldDispSRCO, 1); err != nil {
				return err
			}
			d.sleep(SettleDelay)
			return d.writeField(FieldDispSRCO, 0)
		}},
		{"afe gain", func() error {
			return d.writeField(FieldAFEGain, afePattern(cfg.Indoor))
		}},
		{"tuning capacitance", func() error {
			return d.writeField(FieldTuningCap, cfg.TuningCapSteps)
		}},
		{"detection parameters", func() error {
			return d.applyParameters(cfg)
		}},
		{"verify", func() error {
			st, err := d.calibrationStatus()
			if err != nil {
				return err
			}
			if !st.OK() {
				return fmt.Errorf("%w: %+v", ErrCalibrationNotOK, st)
			}
			return nil
		}},
	}

	for i, step := range steps {
		if err := step.run(); err != nil {
			return &CalibrationError{Step: i + 1, Name: step.name, Err: err}
		}
		d.sleep(SettleDelay)
	}
	return nil
}

// CalibrateRCO recalibrates the internal oscillators without touching the
// rest of the configuration.
func (d *Device) CalibrateRCO() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.bus.WriteRegister(RegCalibRCO, DirectCommand); err != nil {
		return &CalibrationError{Step: 1, Name: "calibrate rco", Err: err}
	}
	d.sleep(SettleDelay)
	if err := d.writeField(FieldDispSRCO, 1); err != nil {
		return &CalibrationError{Step: 2, Name: "latch rco", Err: err}
	}
	d.sleep(SettleDelay)
	if err := d.writeField(FieldDispSRCO, 0); err != nil {
		return &CalibrationError{Step: 2, Name: "latch rco", Err: err}
	}
	d.sleep(SettleDelay)
	return nil
}

// CalibrationStatus reads the TRCO/SRCO calibration flags.
func (d *Device) CalibrationStatus() (CalibrationStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calibrationStatus()
}

func (d *Device) calibrationStatus() (CalibrationStatus, error) {
	b, err := d.bus.ReadBlock(RegTRCOStatus, 2)
	if err != nil {
		return CalibrationStatus{}, err
	}
	if len(b) < 2 {
		return CalibrationStatus{}, fmt.Errorf("short calibration status read: %d bytes", len(b))
	}
	return DecodeCalibrationStatus(b[0], b[1]), nil
}

// ApplyConfig writes every field of cfg without recalibrating.
func (d *Device) ApplyConfig(cfg DeviceConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.writeField(FieldAFEGain, afePattern(cfg.Indoor)); err != nil {
		return err
	}
	if err := d.writeField(FieldTuningCap, cfg.TuningCapSteps); err != nil {
		return err
	}
	return d.applyParameters(cfg)
}

// applyParameters writes the detection parameters of a validated config.
func (d *Device) applyParameters(cfg DeviceConfig) error {
	minStrikes, _ := EncodeMinStrikes(cfg.MinStrikes)
	irq, _ := cfg.IRQOutput.bits()
	writes := []struct {
		f Field
		v byte
	}{
		{FieldNoiseFloor, cfg.NoiseFloor},
		{FieldWatchdog, cfg.WatchdogThreshold},
		{FieldSpikeRej, cfg.SpikeRejection},
		{FieldMinStrikes, minStrikes},
		{FieldMaskDist, boolBit(cfg.MaskDisturber)},
		{FieldIRQOutput, irq},
	}
	for _, w := range writes {
		if err := d.writeField(w.f, w.v); err != nil {
			return err
		}
	}
	return nil
}

// SetIndoor selects the indoor or outdoor AFE gain profile.
func (d *Device) SetIndoor(indoor bool) error {
	return d.setField(FieldAFEGain, afePattern(indoor))
}

// SetNoiseFloor sets NF_LEV (0..7).
func (d *Device) SetNoiseFloor(v uint8) error {
	if err := checkField("noise_floor", int(v), FieldNoiseFloor); err != nil {
		return err
	}
	return d.setField(FieldNoiseFloor, v)
}

// RaiseNoiseFloor increments NF_LEV by one, stopping at 7. It returns the
// resulting level.
func (d *Device) RaiseNoiseFloor() (uint8, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, err := d.snapshot()
	if err != nil {
		return 0, err
	}
	nf := s.NoiseFloor()
	if nf >= MaxNoiseFloor {
		return MaxNoiseFloor, nil
	}
	nf++
	if err := d.bus.WriteRegister(RegThreshold, FieldNoiseFloor.Apply(s[RegThreshold], nf)); err != nil {
		return 0, err
	}
	return nf, nil
}

// LowerNoiseFloor decrements NF_LEV by one, never going below floor. It
// returns the resulting level.
func (d *Device) LowerNoiseFloor(floor uint8) (uint8, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, err := d.snapshot()
	if err != nil {
		return 0, err
	}
	nf := s.NoiseFloor()
	if nf <= floor {
		return nf, nil
	}
	nf--
	if err := d.bus.WriteRegister(RegThreshold, FieldNoiseFloor.Apply(s[RegThreshold], nf)); err != nil {
		return 0, err
	}
	return nf, nil
}

// SetWatchdogThreshold sets WDTH (0..15).
func (d *Device) SetWatchdogThreshold(v uint8) error {
	if err := checkField("watchdog_threshold", int(v), FieldWatchdog); err != nil {
		return err
	}
	return d.setField(FieldWatchdog, v)
}

// SetSpikeRejection sets SREJ (0..15).
func (d *Device) SetSpikeRejection(v uint8) error {
	if err := checkField("spike_rejection", int(v), FieldSpikeRej); err != nil {
		return err
	}
	return d.setField(FieldSpikeRej, v)
}

// SetMinStrikes sets the number of strikes needed before the first
// lightning interrupt. Only 1, 5, 9 and 16 are accepted.
func (d *Device) SetMinStrikes(n int) error {
	code, err := EncodeMinStrikes(n)
	if err != nil {
		return err
	}
	return d.setField(FieldMinStrikes, code)
}

// SetMaskDisturber enables or disables disturber interrupts masking.
func (d *Device) SetMaskDisturber(mask bool) error {
	return d.setField(FieldMaskDist, boolBit(mask))
}

// SetTuningCapSteps sets TUN_CAP directly (0..15).
func (d *Device) SetTuningCapSteps(steps uint8) error {
	if err := checkField("tuning_cap_steps", int(steps), FieldTuningCap); err != nil {
		return err
	}
	return d.setField(FieldTuningCap, steps)
}

// SetTuningCapacitance sets the antenna capacitance in pF. Values above
// 120pF are clamped to the maximum.
func (d *Device) SetTuningCapacitance(pf int) error {
	return d.setField(FieldTuningCap, TuningStepsForPF(pf))
}

// SetIRQOutput routes an oscillator to the IRQ pin, or none.
func (d *Device) SetIRQOutput(o IRQOutput) error {
	bits, err := o.bits()
	if err != nil {
		return err
	}
	return d.setField(FieldIRQOutput, bits)
}

// SetLCOFrequencyDivision sets the LCO division ratio shown on the IRQ pin.
func (d *Device) SetLCOFrequencyDivision(ratio int) error {
	code, err := EncodeLCOFrequencyDivision(ratio)
	if err != nil {
		return err
	}
	return d.setField(FieldLCOFdiv, code)
}

// ClearStatistics resets the chip's lightning distance statistics by
// toggling CL_STAT high, low, high.
func (d *Device) ClearStatistics() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, v := range []byte{1, 0, 1} {
		if i > 0 {
			d.sleep(SettleDelay)
		}
		if err := d.writeField(FieldClearStat, v); err != nil {
			return err
		}
	}
	return nil
}

// InterruptReason reads the register block once and classifies the INT
// field. The raw bits are returned alongside.
func (d *Device) InterruptReason() (InterruptReason, byte, error) {
	s, err := d.Snapshot()
	if err != nil {
		return ReasonUnknown, 0, err
	}
	bits := s.InterruptBits()
	return Classify(bits), bits, nil
}

// ReadStrike reads distance, energy and noise floor from one snapshot.
func (d *Device) ReadStrike() (Telemetry, error) {
	s, err := d.Snapshot()
	if err != nil {
		return Telemetry{}, err
	}
	km, ok := s.Distance()
	return Telemetry{
		DistanceKm: km,
		InRange:    ok,
		Energy:     s.Energy(),
		NoiseFloor: s.NoiseFloor(),
	}, nil
}

func boolBit(b bool) byte {
	if b {
		return 1
	}
	return 0
}
