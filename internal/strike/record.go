// Package strike holds confirmed lightning records and the buffer shared by
// the interrupt handler and the delivery loop.
package strike

import (
	"time"

	"github.com/raupulus/rpi-pico-sensor-lightning-cjmcu-3935/internal/as3935"
)

// Record is one confirmed strike. It is a value type and is never modified
// after capture.
type Record struct {
	distanceKm uint8
	inRange    bool
	energy     uint32
	noiseFloor uint8
	reason     as3935.InterruptReason
	capturedAt time.Time
}

// NewRecord builds a lightning record from telemetry read at capturedAt.
// capturedAt should come from time.Now so it carries a monotonic reading.
func NewRecord(tel as3935.Telemetry, capturedAt time.Time) Record {
	return Record{
		distanceKm: tel.DistanceKm,
		inRange:    tel.InRange,
		energy:     tel.Energy & 0x1FFFFF,
		noiseFloor: tel.NoiseFloor,
		reason:     as3935.ReasonLightningDetected,
		capturedAt: capturedAt,
	}
}

// DistanceKm returns the storm distance in km; ok is false when the chip
// reported it out of range.
func (r Record) DistanceKm() (km uint8, ok bool) {
	return r.distanceKm, r.inRange
}

// Energy returns the raw 21-bit energy index. It has no physical unit.
func (r Record) Energy() uint32 {
	return r.energy
}

// NoiseFloor returns the noise floor level in effect at capture.
func (r Record) NoiseFloor() uint8 {
	return r.noiseFloor
}

// Reason returns the interrupt reason that produced the record.
func (r Record) Reason() as3935.InterruptReason {
	return r.reason
}

// CapturedAt returns the capture time.
func (r Record) CapturedAt() time.Time {
	return r.capturedAt
}

// ReadSecondsAgo returns whole seconds elapsed since capture, plus one.
func (r Record) ReadSecondsAgo(now time.Time) int64 {
	d := now.Sub(r.capturedAt)
	if d < 0 {
		d = 0
	}
	return int64(d/time.Second) + 1
}
