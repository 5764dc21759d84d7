// Package delivery moves buffered strikes to an upload collaborator.
//
// Each control-loop tick runs one Cycle: the buffer is swapped out, the
// records are sent as one batch, and on failure they are requeued ahead of
// anything captured meanwhile. Delivery is at-least-once.
package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/raupulus/rpi-pico-sensor-lightning-cjmcu-3935/internal/strike"
)

// Uploader sends one batch. A nil error means the remote accepted it.
type Uploader interface {
	Upload(ctx context.Context, batch Batch) error
}

// Source is the buffer side of a cycle. *strike.Buffer implements it.
type Source interface {
	Swap() []strike.Record
	Requeue(records []strike.Record)
}

// Batch is the upload envelope.
type Batch struct {
	Strikes  []Entry `json:"lightnings"`
	DeviceID string  `json:"hardware_device_id"`
}

// Entry is one strike as sent to the remote. Distance is null when the
// chip reported the storm out of range.
type Entry struct {
	Distance       *uint8 `json:"distance"`
	Energy         uint32 `json:"energy"`
	NoiseFloor     uint8  `json:"noise_floor"`
	Type           byte   `json:"type"`
	ReadSecondsAgo int64  `json:"read_seconds_ago"`
}

// NewBatch converts records into an envelope, computing each entry's age
// against now.
func NewBatch(deviceID string, records []strike.Record, now time.Time) Batch {
	b := Batch{DeviceID: deviceID, Strikes: make([]Entry, 0, len(records))}
	for _, r := range records {
		e := Entry{
			Energy:         r.Energy(),
			NoiseFloor:     r.NoiseFloor(),
			Type:           r.Reason().Code(),
			ReadSecondsAgo: r.ReadSecondsAgo(now),
		}
		if km, ok := r.DistanceKm(); ok {
			e.Distance = &km
		}
		b.Strikes = append(b.Strikes, e)
	}
	return b
}

// Marshal returns the JSON encoding of the batch.
func (b Batch) Marshal() ([]byte, error) {
	return json.Marshal(b)
}

// Error reports a failed delivery. The records were requeued.
type Error struct {
	Retained int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("delivery failed, %d records retained: %v", e.Retained, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Result summarises one cycle.
type Result struct {
	Sent     int
	Retained int
}

// Cycle drains a Source into an Uploader.
type Cycle struct {
	src      Source
	up       Uploader
	deviceID string
	timeout  time.Duration
	now      func() time.Time
}

// NewCycle creates a delivery cycle. timeout bounds each upload; zero
// leaves only the caller's context.
func NewCycle(src Source, up Uploader, deviceID string, timeout time.Duration) *Cycle {
	return &Cycle{src: src, up: up, deviceID: deviceID, timeout: timeout, now: time.Now}
}

// SetNow replaces the clock. Intended for tests.
func (c *Cycle) SetNow(now func() time.Time) {
	c.now = now
}

// Run executes one cycle. An empty buffer performs no upload.
func (c *Cycle) Run(ctx context.Context) (Result, error) {
	records := c.src.Swap()
	if len(records) == 0 {
		return Result{}, nil
	}

	batch := NewBatch(c.deviceID, records, c.now())

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	if err := c.up.Upload(ctx, batch); err != nil {
		c.src.Requeue(records)
		return Result{Retained: len(records)}, &Error{Retained: len(records), Err: err}
	}
	return Result{Sent: len(records)}, nil
}
