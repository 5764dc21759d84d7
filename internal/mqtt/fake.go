package mqtt

import (
	"context"
	"sync"

	"github.com/raupulus/rpi-pico-sensor-lightning-cjmcu-3935/internal/delivery"
)

// FakePublisher records published batches and events for test assertions.
type FakePublisher struct {
	mu sync.Mutex

	// Batches contains all strike batches that were published.
	Batches []delivery.Batch

	// Payloads contains the JSON payloads for strike batches.
	Payloads [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// UploadError, if set, will be returned by Upload.
	UploadError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// Upload records the strike batch.
func (f *FakePublisher) Upload(ctx context.Context, batch delivery.Batch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.UploadError != nil {
		return f.UploadError
	}

	payload, err := FormatBatchPayload(batch)
	if err != nil {
		return err
	}
	f.Batches = append(f.Batches, batch)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// Reset clears recorded batches and events.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Batches = nil
	f.Payloads = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Closed = false
	f.UploadError = nil
	f.PublishSystemError = nil
	f.Connected = false
}
