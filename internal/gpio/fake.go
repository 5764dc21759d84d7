package gpio

import (
	"errors"
	"sync"
)

// FakeIRQ is a test double that delivers edges on demand.
type FakeIRQ struct {
	mu      sync.Mutex
	handler func()

	// Fired counts edges delivered to the handler.
	Fired int

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeIRQ creates a FakeIRQ calling handler on every Fire.
func NewFakeIRQ(handler func()) *FakeIRQ {
	return &FakeIRQ{handler: handler}
}

// Fire delivers one falling edge synchronously. Edges are serialised the
// same way the gpiocdev watcher serialises them. Fire after Close is
// ignored.
func (f *FakeIRQ) Fire() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Closed || f.handler == nil {
		return
	}
	f.Fired++
	f.handler()
}

// Close stops delivery.
func (f *FakeIRQ) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// FakeOutput records values driven onto an output line.
type FakeOutput struct {
	mu sync.Mutex

	// Values contains every value set, in order.
	Values []int

	// SetError, if set, will be returned by SetValue.
	SetError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeOutput creates a FakeOutput.
func NewFakeOutput() *FakeOutput {
	return &FakeOutput{}
}

// SetValue records v.
func (f *FakeOutput) SetValue(v int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Closed {
		return errors.New("gpio: line closed")
	}
	if f.SetError != nil {
		return f.SetError
	}
	f.Values = append(f.Values, v)
	return nil
}

// Value returns the last value set, or -1 if none.
func (f *FakeOutput) Value() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Values) == 0 {
		return -1
	}
	return f.Values[len(f.Values)-1]
}

// Close marks the line as closed.
func (f *FakeOutput) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}
