package gpio

import (
	"errors"
	"testing"
)

// Compile-time interface checks.
var (
	_ IRQ       = (*FakeIRQ)(nil)
	_ IRQ       = (*RealIRQ)(nil)
	_ OutputPin = (*FakeOutput)(nil)
	_ OutputPin = (*RealOutput)(nil)
)

func TestFakeIRQFire(t *testing.T) {
	calls := 0
	f := NewFakeIRQ(func() { calls++ })

	f.Fire()
	f.Fire()

	if calls != 2 {
		t.Errorf("expected 2 handler calls, got %d", calls)
	}
	if f.Fired != 2 {
		t.Errorf("expected Fired=2, got %d", f.Fired)
	}
}

func TestFakeIRQClose(t *testing.T) {
	calls := 0
	f := NewFakeIRQ(func() { calls++ })

	if f.Closed {
		t.Error("should not be closed initially")
	}
	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !f.Closed {
		t.Error("should be closed after Close()")
	}

	f.Fire()
	if calls != 0 {
		t.Errorf("edge delivered after close")
	}
}

func TestFakeIRQNilHandler(t *testing.T) {
	f := NewFakeIRQ(nil)
	f.Fire()
	if f.Fired != 0 {
		t.Errorf("expected no delivery without handler, got %d", f.Fired)
	}
}

func TestFakeOutputRecordsValues(t *testing.T) {
	f := NewFakeOutput()
	if f.Value() != -1 {
		t.Errorf("expected -1 before any set, got %d", f.Value())
	}

	for _, v := range []int{1, 0, 1} {
		if err := f.SetValue(v); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if len(f.Values) != 3 || f.Value() != 1 {
		t.Errorf("unexpected values: %v", f.Values)
	}
}

func TestFakeOutputError(t *testing.T) {
	f := NewFakeOutput()
	f.SetError = errors.New("simulated error")

	err := f.SetValue(1)
	if err == nil || err.Error() != "simulated error" {
		t.Errorf("unexpected error: %v", err)
	}
	if len(f.Values) != 0 {
		t.Errorf("failed set must not be recorded")
	}
}

func TestFakeOutputClosed(t *testing.T) {
	f := NewFakeOutput()
	f.Close()
	if err := f.SetValue(0); err == nil {
		t.Error("expected error after close")
	}
}
