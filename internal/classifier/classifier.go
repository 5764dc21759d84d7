// Package classifier turns AS3935 interrupts into actions: noise floor
// adjustment, disturber masking and strike capture.
//
// HandleIRQ is called from the GPIO event goroutine. Everything it touches
// is either guarded by the device lock, the buffer lock, or this package's
// own counters lock, so it may run concurrently with the control loop.
package classifier

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/raupulus/rpi-pico-sensor-lightning-cjmcu-3935/internal/as3935"
	"github.com/raupulus/rpi-pico-sensor-lightning-cjmcu-3935/internal/strike"
)

// DebounceDelay is the wait between the IRQ edge and reading INT. The chip
// needs at least 2ms to latch the interrupt source.
const DebounceDelay = 2 * time.Millisecond

// Logf receives per-interrupt debug output. It discards by default; the
// daemon points it at log.Printf when debug is enabled.
var Logf = func(format string, args ...any) {}

// Device is the subset of *as3935.Device the classifier drives.
type Device interface {
	InterruptReason() (as3935.InterruptReason, byte, error)
	RaiseNoiseFloor() (uint8, error)
	SetMaskDisturber(mask bool) error
	ReadStrike() (as3935.Telemetry, error)
}

// Sink receives confirmed strikes. *strike.Buffer implements it.
type Sink interface {
	Push(r strike.Record)
}

// State is the classifier's position in the interrupt cycle.
type State int32

const (
	StateIdle State = iota
	StateDebounce
	StateClassify
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateDebounce:
		return "DEBOUNCE"
	case StateClassify:
		return "CLASSIFY"
	default:
		return "UNKNOWN"
	}
}

// Policy controls optional reactions.
type Policy struct {
	// MaskDisturbers sets MASK_DIST on the first disturber interrupt so
	// the chip stops reporting them.
	MaskDisturbers bool
}

// Counts tracks handled interrupts since startup.
type Counts struct {
	Noise     int
	Disturber int
	Lightning int
	Unknown   int
	Errors    int
}

// Event describes one handled interrupt.
type Event struct {
	Time   time.Time
	Reason as3935.InterruptReason
	Bits   byte
	// NoiseFloor is set after a NoiseTooHigh raise.
	NoiseFloor uint8
	// Strike is set for LightningDetected.
	Strike *strike.Record
	Err    error
}

// Options configures a Classifier. Zero values pick real time.
type Options struct {
	Policy   Policy
	Debounce time.Duration
	Now      func() time.Time
	Sleep    func(time.Duration)
	// OnEvent, if set, is called after every handled interrupt.
	OnEvent func(Event)
}

// Classifier handles AS3935 interrupts.
type Classifier struct {
	dev      Device
	sink     Sink
	policy   Policy
	debounce time.Duration
	now      func() time.Time
	sleep    func(time.Duration)
	onEvent  func(Event)

	state atomic.Int32

	mu        sync.Mutex
	counts    Counts
	lastNoise time.Time
	masked    bool
}

// New creates a classifier feeding confirmed strikes into sink.
func New(dev Device, sink Sink, opts Options) *Classifier {
	c := &Classifier{
		dev:      dev,
		sink:     sink,
		policy:   opts.Policy,
		debounce: opts.Debounce,
		now:      opts.Now,
		sleep:    opts.Sleep,
		onEvent:  opts.OnEvent,
	}
	if c.debounce < DebounceDelay {
		c.debounce = DebounceDelay
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.sleep == nil {
		c.sleep = time.Sleep
	}
	return c
}

// HandleIRQ runs one Idle -> Debounce -> Classify -> Idle cycle. It never
// panics on bus errors; they are counted, logged through Logf and
// returned in the Event.
func (c *Classifier) HandleIRQ() Event {
	c.state.Store(int32(StateDebounce))
	c.sleep(c.debounce)

	c.state.Store(int32(StateClassify))
	ev := c.classify()
	c.state.Store(int32(StateIdle))

	c.mu.Lock()
	if ev.Err != nil {
		c.counts.Errors++
	}
	switch ev.Reason {
	case as3935.ReasonNoiseTooHigh:
		c.counts.Noise++
		c.lastNoise = ev.Time
	case as3935.ReasonDisturberDetected:
		c.counts.Disturber++
	case as3935.ReasonLightningDetected:
		c.counts.Lightning++
	default:
		if ev.Err == nil {
			c.counts.Unknown++
		}
	}
	c.mu.Unlock()

	if ev.Err != nil {
		Logf("classifier: %s: %v", ev.Reason, ev.Err)
	}
	if c.onEvent != nil {
		c.onEvent(ev)
	}
	return ev
}

func (c *Classifier) classify() Event {
	reason, bits, err := c.dev.InterruptReason()
	ev := Event{Time: c.now(), Reason: reason, Bits: bits}
	if err != nil {
		ev.Reason = as3935.ReasonUnknown
		ev.Err = err
		return ev
	}
	Logf("classifier: INT=0x%02X -> %s", bits, reason)

	switch reason {
	case as3935.ReasonNoiseTooHigh:
		nf, err := c.dev.RaiseNoiseFloor()
		if err != nil {
			ev.Err = err
			return ev
		}
		ev.NoiseFloor = nf
		Logf("classifier: noise floor now %d", nf)

	case as3935.ReasonDisturberDetected:
		if !c.policy.MaskDisturbers {
			return ev
		}
		c.mu.Lock()
		already := c.masked
		c.mu.Unlock()
		if already {
			return ev
		}
		if err := c.dev.SetMaskDisturber(true); err != nil {
			ev.Err = err
			return ev
		}
		c.mu.Lock()
		c.masked = true
		c.mu.Unlock()
		Logf("classifier: disturbers masked")

	case as3935.ReasonLightningDetected:
		tel, err := c.dev.ReadStrike()
		if err != nil {
			ev.Err = err
			return ev
		}
		r := strike.NewRecord(tel, ev.Time)
		c.sink.Push(r)
		ev.Strike = &r
		if tel.InRange {
			Logf("classifier: strike %dkm energy=%d", tel.DistanceKm, tel.Energy)
		} else {
			Logf("classifier: strike out of range energy=%d", tel.Energy)
		}
	}
	return ev
}

// State returns the current cycle position.
func (c *Classifier) State() State {
	return State(c.state.Load())
}

// Counts returns a copy of the interrupt counters.
func (c *Classifier) Counts() Counts {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts
}

// LastNoise returns when NoiseTooHigh was last handled, or the zero time.
func (c *Classifier) LastNoise() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastNoise
}
