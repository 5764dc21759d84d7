// Package status provides a thread-safe status tracker for the lightning
// sensor daemon. It is read by the HTTP status page and MQTT lifecycle
// events.
package status

import (
	"sync"
	"time"
)

// NetworkInfo contains network state as reported by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Bus              string
	UploadTarget     string // "http", "mqtt" or "log"
	UploadIntervalMs int64
	HeartbeatMs      int64
	RelaxAfterMs     int64
	Broker           string
	HTTPPort         string
	WSBroker         string // Websocket broker URL for browser MQTT (empty = disabled)
	LiveTopic        string // MQTT topic the status page subscribes to for strikes
}

// Sensor describes the chip's current configuration.
type Sensor struct {
	Indoor        bool
	NoiseFloor    uint8
	MaskDisturber bool
	TuningCapPF   int
	Calibrated    bool
}

// Counts mirrors the classifier's interrupt counters.
type Counts struct {
	Noise     int
	Disturber int
	Lightning int
	Unknown   int
	Errors    int
}

// Strike is the most recent confirmed strike.
type Strike struct {
	Time       time.Time
	DistanceKm uint8
	InRange    bool
	Energy     uint32
}

// Delivery summarises upload activity.
type Delivery struct {
	Succeeded   int
	Failed      int
	Sent        int
	Buffered    int
	Dropped     int
	LastSuccess time.Time
	LastError   string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	State         string
	Sensor        Sensor
	Counts        Counts
	LastStrike    *Strike
	Delivery      Delivery
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			State:     "IDLE",
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// SetSensor records the chip configuration, typically after calibration.
func (t *Tracker) SetSensor(s Sensor) {
	t.mu.Lock()
	t.snap.Sensor = s
	t.mu.Unlock()
}

// SetNoiseFloor updates the noise floor after the classifier or the noise
// controller changed it.
func (t *Tracker) SetNoiseFloor(nf uint8) {
	t.mu.Lock()
	t.snap.Sensor.NoiseFloor = nf
	t.mu.Unlock()
}

// SetMaskDisturber updates the disturber mask flag.
func (t *Tracker) SetMaskDisturber(mask bool) {
	t.mu.Lock()
	t.snap.Sensor.MaskDisturber = mask
	t.mu.Unlock()
}

// Update sets the classifier state and interrupt counts.
// Called from runLoop on every tick.
func (t *Tracker) Update(state string, counts Counts) {
	t.mu.Lock()
	t.snap.State = state
	t.snap.Counts = counts
	t.mu.Unlock()
}

// RecordStrike stores the latest strike.
func (t *Tracker) RecordStrike(s Strike) {
	t.mu.Lock()
	t.snap.LastStrike = &s
	t.mu.Unlock()
}

// RecordDelivery accounts one delivery cycle that attempted an upload.
func (t *Tracker) RecordDelivery(at time.Time, sent int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		t.snap.Delivery.Failed++
		t.snap.Delivery.LastError = err.Error()
		return
	}
	t.snap.Delivery.Succeeded++
	t.snap.Delivery.Sent += sent
	t.snap.Delivery.LastSuccess = at
	t.snap.Delivery.LastError = ""
}

// SetBuffer records the strike buffer fill level.
func (t *Tracker) SetBuffer(buffered, dropped int) {
	t.mu.Lock()
	t.snap.Delivery.Buffered = buffered
	t.snap.Delivery.Dropped = dropped
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	if s.LastStrike != nil {
		ls := *s.LastStrike
		s.LastStrike = &ls
	}
	if s.Network != nil {
		n := *s.Network
		s.Network = &n
	}
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
