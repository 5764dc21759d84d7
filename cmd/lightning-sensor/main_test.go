package main

import (
	"encoding/json"
	"errors"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/raupulus/rpi-pico-sensor-lightning-cjmcu-3935/internal/api"
	"github.com/raupulus/rpi-pico-sensor-lightning-cjmcu-3935/internal/as3935"
	"github.com/raupulus/rpi-pico-sensor-lightning-cjmcu-3935/internal/bus"
	"github.com/raupulus/rpi-pico-sensor-lightning-cjmcu-3935/internal/classifier"
	"github.com/raupulus/rpi-pico-sensor-lightning-cjmcu-3935/internal/config"
	"github.com/raupulus/rpi-pico-sensor-lightning-cjmcu-3935/internal/delivery"
	"github.com/raupulus/rpi-pico-sensor-lightning-cjmcu-3935/internal/gpio"
	"github.com/raupulus/rpi-pico-sensor-lightning-cjmcu-3935/internal/mqtt"
	"github.com/raupulus/rpi-pico-sensor-lightning-cjmcu-3935/internal/status"
	"github.com/raupulus/rpi-pico-sensor-lightning-cjmcu-3935/internal/strike"
)

// TestEnvVarNames verifies the env var constants match what pi-helper writes
// to /run/pi-helper.env. If pi-helper changes its var names, this test fails
// and we update the constants, not the other way around.
func TestEnvVarNames(t *testing.T) {
	want := map[string]string{
		"NETWORK_TYPE":        envNetworkType,
		"NETWORK_IP":          envNetworkIP,
		"NETWORK_STATUS":      envNetworkStatus,
		"NETWORK_GATEWAY":     envNetworkGateway,
		"NETWORK_WIFI_STATUS": envNetworkWifiStatus,
		"NETWORK_WIFI_SSID":   envNetworkWifiSSID,
	}
	for canonical, got := range want {
		if got != canonical {
			t.Errorf("env var constant: got %q, want %q", got, canonical)
		}
	}
}

func TestReadNetworkInfoAllSet(t *testing.T) {
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.100")
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkGateway, "192.168.1.1")
	t.Setenv(envNetworkWifiStatus, "connected")
	t.Setenv(envNetworkWifiSSID, "MyNetwork")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo")
	}

	want := status.NetworkInfo{
		Type:       "wifi",
		IP:         "192.168.1.100",
		Status:     "connected",
		Gateway:    "192.168.1.1",
		WifiStatus: "connected",
		SSID:       "MyNetwork",
	}
	if *info != want {
		t.Errorf("got %+v, want %+v", *info, want)
	}
}

func TestReadNetworkInfoNoneSet(t *testing.T) {
	info := readNetworkInfo()
	if info != nil {
		t.Errorf("expected nil when NETWORK_STATUS is unset, got %+v", info)
	}
}

func TestReadNetworkInfoPartial(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo when NETWORK_STATUS is set")
	}
	if info.Status != "connected" {
		t.Errorf("Status: got %q, want %q", info.Status, "connected")
	}
	if info.Type != "" || info.IP != "" || info.SSID != "" {
		t.Errorf("expected other fields empty, got %+v", info)
	}
}

func TestResolveWSBroker(t *testing.T) {
	tests := []struct {
		ws, broker, want string
	}{
		{"=broker", "tcp://192.168.1.200:1883", "ws://192.168.1.200:9001"},
		{"=broker", "", ""},
		{"off", "tcp://192.168.1.200:1883", ""},
		{"ws://other:8080", "tcp://192.168.1.200:1883", "ws://other:8080"},
	}
	for _, tt := range tests {
		if got := resolveWSBroker(tt.ws, tt.broker); got != tt.want {
			t.Errorf("resolveWSBroker(%q, %q): got %q, want %q", tt.ws, tt.broker, got, tt.want)
		}
	}
}

func TestNewUploader(t *testing.T) {
	cfg := config.Default()
	up, target := newUploader(cfg, nil)
	if _, ok := up.(delivery.LogUploader); !ok || target != "log" {
		t.Errorf("disabled upload: got %T/%q, want LogUploader/log", up, target)
	}

	cfg.Upload.Enabled = true
	cfg.Upload.URL = "https://api.example.com/"
	cfg.Upload.Path = "/lightning/add"
	up, target = newUploader(cfg, nil)
	c, ok := up.(*api.Client)
	if !ok || target != config.TargetHTTP {
		t.Fatalf("http upload: got %T/%q", up, target)
	}
	if c.URL() != "https://api.example.com/lightning/add" {
		t.Errorf("URL: got %q", c.URL())
	}
}

func TestFormatChipConfig(t *testing.T) {
	h := newHarness(t, as3935.DefaultConfig(), 0, 0)
	snap, err := h.dev.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	cal, err := h.dev.CalibrationStatus()
	if err != nil {
		t.Fatalf("CalibrationStatus: %v", err)
	}
	out := formatChipConfig(snap, cal)
	for _, want := range []string{"indoor=true", "noise_floor=2", "min_strikes=1", "tuning=96pF", "irq_output=NONE", "calibrated=true"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

// --- runLoop tests ---

// fakeClock returns a function that yields start, start+step, start+2*step, ...
// on successive calls. Not safe for concurrent use (only called from runLoop's goroutine).
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

var clockStart = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type harness struct {
	fake    *bus.Fake
	dev     *as3935.Device
	buffer  *strike.Buffer
	cls     *classifier.Classifier
	irq     *gpio.FakeIRQ
	up      *delivery.FakeUploader
	pub     *mqtt.FakePublisher
	tracker *status.Tracker
	l       loop
}

// newHarness wires a calibrated chip on a fake bus to the control loop.
func newHarness(t *testing.T, dc as3935.DeviceConfig, heartbeat, relaxAfter time.Duration) *harness {
	t.Helper()
	h := &harness{
		fake:    bus.NewFake(),
		up:      delivery.NewFakeUploader(),
		pub:     mqtt.NewFakePublisher(),
		tracker: status.NewTracker(clockStart, status.Config{Bus: "i2c", UploadTarget: "http"}),
	}
	h.dev = as3935.New(h.fake)
	h.dev.SetSleep(func(time.Duration) {})
	if err := h.dev.Calibrate(dc); err != nil {
		t.Fatalf("Calibrate: %v", err)
	}
	h.tracker.SetSensor(status.Sensor{Indoor: dc.Indoor, NoiseFloor: dc.NoiseFloor, Calibrated: true})

	h.buffer = strike.NewBuffer(16)
	h.cls = classifier.New(h.dev, h.buffer, classifier.Options{
		Policy:  classifier.Policy{MaskDisturbers: dc.MaskDisturber},
		Sleep:   func(time.Duration) {},
		OnEvent: func(ev classifier.Event) { recordEvent(h.tracker, ev, dc.MaskDisturber) },
	})
	h.irq = gpio.NewFakeIRQ(func() { h.cls.HandleIRQ() })
	h.l = loop{
		cycle:      delivery.NewCycle(h.buffer, h.up, "pico-1", time.Second),
		buffer:     h.buffer,
		classifier: h.cls,
		noise:      classifier.NewNoiseController(h.dev, h.cls, relaxAfter, 2, clockStart),
		publisher:  h.pub,
		mqttStatus: h.pub,
		tracker:    h.tracker,
		heartbeat:  heartbeat,
	}
	return h
}

// strike scripts a lightning interrupt with the given telemetry and fires
// the IRQ line.
func (h *harness) strike(distance byte, energy uint32) {
	b4, b5, b6 := as3935.EncodeEnergy(energy)
	h.fake.Set(as3935.RegEnergyLSB, b4)
	h.fake.Set(as3935.RegEnergyMSB, b5)
	h.fake.Set(as3935.RegEnergyMMSB, b6)
	h.fake.Set(as3935.RegDistance, distance)
	h.fake.Set(as3935.RegInterrupt, 0x08)
	h.irq.Fire()
}

// runRunLoop drives runLoop for nTicks and then delivers signal.
func runRunLoop(t *testing.T, l loop, clock func() time.Time, nTicks int, signal os.Signal) error {
	t.Helper()
	tick := make(chan time.Time)
	sig := make(chan os.Signal, 1)

	errCh := make(chan error, 1)
	go func() {
		errCh <- runLoop(l, clock, tick, sig)
	}()

	for i := 0; i < nTicks; i++ {
		tick <- time.Time{}
	}
	sig <- signal

	return <-errCh
}

func systemEvents(pub *mqtt.FakePublisher, name string) []mqtt.SystemEvent {
	var out []mqtt.SystemEvent
	for _, se := range pub.SystemEvents {
		if se.Event == name {
			out = append(out, se)
		}
	}
	return out
}

func TestRunLoopNoStrikesNoUpload(t *testing.T) {
	h := newHarness(t, as3935.DefaultConfig(), 0, 0)
	clock := fakeClock(clockStart, 5*time.Second)

	if err := runRunLoop(t, h.l, clock, 3, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if h.up.Calls != 0 {
		t.Errorf("expected no upload, got %d calls", h.up.Calls)
	}
	if len(h.pub.SystemEvents) != 1 || h.pub.SystemEvents[0].Event != "SHUTDOWN" {
		t.Errorf("expected exactly one SHUTDOWN event, got %+v", h.pub.SystemEvents)
	}
}

func TestRunLoopDeliversStrike(t *testing.T) {
	h := newHarness(t, as3935.DefaultConfig(), 0, 0)
	h.strike(12, 0x011234)
	clock := fakeClock(clockStart, 5*time.Second)

	if err := runRunLoop(t, h.l, clock, 1, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(h.up.Batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(h.up.Batches))
	}
	b := h.up.Batches[0]
	if b.DeviceID != "pico-1" || len(b.Strikes) != 1 {
		t.Fatalf("unexpected batch: %+v", b)
	}
	e := b.Strikes[0]
	if e.Distance == nil || *e.Distance != 12 {
		t.Errorf("Distance: got %v, want 12", e.Distance)
	}
	if e.Energy != 0x011234 {
		t.Errorf("Energy: got %#x, want 0x011234", e.Energy)
	}
	if e.Type != 8 {
		t.Errorf("Type: got %d, want 8", e.Type)
	}

	snap := h.tracker.Snapshot()
	if snap.LastStrike == nil || snap.LastStrike.DistanceKm != 12 {
		t.Errorf("LastStrike: got %+v", snap.LastStrike)
	}
	if snap.Counts.Lightning != 1 {
		t.Errorf("Counts.Lightning: got %d, want 1", snap.Counts.Lightning)
	}
	if snap.Delivery.Succeeded != 1 || snap.Delivery.Sent != 1 {
		t.Errorf("Delivery: got %+v", snap.Delivery)
	}
	if h.buffer.Len() != 0 {
		t.Errorf("expected empty buffer, got %d", h.buffer.Len())
	}
}

func TestRunLoopUploadFailureRetains(t *testing.T) {
	h := newHarness(t, as3935.DefaultConfig(), 0, 0)
	h.up.SetError(errors.New("api down"))
	h.strike(0x3F, 99)
	clock := fakeClock(clockStart, 5*time.Second)

	if err := runRunLoop(t, h.l, clock, 2, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	// Two ticks plus the shutdown flush.
	if h.up.Calls != 3 {
		t.Errorf("expected 3 upload attempts, got %d", h.up.Calls)
	}
	if h.buffer.Len() != 1 {
		t.Errorf("expected strike retained, buffer has %d", h.buffer.Len())
	}
	snap := h.tracker.Snapshot()
	if snap.Delivery.Failed != 3 || snap.Delivery.Buffered != 1 {
		t.Errorf("Delivery: got %+v", snap.Delivery)
	}
	if !strings.Contains(snap.Delivery.LastError, "api down") {
		t.Errorf("LastError: got %q", snap.Delivery.LastError)
	}
	if len(systemEvents(h.pub, "SHUTDOWN")) != 1 {
		t.Error("expected SHUTDOWN despite delivery errors")
	}
}

func TestRunLoopShutdownFlushesBuffer(t *testing.T) {
	h := newHarness(t, as3935.DefaultConfig(), 0, 0)
	h.strike(5, 1000)
	h.strike(6, 2000)
	clock := fakeClock(clockStart, 5*time.Second)

	if err := runRunLoop(t, h.l, clock, 0, syscall.SIGINT); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if h.up.Sent() != 2 {
		t.Errorf("expected 2 strikes flushed at shutdown, got %d", h.up.Sent())
	}
	shutdowns := systemEvents(h.pub, "SHUTDOWN")
	if len(shutdowns) != 1 {
		t.Fatalf("expected 1 SHUTDOWN, got %d", len(shutdowns))
	}
	se := shutdowns[0]
	if se.Reason != "SIGINT" {
		t.Errorf("expected reason SIGINT, got %q", se.Reason)
	}
	if !se.Retained {
		t.Error("expected Retained=true for SHUTDOWN")
	}

	var sj status.StatusJSON
	if err := json.Unmarshal(se.RawPayload, &sj); err != nil {
		t.Fatalf("invalid SHUTDOWN payload: %v", err)
	}
	if sj.Status.Event != "SHUTDOWN" || sj.Status.Counts.Lightning != 2 {
		t.Errorf("unexpected payload: %s", se.RawPayload)
	}
}

func TestRunLoopWithoutBroker(t *testing.T) {
	h := newHarness(t, as3935.DefaultConfig(), time.Minute, 0)
	h.l.publisher = nil
	h.l.mqttStatus = nil
	h.strike(9, 42)
	clock := fakeClock(clockStart, time.Minute)

	if err := runRunLoop(t, h.l, clock, 2, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	if h.up.Sent() != 1 {
		t.Errorf("expected 1 strike delivered, got %d", h.up.Sent())
	}
	if len(h.pub.SystemEvents) != 0 {
		t.Errorf("expected no system events, got %d", len(h.pub.SystemEvents))
	}
}

func TestRunLoopHeartbeat(t *testing.T) {
	// Clock calls: t0 (start), t1..t4 at 5-min steps. The heartbeat fires at
	// t3 (15 min); t4 is only 5 min later.
	h := newHarness(t, as3935.DefaultConfig(), 15*time.Minute, 0)
	h.pub.Connected = true
	h.strike(20, 7)
	clock := fakeClock(clockStart, 5*time.Minute)

	if err := runRunLoop(t, h.l, clock, 4, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	heartbeats := systemEvents(h.pub, "HEARTBEAT")
	if len(heartbeats) != 1 {
		t.Fatalf("expected 1 HEARTBEAT event, got %d", len(heartbeats))
	}
	hb := heartbeats[0]
	if hb.Retained {
		t.Error("HEARTBEAT should not be retained")
	}
	if !hb.Timestamp.Equal(clockStart.Add(15 * time.Minute)) {
		t.Errorf("Timestamp: got %v", hb.Timestamp)
	}

	var sj status.StatusJSON
	if err := json.Unmarshal(hb.RawPayload, &sj); err != nil {
		t.Fatalf("invalid HEARTBEAT payload: %v", err)
	}
	if sj.Status.Event != "HEARTBEAT" {
		t.Errorf("Event: got %q", sj.Status.Event)
	}
	if sj.Status.Counts.Lightning != 1 {
		t.Errorf("Counts.Lightning: got %d, want 1", sj.Status.Counts.Lightning)
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT connected in heartbeat")
	}
}

func TestRunLoopHeartbeatDisabled(t *testing.T) {
	h := newHarness(t, as3935.DefaultConfig(), 0, 0)
	clock := fakeClock(clockStart, time.Hour)

	if err := runRunLoop(t, h.l, clock, 4, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	if n := len(systemEvents(h.pub, "HEARTBEAT")); n != 0 {
		t.Errorf("expected no heartbeats, got %d", n)
	}
}

func TestRunLoopHeartbeatIncludesNetworkInfo(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.42")

	h := newHarness(t, as3935.DefaultConfig(), 10*time.Minute, 0)
	clock := fakeClock(clockStart, 10*time.Minute)

	if err := runRunLoop(t, h.l, clock, 1, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	heartbeats := systemEvents(h.pub, "HEARTBEAT")
	if len(heartbeats) != 1 {
		t.Fatalf("expected 1 HEARTBEAT event, got %d", len(heartbeats))
	}
	var sj status.StatusJSON
	if err := json.Unmarshal(heartbeats[0].RawPayload, &sj); err != nil {
		t.Fatalf("invalid payload: %v", err)
	}
	if sj.Status.Network == nil {
		t.Fatal("HEARTBEAT payload missing network info")
	}
	if sj.Status.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q", sj.Status.Network.IP)
	}
}

func TestRunLoopHeartbeatPublishError(t *testing.T) {
	h := newHarness(t, as3935.DefaultConfig(), time.Minute, 0)
	h.pub.PublishSystemError = errors.New("broker unavailable")
	clock := fakeClock(clockStart, time.Minute)

	if err := runRunLoop(t, h.l, clock, 3, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	if len(h.pub.SystemEvents) != 0 {
		t.Errorf("expected no recorded events, got %d", len(h.pub.SystemEvents))
	}
}

func TestRunLoopRelaxesNoiseFloor(t *testing.T) {
	// Start at 4 with a 10-minute quiet period and a floor of 2. Ticks at
	// 5, 10, 15 and 20 minutes: relax at 10 (4->3) and 20 (3->2).
	dc := as3935.DefaultConfig()
	dc.NoiseFloor = 4
	h := newHarness(t, dc, 0, 10*time.Minute)
	clock := fakeClock(clockStart, 5*time.Minute)

	if err := runRunLoop(t, h.l, clock, 4, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if got := as3935.DecodeNoiseFloor(h.fake.Reg(as3935.RegThreshold)); got != 2 {
		t.Errorf("chip noise floor: got %d, want 2", got)
	}
	if got := h.tracker.Snapshot().Sensor.NoiseFloor; got != 2 {
		t.Errorf("tracker noise floor: got %d, want 2", got)
	}
}

func TestInterruptEventsUpdateTracker(t *testing.T) {
	dc := as3935.DefaultConfig()
	dc.MaskDisturber = false
	h := newHarness(t, dc, 0, 0)

	h.fake.Set(as3935.RegInterrupt, 0x01)
	h.irq.Fire()
	if got := h.tracker.Snapshot().Sensor.NoiseFloor; got != 3 {
		t.Errorf("tracker noise floor after noise: got %d, want 3", got)
	}

	h.fake.Set(as3935.RegInterrupt, 0x04)
	h.irq.Fire()
	if h.tracker.Snapshot().Sensor.MaskDisturber {
		t.Error("disturber should not be masked without the policy")
	}

	h.fake.ReadError = errors.New("bus gone")
	h.irq.Fire()
	if h.tracker.Snapshot().LastStrike != nil {
		t.Error("failed interrupt must not record a strike")
	}
}

func TestInterruptMasksDisturberWithPolicy(t *testing.T) {
	dc := as3935.DefaultConfig()
	dc.MaskDisturber = false
	h := newHarness(t, dc, 0, 0)
	h.cls = classifier.New(h.dev, h.buffer, classifier.Options{
		Policy:  classifier.Policy{MaskDisturbers: true},
		Sleep:   func(time.Duration) {},
		OnEvent: func(ev classifier.Event) { recordEvent(h.tracker, ev, true) },
	})

	h.fake.Set(as3935.RegInterrupt, 0x04)
	h.cls.HandleIRQ()
	if !h.tracker.Snapshot().Sensor.MaskDisturber {
		t.Error("expected tracker to report masked disturbers")
	}
}

func TestRunLoopRefreshesTracker(t *testing.T) {
	h := newHarness(t, as3935.DefaultConfig(), 0, 0)
	h.pub.Connected = true
	h.up.SetError(errors.New("nope"))
	h.strike(3, 1)
	clock := fakeClock(clockStart, time.Second)

	if err := runRunLoop(t, h.l, clock, 1, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	snap := h.tracker.Snapshot()
	if snap.State != "IDLE" {
		t.Errorf("State: got %q, want IDLE", snap.State)
	}
	if !snap.MQTTConnected {
		t.Error("expected MQTT connected")
	}
	if snap.Delivery.Buffered != 1 {
		t.Errorf("Buffered: got %d, want 1", snap.Delivery.Buffered)
	}
}
