// Command lightning-sensor drives an AS3935 lightning detector and uploads
// detected strikes over HTTP or MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
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
	"github.com/raupulus/rpi-pico-sensor-lightning-cjmcu-3935/internal/web"
)

func main() {
	cfg, args, err := config.Parse(os.Args[0], os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}

	if err := run(cfg, args.PrintConfig); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(cfg config.Config, printConfig bool) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Debug {
		classifier.Logf = log.Printf
	}

	// Initialize the sensor bus
	transport, cs, err := openBus(cfg.Sensor)
	if err != nil {
		return fmt.Errorf("init bus: %w", err)
	}
	if cs != nil {
		defer cs.Close()
	}
	dev := as3935.New(transport)
	defer dev.Close()

	// Print config mode
	if printConfig {
		snap, err := dev.Snapshot()
		if err != nil {
			return fmt.Errorf("read chip: %w", err)
		}
		cal, err := dev.CalibrationStatus()
		if err != nil {
			return fmt.Errorf("read calibration status: %w", err)
		}
		fmt.Println(formatChipConfig(snap, cal))
		return nil
	}

	dc, err := cfg.DeviceConfig()
	if err != nil {
		return err
	}
	if err := dev.Calibrate(dc); err != nil {
		return fmt.Errorf("calibrate: %w", err)
	}
	log.Printf("calibrated: indoor=%v noise_floor=%d tuning=%dpF", dc.Indoor, dc.NoiseFloor, int(dc.TuningCapSteps)*as3935.TuningCapStepPF)

	// Initialize MQTT (optional)
	var publisher *mqtt.RealPublisher
	topics := mqtt.TopicsFor(cfg.MQTT.TopicPrefix)
	if cfg.MQTT.Broker != "" {
		publisher, err = mqtt.NewRealPublisher(mqtt.Options{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topics:   topics,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
		})
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer publisher.Close()
	}

	uploader, target := newUploader(cfg, publisher)
	buffer := strike.NewBuffer(cfg.Upload.BufferCapacity)

	// Initialize status tracker (before STARTUP so snapshot is available)
	live := ""
	if target == config.TargetMQTT {
		live = topics.Strikes
	}
	ws := ""
	if live != "" {
		ws = resolveWSBroker(cfg.MQTT.WSBroker, cfg.MQTT.Broker)
	}
	tracker := status.NewTracker(time.Now(), status.Config{
		Bus:              cfg.Sensor.Bus,
		UploadTarget:     target,
		UploadIntervalMs: uploadInterval(cfg).Milliseconds(),
		HeartbeatMs:      cfg.Heartbeat.Milliseconds(),
		RelaxAfterMs:     cfg.Noise.RelaxAfter.Milliseconds(),
		Broker:           cfg.MQTT.Broker,
		HTTPPort:         cfg.HTTP.Listen,
		WSBroker:         ws,
		LiveTopic:        live,
	})
	tracker.SetSensor(status.Sensor{
		Indoor:        dc.Indoor,
		NoiseFloor:    dc.NoiseFloor,
		MaskDisturber: dc.MaskDisturber,
		TuningCapPF:   int(dc.TuningCapSteps) * as3935.TuningCapStepPF,
		Calibrated:    true,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	cls := classifier.New(dev, buffer, classifier.Options{
		Policy:  classifier.Policy{MaskDisturbers: cfg.Sensor.MaskDisturbers},
		OnEvent: func(ev classifier.Event) { recordEvent(tracker, ev, cfg.Sensor.MaskDisturbers) },
	})
	l := loop{
		cycle:      delivery.NewCycle(buffer, uploader, cfg.Upload.DeviceID, cfg.Upload.Timeout),
		buffer:     buffer,
		classifier: cls,
		noise:      classifier.NewNoiseController(dev, cls, cfg.Noise.RelaxAfter, uint8(cfg.Noise.MinFloor), time.Now()),
		tracker:    tracker,
		heartbeat:  cfg.Heartbeat,
	}
	if publisher != nil {
		l.publisher = publisher
		l.mqttStatus = publisher
	}

	// Start interrupt handling
	irq, err := gpio.NewRealIRQ(cfg.Sensor.GPIOChip, cfg.Sensor.PinIRQ, func() { cls.HandleIRQ() })
	if err != nil {
		return fmt.Errorf("init irq: %w", err)
	}
	defer irq.Close()

	// Publish startup event with full status snapshot
	if l.publisher != nil {
		snap := tracker.Snapshot()
		startupEvent := mqtt.SystemEvent{
			Timestamp:  snap.Now,
			Event:      "STARTUP",
			Retained:   true,
			RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
		}
		if err := l.publisher.PublishSystem(startupEvent); err != nil {
			log.Printf("failed to publish startup event: %v", err)
		} else {
			log.Printf("published startup event")
		}
	}

	// Start HTTP status server
	if cfg.HTTP.Listen != "" {
		srv := web.New(cfg.HTTP.Listen, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTP.Listen)
	}

	log.Printf("started: bus=%s irq=%s/%d upload=%s interval=%v heartbeat=%v",
		cfg.Sensor.Bus, cfg.Sensor.GPIOChip, cfg.Sensor.PinIRQ, target, uploadInterval(cfg), cfg.Heartbeat)

	ticker := time.NewTicker(uploadInterval(cfg))
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(l, time.Now, ticker.C, sigCh)
}

// openBus opens the configured transport. For SPI it also returns the
// chip-select line, which the caller must close after the transport.
func openBus(s config.Sensor) (bus.Transport, io.Closer, error) {
	switch s.Bus {
	case config.BusSPI:
		cs, err := gpio.NewRealOutput(s.GPIOChip, s.PinCS, 1)
		if err != nil {
			return nil, nil, fmt.Errorf("chip select: %w", err)
		}
		t, err := bus.OpenSPI(s.SPIPort, s.SPIHz, cs)
		if err != nil {
			cs.Close()
			return nil, nil, err
		}
		return t, cs, nil
	default:
		t, err := bus.OpenI2C(s.I2CBus, s.I2CAddr)
		if err != nil {
			return nil, nil, err
		}
		return t, nil, nil
	}
}

// newUploader picks the delivery collaborator. With uploads disabled
// strikes are only logged.
func newUploader(cfg config.Config, publisher *mqtt.RealPublisher) (delivery.Uploader, string) {
	if !cfg.Upload.Enabled {
		return delivery.LogUploader{}, "log"
	}
	if cfg.Upload.Target == config.TargetMQTT && publisher != nil {
		return publisher, config.TargetMQTT
	}
	return api.NewClient(cfg.Upload.URL, cfg.Upload.Path, cfg.Upload.Token, cfg.Upload.DeviceID, nil), config.TargetHTTP
}

func uploadInterval(cfg config.Config) time.Duration {
	if cfg.Upload.Interval <= 0 {
		return config.Default().Upload.Interval
	}
	return cfg.Upload.Interval
}

// recordEvent mirrors one handled interrupt into the status tracker.
func recordEvent(tracker *status.Tracker, ev classifier.Event, maskPolicy bool) {
	if ev.Err != nil {
		log.Printf("interrupt error: %v", ev.Err)
		return
	}
	switch ev.Reason {
	case as3935.ReasonNoiseTooHigh:
		log.Printf("event: noise too high, noise floor now %d", ev.NoiseFloor)
		tracker.SetNoiseFloor(ev.NoiseFloor)
	case as3935.ReasonDisturberDetected:
		if maskPolicy {
			tracker.SetMaskDisturber(true)
		}
	case as3935.ReasonLightningDetected:
		if ev.Strike == nil {
			return
		}
		km, ok := ev.Strike.DistanceKm()
		if ok {
			log.Printf("event: strike distance=%dkm energy=%d", km, ev.Strike.Energy())
		} else {
			log.Printf("event: strike out of range energy=%d", ev.Strike.Energy())
		}
		tracker.RecordStrike(status.Strike{
			Time:       ev.Strike.CapturedAt(),
			DistanceKm: km,
			InRange:    ok,
			Energy:     ev.Strike.Energy(),
		})
	}
}

// loop holds what the control loop drives on each tick.
type loop struct {
	cycle      *delivery.Cycle
	buffer     *strike.Buffer
	classifier *classifier.Classifier
	noise      *classifier.NoiseController
	publisher  mqtt.Publisher        // nil without a broker
	mqttStatus mqtt.ConnectionStatus // nil without a broker
	tracker    *status.Tracker
	heartbeat  time.Duration
}

func runLoop(l loop, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	lastHeartbeat := now()

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}

			// Last chance to hand over buffered strikes.
			l.deliver(now())
			l.refresh()

			if l.publisher == nil {
				return nil
			}
			snap := l.tracker.Snapshot()
			event := mqtt.SystemEvent{
				Timestamp:  now(),
				Event:      "SHUTDOWN",
				Reason:     signalName,
				Retained:   true,
				RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", signalName),
			}
			if err := l.publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case <-tick:
			t := now()
			l.deliver(t)

			level, ran, err := l.noise.Tick(t)
			if err != nil {
				log.Printf("noise floor relax error: %v", err)
			} else if ran && level != l.tracker.Snapshot().Sensor.NoiseFloor {
				log.Printf("noise floor relaxed to %d", level)
				l.tracker.SetNoiseFloor(level)
			}

			l.refresh()

			// Check for heartbeat
			if l.heartbeat <= 0 || t.Sub(lastHeartbeat) < l.heartbeat {
				continue
			}
			lastHeartbeat = t
			c := l.classifier.Counts()
			log.Printf("heartbeat: lightning=%d disturber=%d noise=%d buffered=%d",
				c.Lightning, c.Disturber, c.Noise, l.buffer.Len())
			if l.publisher == nil {
				continue
			}
			// Refresh network info for heartbeat
			if net := readNetworkInfo(); net != nil {
				l.tracker.SetNetwork(net)
			}
			snap := l.tracker.Snapshot()
			hbEvent := mqtt.SystemEvent{
				Timestamp:  t,
				Event:      "HEARTBEAT",
				RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
			}
			if err := l.publisher.PublishSystem(hbEvent); err != nil {
				log.Printf("heartbeat publish error: %v", err)
			}
		}
	}
}

// deliver runs one delivery cycle. Failures are logged; the records stay
// buffered for the next tick.
func (l loop) deliver(t time.Time) {
	res, err := l.cycle.Run(context.Background())
	if err != nil {
		log.Printf("delivery error: %v", err)
		l.tracker.RecordDelivery(t, 0, err)
		return
	}
	if res.Sent > 0 {
		log.Printf("delivered %d strikes", res.Sent)
		l.tracker.RecordDelivery(t, res.Sent, nil)
	}
}

// refresh updates the status tracker for HTTP consumers.
func (l loop) refresh() {
	c := l.classifier.Counts()
	l.tracker.Update(l.classifier.State().String(), status.Counts{
		Noise:     c.Noise,
		Disturber: c.Disturber,
		Lightning: c.Lightning,
		Unknown:   c.Unknown,
		Errors:    c.Errors,
	})
	l.tracker.SetBuffer(l.buffer.Len(), l.buffer.Dropped())
	if l.mqttStatus != nil {
		l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
	}
}

// formatChipConfig renders the chip's current settings for -print-config.
func formatChipConfig(snap as3935.Snapshot, cal as3935.CalibrationStatus) string {
	c := snap.Config()
	return fmt.Sprintf("indoor=%v noise_floor=%d watchdog=%d spike_rejection=%d min_strikes=%d mask_disturber=%v tuning=%dpF irq_output=%s lco_div=%d powered_down=%v calibrated=%v",
		c.Indoor, c.NoiseFloor, c.WatchdogThreshold, c.SpikeRejection, c.MinStrikes, c.MaskDisturber,
		int(c.TuningCapSteps)*as3935.TuningCapStepPF, c.IRQOutput, snap.LCOFrequencyDivision(), snap.PoweredDown(), cal.OK())
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}

// resolveWSBroker converts the --ws-broker flag value into a concrete URL.
// "=broker" derives ws://host:9001 from the TCP broker address; empty disables.
func resolveWSBroker(ws, broker string) string {
	if ws == "off" {
		return ""
	}
	if ws != "=broker" {
		return ws
	}
	if broker == "" {
		return ""
	}
	u, err := url.Parse(broker)
	if err != nil {
		log.Printf("ws-broker: cannot parse --broker %q: %v", broker, err)
		return ""
	}
	u.Scheme = "ws"
	u.Host = u.Hostname() + ":9001"
	return u.String()
}
