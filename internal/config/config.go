// Package config loads daemon settings from an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/raupulus/rpi-pico-sensor-lightning-cjmcu-3935/internal/as3935"
	"github.com/raupulus/rpi-pico-sensor-lightning-cjmcu-3935/internal/bus"
	"github.com/raupulus/rpi-pico-sensor-lightning-cjmcu-3935/internal/gpio"
	"github.com/raupulus/rpi-pico-sensor-lightning-cjmcu-3935/internal/mqtt"
	"github.com/raupulus/rpi-pico-sensor-lightning-cjmcu-3935/internal/strike"
)

// Bus names.
const (
	BusI2C = "i2c"
	BusSPI = "spi"
)

// Upload targets.
const (
	TargetHTTP = "http"
	TargetMQTT = "mqtt"
)

// Config is the full daemon configuration.
type Config struct {
	Sensor    Sensor        `yaml:"sensor"`
	Noise     Noise         `yaml:"noise"`
	Upload    Upload        `yaml:"upload"`
	MQTT      MQTT          `yaml:"mqtt"`
	HTTP      HTTP          `yaml:"http"`
	Heartbeat time.Duration `yaml:"heartbeat"`
	Debug     bool          `yaml:"debug"`
}

// Sensor describes the wiring and chip profile.
type Sensor struct {
	Bus      string `yaml:"bus"`
	I2CBus   string `yaml:"i2c_bus"`
	I2CAddr  uint16 `yaml:"i2c_addr"`
	SPIPort  string `yaml:"spi_port"`
	SPIHz    int64  `yaml:"spi_hz"`
	PinCS    int    `yaml:"pin_cs"`
	PinIRQ   int    `yaml:"pin_irq"`
	GPIOChip string `yaml:"gpio_chip"`

	Indoor            bool   `yaml:"indoor"`
	NoiseFloor        int    `yaml:"noise_floor"`
	WatchdogThreshold int    `yaml:"watchdog_threshold"`
	SpikeRejection    int    `yaml:"spike_rejection"`
	MinStrikes        int    `yaml:"min_strikes"`
	TuningCapPF       int    `yaml:"tuning_cap_pf"`
	MaskDisturbers    bool   `yaml:"mask_disturbers"`
	IRQOutput         string `yaml:"irq_output"`
}

// Noise configures the noise floor relax loop.
type Noise struct {
	RelaxAfter time.Duration `yaml:"relax_after"`
	MinFloor   int           `yaml:"min_floor"`
}

// Upload configures strike delivery.
type Upload struct {
	Enabled        bool          `yaml:"enabled"`
	Target         string        `yaml:"target"`
	URL            string        `yaml:"url"`
	Path           string        `yaml:"path"`
	Token          string        `yaml:"token"`
	DeviceID       string        `yaml:"device_id"`
	Interval       time.Duration `yaml:"interval"`
	Timeout        time.Duration `yaml:"timeout"`
	BufferCapacity int           `yaml:"buffer_capacity"`
}

// MQTT configures the broker connection. An empty broker disables MQTT.
type MQTT struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	WSBroker    string `yaml:"ws_broker"`
}

// HTTP configures the status server. An empty address disables it.
type HTTP struct {
	Listen string `yaml:"listen"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	dc := as3935.DefaultConfig()
	return Config{
		Sensor: Sensor{
			Bus:               BusI2C,
			I2CAddr:           bus.DefaultI2CAddr,
			SPIHz:             bus.DefaultSPIHz,
			PinCS:             gpio.DefaultPinCS,
			PinIRQ:            gpio.DefaultPinIRQ,
			GPIOChip:          gpio.DefaultChip,
			Indoor:            dc.Indoor,
			NoiseFloor:        int(dc.NoiseFloor),
			WatchdogThreshold: int(dc.WatchdogThreshold),
			SpikeRejection:    int(dc.SpikeRejection),
			MinStrikes:        dc.MinStrikes,
			TuningCapPF:       int(dc.TuningCapSteps) * as3935.TuningCapStepPF,
			IRQOutput:         string(as3935.IRQNone),
		},
		Noise: Noise{
			RelaxAfter: 15 * time.Minute,
			MinFloor:   int(dc.NoiseFloor),
		},
		Upload: Upload{
			Target:         TargetHTTP,
			Interval:       5 * time.Second,
			Timeout:        10 * time.Second,
			BufferCapacity: strike.DefaultCapacity,
		},
		MQTT: MQTT{
			ClientID:    mqtt.DefaultClientID,
			TopicPrefix: mqtt.DefaultTopicPrefix,
			WSBroker:    "=broker",
		},
		HTTP:      HTTP{Listen: ":80"},
		Heartbeat: 15 * time.Minute,
	}
}

// Load reads a YAML file over the defaults. Keys missing from the file keep
// their default value.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// DeviceConfig converts the sensor section to the chip profile. Values that
// do not fit their register field are reported as *as3935.ConfigError.
func (c Config) DeviceConfig() (as3935.DeviceConfig, error) {
	s := c.Sensor
	// Above 120pF the bank is clamped to its last step, not rejected.
	if s.TuningCapPF < 0 {
		return as3935.DeviceConfig{}, &as3935.ConfigError{
			Field:   "tuning_cap_pf",
			Value:   s.TuningCapPF,
			Allowed: "0 or more",
		}
	}
	for _, f := range []struct {
		name string
		v    int
		max  int
	}{
		{"noise_floor", s.NoiseFloor, as3935.MaxNoiseFloor},
		{"watchdog_threshold", s.WatchdogThreshold, 15},
		{"spike_rejection", s.SpikeRejection, 15},
	} {
		if f.v < 0 || f.v > f.max {
			return as3935.DeviceConfig{}, &as3935.ConfigError{Field: f.name, Value: f.v, Allowed: fmt.Sprintf("0..%d", f.max)}
		}
	}
	dc := as3935.DeviceConfig{
		Indoor:            s.Indoor,
		NoiseFloor:        uint8(s.NoiseFloor),
		WatchdogThreshold: uint8(s.WatchdogThreshold),
		SpikeRejection:    uint8(s.SpikeRejection),
		MinStrikes:        s.MinStrikes,
		TuningCapSteps:    as3935.TuningStepsForPF(s.TuningCapPF),
		MaskDisturber:     s.MaskDisturbers,
		IRQOutput:         as3935.IRQOutput(strings.ToUpper(s.IRQOutput)),
	}
	if err := dc.Validate(); err != nil {
		return as3935.DeviceConfig{}, err
	}
	return dc, nil
}

// Validate rejects settings that would fail once hardware is touched.
func (c Config) Validate() error {
	var errs []error

	switch c.Sensor.Bus {
	case BusI2C:
		if c.Sensor.I2CAddr == 0 || c.Sensor.I2CAddr > 0x7F {
			errs = append(errs, fmt.Errorf("sensor.i2c_addr: %#x is not a 7-bit address", c.Sensor.I2CAddr))
		}
	case BusSPI:
		if c.Sensor.PinCS < 0 {
			errs = append(errs, fmt.Errorf("sensor.pin_cs: %d is negative", c.Sensor.PinCS))
		}
	default:
		errs = append(errs, fmt.Errorf("sensor.bus: %q is not %s or %s", c.Sensor.Bus, BusI2C, BusSPI))
	}
	if c.Sensor.PinIRQ < 0 {
		errs = append(errs, fmt.Errorf("sensor.pin_irq: %d is negative", c.Sensor.PinIRQ))
	}
	if _, err := c.DeviceConfig(); err != nil {
		errs = append(errs, fmt.Errorf("sensor: %w", err))
	}

	if c.Noise.RelaxAfter < 0 {
		errs = append(errs, errors.New("noise.relax_after: must not be negative"))
	}
	if c.Noise.MinFloor < 0 || c.Noise.MinFloor > as3935.MaxNoiseFloor {
		errs = append(errs, fmt.Errorf("noise.min_floor: %d is not 0..%d", c.Noise.MinFloor, as3935.MaxNoiseFloor))
	}

	if c.Upload.Enabled {
		switch c.Upload.Target {
		case TargetHTTP:
			if c.Upload.URL == "" {
				errs = append(errs, errors.New("upload.url: required for http target"))
			}
		case TargetMQTT:
			if c.MQTT.Broker == "" {
				errs = append(errs, errors.New("mqtt.broker: required for mqtt target"))
			}
		default:
			errs = append(errs, fmt.Errorf("upload.target: %q is not %s or %s", c.Upload.Target, TargetHTTP, TargetMQTT))
		}
		if c.Upload.Interval <= 0 {
			errs = append(errs, errors.New("upload.interval: must be positive"))
		}
	}
	if c.Upload.Timeout < 0 {
		errs = append(errs, errors.New("upload.timeout: must not be negative"))
	}
	if c.Upload.BufferCapacity < 0 {
		errs = append(errs, errors.New("upload.buffer_capacity: must not be negative"))
	}
	if c.Heartbeat < 0 {
		errs = append(errs, errors.New("heartbeat: must not be negative"))
	}

	return errors.Join(errs...)
}
