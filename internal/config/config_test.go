package config

import (
	"errors"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/raupulus/rpi-pico-sensor-lightning-cjmcu-3935/internal/as3935"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Sensor.Bus != BusI2C {
		t.Errorf("Bus: got %q, want i2c", cfg.Sensor.Bus)
	}
	if cfg.Sensor.I2CAddr != 0x03 {
		t.Errorf("I2CAddr: got %#x, want 0x03", cfg.Sensor.I2CAddr)
	}
	if cfg.Sensor.PinIRQ != 22 {
		t.Errorf("PinIRQ: got %d, want 22", cfg.Sensor.PinIRQ)
	}
	if cfg.Upload.Enabled {
		t.Error("upload should be disabled by default")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
sensor:
  bus: spi
  spi_port: "0"
  indoor: false
  noise_floor: 4
  tuning_cap_pf: 64
  irq_output: lco
noise:
  relax_after: 30m
upload:
  enabled: true
  target: http
  url: https://api.example.com
  path: /lightning/add
  token: secret
  device_id: pico-1
  interval: 30s
debug: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Sensor.Bus != BusSPI || cfg.Sensor.SPIPort != "0" {
		t.Errorf("sensor bus: got %q/%q", cfg.Sensor.Bus, cfg.Sensor.SPIPort)
	}
	if cfg.Sensor.Indoor {
		t.Error("expected outdoor profile")
	}
	if cfg.Noise.RelaxAfter != 30*time.Minute {
		t.Errorf("RelaxAfter: got %v, want 30m", cfg.Noise.RelaxAfter)
	}
	if cfg.Upload.Interval != 30*time.Second {
		t.Errorf("Interval: got %v, want 30s", cfg.Upload.Interval)
	}
	if !cfg.Debug {
		t.Error("expected debug")
	}

	// Keys absent from the file keep their defaults.
	if cfg.Sensor.PinIRQ != 22 {
		t.Errorf("PinIRQ: got %d, want default 22", cfg.Sensor.PinIRQ)
	}
	if cfg.Upload.Timeout != 10*time.Second {
		t.Errorf("Timeout: got %v, want default 10s", cfg.Upload.Timeout)
	}
	if cfg.Noise.MinFloor != 2 {
		t.Errorf("MinFloor: got %d, want default 2", cfg.Noise.MinFloor)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeFile(t, "sensor: [not a mapping")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestDeviceConfig(t *testing.T) {
	cfg := Default()
	cfg.Sensor.Indoor = false
	cfg.Sensor.NoiseFloor = 5
	cfg.Sensor.MinStrikes = 9
	cfg.Sensor.TuningCapPF = 100
	cfg.Sensor.MaskDisturbers = true
	cfg.Sensor.IRQOutput = "srco"

	dc, err := cfg.DeviceConfig()
	if err != nil {
		t.Fatalf("DeviceConfig: %v", err)
	}
	want := as3935.DeviceConfig{
		Indoor:            false,
		NoiseFloor:        5,
		WatchdogThreshold: 2,
		SpikeRejection:    2,
		MinStrikes:        9,
		TuningCapSteps:    12,
		MaskDisturber:     true,
		IRQOutput:         as3935.IRQSRCO,
	}
	if dc != want {
		t.Errorf("DeviceConfig:\ngot  %+v\nwant %+v", dc, want)
	}
}

func TestDeviceConfigRejectsOutOfRange(t *testing.T) {
	tests := []struct {
		name  string
		mod   func(*Config)
		field string
	}{
		{"noise floor", func(c *Config) { c.Sensor.NoiseFloor = 8 }, "noise_floor"},
		{"negative watchdog", func(c *Config) { c.Sensor.WatchdogThreshold = -1 }, "watchdog_threshold"},
		{"spike rejection", func(c *Config) { c.Sensor.SpikeRejection = 16 }, "spike_rejection"},
		{"min strikes", func(c *Config) { c.Sensor.MinStrikes = 3 }, "min_strikes"},
		{"negative tuning cap", func(c *Config) { c.Sensor.TuningCapPF = -8 }, "tuning_cap_pf"},
		{"irq output", func(c *Config) { c.Sensor.IRQOutput = "XTAL" }, "irq_output"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mod(&cfg)
			_, err := cfg.DeviceConfig()
			var ce *as3935.ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("expected *as3935.ConfigError, got %v", err)
			}
			if ce.Field != tt.field {
				t.Errorf("Field: got %q, want %q", ce.Field, tt.field)
			}
		})
	}
}

func TestDeviceConfigClampsTuningCap(t *testing.T) {
	for _, pf := range []int{120, 150, 200} {
		cfg := Default()
		cfg.Sensor.TuningCapPF = pf
		dc, err := cfg.DeviceConfig()
		if err != nil {
			t.Fatalf("%dpF: unexpected error: %v", pf, err)
		}
		if dc.TuningCapSteps != 15 {
			t.Errorf("%dpF: TuningCapSteps got %d, want 15", pf, dc.TuningCapSteps)
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("%dpF: Validate: %v", pf, err)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*Config)
		want string
	}{
		{"bad bus", func(c *Config) { c.Sensor.Bus = "uart" }, "sensor.bus"},
		{"i2c address", func(c *Config) { c.Sensor.I2CAddr = 0x80 }, "sensor.i2c_addr"},
		{"irq pin", func(c *Config) { c.Sensor.PinIRQ = -1 }, "sensor.pin_irq"},
		{"chip profile", func(c *Config) { c.Sensor.NoiseFloor = 9 }, "sensor:"},
		{"min floor", func(c *Config) { c.Noise.MinFloor = 8 }, "noise.min_floor"},
		{"http without url", func(c *Config) { c.Upload.Enabled = true }, "upload.url"},
		{"mqtt without broker", func(c *Config) {
			c.Upload.Enabled = true
			c.Upload.Target = TargetMQTT
		}, "mqtt.broker"},
		{"bad target", func(c *Config) {
			c.Upload.Enabled = true
			c.Upload.Target = "ftp"
		}, "upload.target"},
		{"zero interval", func(c *Config) {
			c.Upload.Enabled = true
			c.Upload.URL = "http://x"
			c.Upload.Interval = 0
		}, "upload.interval"},
		{"negative heartbeat", func(c *Config) { c.Heartbeat = -time.Second }, "heartbeat"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mod(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Sensor.Bus = "uart"
	cfg.Noise.MinFloor = 8
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"sensor.bus", "noise.min_floor"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestParseDefaults(t *testing.T) {
	cfg, args, err := Parse("lightning-sensor", nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if args.Path != "" || args.PrintConfig {
		t.Errorf("unexpected args: %+v", args)
	}
	if cfg != Default() {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestParseFlagsOverrideFile(t *testing.T) {
	path := writeFile(t, `
sensor:
  noise_floor: 4
  pin_irq: 17
upload:
  target: mqtt
mqtt:
  broker: tcp://10.0.0.1:1883
`)
	cfg, args, err := Parse("lightning-sensor", []string{
		"-config", path,
		"-noise-floor", "6",
		"-i2c-addr", "0x02",
		"-print-config",
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if args.Path != path || !args.PrintConfig {
		t.Errorf("unexpected args: %+v", args)
	}
	if cfg.Sensor.NoiseFloor != 6 {
		t.Errorf("NoiseFloor: got %d, want flag value 6", cfg.Sensor.NoiseFloor)
	}
	if cfg.Sensor.PinIRQ != 17 {
		t.Errorf("PinIRQ: got %d, want file value 17", cfg.Sensor.PinIRQ)
	}
	if cfg.Sensor.I2CAddr != 0x02 {
		t.Errorf("I2CAddr: got %#x, want 0x02", cfg.Sensor.I2CAddr)
	}
	if cfg.Upload.Target != TargetMQTT || cfg.MQTT.Broker != "tcp://10.0.0.1:1883" {
		t.Errorf("file values lost: %+v / %+v", cfg.Upload, cfg.MQTT)
	}
}

func TestParseFlagBeforeConfigStillWins(t *testing.T) {
	path := writeFile(t, "heartbeat: 1h\n")
	cfg, _, err := Parse("lightning-sensor", []string{"-heartbeat", "0", "-config", path})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Heartbeat != 0 {
		t.Errorf("Heartbeat: got %v, want 0", cfg.Heartbeat)
	}
}

func TestParseErrors(t *testing.T) {
	if _, _, err := Parse("lightning-sensor", []string{"-config", filepath.Join(t.TempDir(), "nope.yaml")}); err == nil {
		t.Error("expected error for missing config file")
	}

	if _, _, err := Parse("lightning-sensor", []string{"-i2c-addr", "zz"}); err == nil {
		t.Error("expected error for bad i2c address")
	}

	if _, _, err := Parse("lightning-sensor", []string{"-h"}); !errors.Is(err, flag.ErrHelp) {
		t.Errorf("expected flag.ErrHelp, got %v", err)
	}
}
