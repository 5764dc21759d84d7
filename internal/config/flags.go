package config

import (
	"flag"
	"fmt"
	"io"
	"strconv"
)

// Args holds the command line settings that are not part of Config.
type Args struct {
	Path        string
	PrintConfig bool
}

// Parse builds the configuration from the command line. The YAML file named
// by -config is loaded first; flags given explicitly then override it.
func Parse(name string, args []string) (Config, Args, error) {
	// First pass only finds -config.
	var probe Config
	var a Args
	fs := newFlagSet(name, &probe, &a)
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		// Report usage errors from the real pass below.
		a = Args{}
	}

	cfg := Default()
	if a.Path != "" {
		loaded, err := Load(a.Path)
		if err != nil {
			return Config{}, Args{}, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	a = Args{}
	fs = newFlagSet(name, &cfg, &a)
	if err := fs.Parse(args); err != nil {
		return Config{}, Args{}, err
	}
	return cfg, a, nil
}

// newFlagSet binds every flag to a field of cfg. Each flag's default is
// the field's current value, so an unset flag leaves the field alone.
func newFlagSet(name string, cfg *Config, a *Args) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)

	fs.StringVar(&a.Path, "config", "", "Path to a YAML config file")
	fs.BoolVar(&a.PrintConfig, "print-config", false, "Print the chip configuration and exit")

	fs.StringVar(&cfg.Sensor.Bus, "bus", cfg.Sensor.Bus, "Sensor bus (i2c or spi)")
	fs.StringVar(&cfg.Sensor.I2CBus, "i2c-bus", cfg.Sensor.I2CBus, `I2C bus name ("" for the first one)`)
	fs.Func("i2c-addr", fmt.Sprintf("I2C address of the chip (default %#x)", cfg.Sensor.I2CAddr), func(s string) error {
		v, err := strconv.ParseUint(s, 0, 16)
		if err != nil {
			return err
		}
		cfg.Sensor.I2CAddr = uint16(v)
		return nil
	})
	fs.StringVar(&cfg.Sensor.SPIPort, "spi-port", cfg.Sensor.SPIPort, `SPI port name ("" for the first one)`)
	fs.IntVar(&cfg.Sensor.PinCS, "pin-cs", cfg.Sensor.PinCS, "GPIO line for SPI chip select")
	fs.IntVar(&cfg.Sensor.PinIRQ, "pin-irq", cfg.Sensor.PinIRQ, "GPIO line wired to the chip IRQ pin")
	fs.StringVar(&cfg.Sensor.GPIOChip, "gpio-chip", cfg.Sensor.GPIOChip, "GPIO chip name")
	fs.BoolVar(&cfg.Sensor.Indoor, "indoor", cfg.Sensor.Indoor, "Use the indoor AFE gain profile")
	fs.IntVar(&cfg.Sensor.NoiseFloor, "noise-floor", cfg.Sensor.NoiseFloor, "Initial noise floor level (0-7)")
	fs.BoolVar(&cfg.Sensor.MaskDisturbers, "mask-disturbers", cfg.Sensor.MaskDisturbers, "Mask disturber interrupts once one is seen")

	fs.BoolVar(&cfg.Upload.Enabled, "upload", cfg.Upload.Enabled, "Upload strikes (otherwise they are only logged)")
	fs.StringVar(&cfg.Upload.Target, "target", cfg.Upload.Target, "Upload target (http or mqtt)")
	fs.StringVar(&cfg.Upload.URL, "url", cfg.Upload.URL, "API base URL")
	fs.StringVar(&cfg.Upload.Path, "path", cfg.Upload.Path, "API path for strike batches")
	fs.StringVar(&cfg.Upload.Token, "token", cfg.Upload.Token, "API bearer token")
	fs.StringVar(&cfg.Upload.DeviceID, "device-id", cfg.Upload.DeviceID, "Hardware device id sent with each batch")
	fs.DurationVar(&cfg.Upload.Interval, "interval", cfg.Upload.Interval, "Upload interval")

	fs.StringVar(&cfg.MQTT.Broker, "broker", cfg.MQTT.Broker, "MQTT broker address (empty to disable)")
	fs.StringVar(&cfg.MQTT.WSBroker, "ws-broker", cfg.MQTT.WSBroker, `MQTT websocket URL for live UI ("=broker" derives from --broker, "off" disables)`)
	fs.StringVar(&cfg.HTTP.Listen, "http", cfg.HTTP.Listen, "HTTP status address (empty to disable)")
	fs.DurationVar(&cfg.Heartbeat, "heartbeat", cfg.Heartbeat, "Heartbeat interval (0 to disable)")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Log every interrupt")

	return fs
}
