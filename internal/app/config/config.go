package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/slomkowski/usb-geiger/internal/adapters/sink"
	"github.com/slomkowski/usb-geiger/internal/adapters/usb"
	"github.com/slomkowski/usb-geiger/internal/app/converter"
	"github.com/slomkowski/usb-geiger/internal/domain"
)

type Config struct {
	Device  DeviceConfig  `yaml:"device"`
	Monitor MonitorConfig `yaml:"monitor"`
	Metrics MetricsConfig `yaml:"metrics"`
	Sinks   SinksConfig   `yaml:"sinks"`
}

// DeviceConfig flattens USB matching and tube parameters into one section.
type DeviceConfig struct {
	USB  usb.Config       `yaml:",inline"`
	Tube converter.Params `yaml:",inline"`
}

type MonitorConfig struct {
	Interval    float64       `yaml:"interval"`
	SinkTimeout time.Duration `yaml:"sink_timeout"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type SinksConfig struct {
	CSV      sink.CSVConfig      `yaml:"csvfile"`
	Postgres sink.PostgresConfig `yaml:"postgres"`
	Email    sink.EmailConfig    `yaml:"email"`
	Radmon   sink.RadmonConfig   `yaml:"radmon"`
	Kafka    sink.KafkaConfig    `yaml:"kafka"`
	MongoDB  sink.MongoConfig    `yaml:"mongodb"`
	OPCUA    sink.OPCUAConfig    `yaml:"opcua"`
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	c.Device.USB.ApplyDefaults()
	c.Device.Tube.ApplyDefaults()
	if c.Monitor.SinkTimeout <= 0 {
		c.Monitor.SinkTimeout = 10 * time.Second
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
}

func (c *Config) validate() error {
	if c.Monitor.Interval == 0 {
		return fmt.Errorf("%w: monitor.interval is required", domain.ErrConfiguration)
	}
	if err := converter.ValidateInterval(c.Monitor.Interval); err != nil {
		return fmt.Errorf("%w: monitor.interval: %v", domain.ErrConfiguration, err)
	}
	if err := converter.ValidateVoltage(c.Device.Tube.TubeVoltage); err != nil {
		return fmt.Errorf("%w: device.tube_voltage: %v", domain.ErrConfiguration, err)
	}
	if c.Device.Tube.TubeSensitivity <= 0 {
		return fmt.Errorf("%w: device.tube_sensitivity must be > 0", domain.ErrConfiguration)
	}
	if c.Device.Tube.UpperResistor <= 0 || c.Device.Tube.LowerResistor <= 0 {
		return fmt.Errorf("%w: device resistor values must be > 0", domain.ErrConfiguration)
	}
	return nil
}
