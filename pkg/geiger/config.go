package geiger

import (
	"github.com/slomkowski/usb-geiger/internal/adapters/sink"
	"github.com/slomkowski/usb-geiger/internal/adapters/usb"
	"github.com/slomkowski/usb-geiger/internal/app/config"
	"github.com/slomkowski/usb-geiger/internal/app/converter"
)

// Config re-exports the root configuration struct so downstream projects can
// construct or modify it programmatically.
type Config = config.Config

type (
	DeviceConfig  = config.DeviceConfig
	USBConfig     = usb.Config
	TubeParams    = converter.Params
	MonitorConfig = config.MonitorConfig
	MetricsConfig = config.MetricsConfig
	SinksConfig   = config.SinksConfig

	CSVConfig      = sink.CSVConfig
	PostgresConfig = sink.PostgresConfig
	EmailConfig    = sink.EmailConfig
	RadmonConfig   = sink.RadmonConfig
	KafkaConfig    = sink.KafkaConfig
	MongoConfig    = sink.MongoConfig
	OPCUAConfig    = sink.OPCUAConfig
)

// LoadConfig loads YAML from disk using the internal config reader.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// ParseConfig decodes, defaults and validates an in-memory YAML document.
func ParseConfig(raw []byte) (*Config, error) {
	return config.Parse(raw)
}
