package geiger

import (
	"context"

	base "github.com/slomkowski/usb-geiger/pkg/geiger"
)

// Re-exported errors for convenience.
var (
	ErrDeviceNotFound    = base.ErrDeviceNotFound
	ErrLink              = base.ErrLink
	ErrInvalidArgument   = base.ErrInvalidArgument
	ErrOutOfRange        = base.ErrOutOfRange
	ErrSink              = base.ErrSink
	ErrConfiguration     = base.ErrConfiguration
	ErrChannelSinkClosed = base.ErrChannelSinkClosed
)

// Type aliases so consumers can import github.com/slomkowski/usb-geiger directly.
type (
	Config             = base.Config
	DeviceConfig       = base.DeviceConfig
	USBConfig          = base.USBConfig
	TubeParams         = base.TubeParams
	MonitorConfig      = base.MonitorConfig
	MetricsConfig      = base.MetricsConfig
	SinksConfig        = base.SinksConfig
	CSVConfig          = base.CSVConfig
	PostgresConfig     = base.PostgresConfig
	EmailConfig        = base.EmailConfig
	RadmonConfig       = base.RadmonConfig
	KafkaConfig        = base.KafkaConfig
	MongoConfig        = base.MongoConfig
	OPCUAConfig        = base.OPCUAConfig
	Flow               = base.Flow
	FlowOption         = base.FlowOption
	Runtime            = base.Runtime
	RuntimeOption      = base.RuntimeOption
	Measurement        = base.Measurement
	MeasurementHandler = base.MeasurementHandler
	Sink               = base.Sink
	DeviceLink         = base.DeviceLink
	Observability      = base.Observability
	Field              = base.Field
	Clock              = base.Clock
	Timer              = base.Timer
	State              = base.State
	Status             = base.Status
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

func ParseConfig(raw []byte) (*Config, error) {
	return base.ParseConfig(raw)
}

// Flow builder helpers.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	return base.Conf(path, opts...)
}

func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	return base.ConfFromConfig(cfg, opts...)
}

func WithFlowOptions(opts ...RuntimeOption) FlowOption {
	return base.WithFlowOptions(opts...)
}

func WithCallback(name string, fn MeasurementHandler) FlowOption {
	return base.WithCallback(name, fn)
}

// Runtime and options.
func NewRuntime(ctx context.Context, cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	return base.NewRuntime(ctx, cfg, opts...)
}

func WithDeviceLink(link DeviceLink) RuntimeOption {
	return base.WithDeviceLink(link)
}

func WithSink(s Sink) RuntimeOption {
	return base.WithSink(s)
}

func WithObservability(obs Observability) RuntimeOption {
	return base.WithObservability(obs)
}

func WithClock(c Clock) RuntimeOption {
	return base.WithClock(c)
}

// Sink adapters.
func NewCallbackSink(name string, fn MeasurementHandler) Sink {
	return base.NewCallbackSink(name, fn)
}

func NewChannelSink(name string, buffer int) (Sink, <-chan Measurement, func()) {
	return base.NewChannelSink(name, buffer)
}

// Device access outside the monitoring loop.
func OpenDevice(cfg USBConfig) (DeviceLink, error) {
	return base.OpenDevice(cfg)
}

func ReadStatus(link DeviceLink, tube TubeParams) (Status, error) {
	return base.ReadStatus(link, tube)
}
