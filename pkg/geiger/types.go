package geiger

import (
	"github.com/slomkowski/usb-geiger/internal/app/monitor"
	"github.com/slomkowski/usb-geiger/internal/domain"
	"github.com/slomkowski/usb-geiger/internal/ports"
)

// Measurement is one cycle result: UTC timestamp plus optional CPM and dose rate.
type Measurement = domain.Measurement

// Sink consumes measurements. Update errors are logged and counted, never fatal.
type Sink = ports.Sink

// DeviceLink is the raw register transport to the counter.
type DeviceLink = ports.DeviceLink

// Request identifies a device register.
type Request = ports.Request

// Observability emits the runtime's logs and metrics.
type Observability = ports.Observability

// Field is a structured log field used by Observability implementations.
type Field = ports.Field

// Clock and Timer let tests drive the monitoring schedule.
type (
	Clock = monitor.Clock
	Timer = monitor.Timer
)

// State is the monitoring engine state.
type State = monitor.State

const (
	StateIdle        = monitor.StateIdle
	StateRunning     = monitor.StateRunning
	StateMeasuring   = monitor.StateMeasuring
	StateDispatching = monitor.StateDispatching
	StateWaiting     = monitor.StateWaiting
	StateRecovering  = monitor.StateRecovering
	StateStopped     = monitor.StateStopped
)

var (
	ErrDeviceNotFound  = domain.ErrDeviceNotFound
	ErrLink            = domain.ErrLink
	ErrInvalidArgument = domain.ErrInvalidArgument
	ErrOutOfRange      = domain.ErrOutOfRange
	ErrSink            = domain.ErrSink
	ErrConfiguration   = domain.ErrConfiguration
)

// NewMeasurement builds a measurement carrying both values.
var NewMeasurement = domain.NewMeasurement
