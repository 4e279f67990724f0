// Package monitor drives the measuring cycle: read the device every interval,
// recover the link when it fails and hand results to every enabled sink.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/slomkowski/usb-geiger/internal/app/converter"
	"github.com/slomkowski/usb-geiger/internal/domain"
	"github.com/slomkowski/usb-geiger/internal/ports"
)

// Instrument is the converted view of the device the engine programs and reads.
type Instrument interface {
	SetInterval(seconds float64) error
	SetVoltage(volts float64) error
	CPMAndRadiation() (cpm, radiation float64, err error)
	Reset() error
}

// State of the engine. Measuring, Dispatching and Recovering only occur inside a cycle.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateMeasuring
	StateDispatching
	StateWaiting
	StateRecovering
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateMeasuring:
		return "measuring"
	case StateDispatching:
		return "dispatching"
	case StateWaiting:
		return "waiting"
	case StateRecovering:
		return "recovering"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Metric names emitted through ports.Observability.
const (
	MetricCycles         = "geiger_cycles_total"
	MetricLinkFailures   = "geiger_link_failures_total"
	MetricLinkRecoveries = "geiger_link_recoveries_total"
	MetricSinkFailures   = "geiger_sink_failures_total"
	MetricCPM            = "geiger_cpm"
	MetricRadiation      = "geiger_radiation_usvh"
	MetricSinkLatency    = "geiger_sink_latency_seconds"
)

const (
	defaultSinkTimeout = 10 * time.Second
	warmupFactor       = 1.5
)

// Config holds the values the engine programs into the device.
type Config struct {
	Interval    float64
	TubeVoltage float64
	SinkTimeout time.Duration
}

type Option func(*Engine)

func WithObservability(obs ports.Observability) Option {
	return func(e *Engine) {
		if obs != nil {
			e.obs = obs
		}
	}
}

func WithClock(c Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// Engine owns the instrument for its whole life; only the loop goroutine
// touches it once Start returns.
type Engine struct {
	inst  Instrument
	sinks []ports.Sink
	cfg   Config
	obs   ports.Observability
	clock Clock

	mu      sync.Mutex
	state   State
	err     error
	started bool
	cancel  context.CancelFunc
	done    chan struct{}

	doneOnce  sync.Once
	closeOnce sync.Once
}

func New(inst Instrument, sinks []ports.Sink, cfg Config, opts ...Option) *Engine {
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	registered := make([]ports.Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			registered = append(registered, s)
		}
	}
	e := &Engine{
		inst:  inst,
		sinks: registered,
		cfg:   cfg,
		obs:   nopObs{},
		clock: systemClock{},
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Start programs the device and schedules the first cycle after 1.5 intervals
// so the device has a full window of counts to report.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started || e.state == StateStopped {
		return fmt.Errorf("monitor already started")
	}
	if e.inst == nil {
		return fmt.Errorf("%w: no device", domain.ErrConfiguration)
	}
	if e.enabledSinks() == 0 {
		return fmt.Errorf("%w: at least one sink has to be enabled", domain.ErrConfiguration)
	}
	if err := converter.ValidateInterval(e.cfg.Interval); err != nil {
		return fmt.Errorf("%w: measuring interval: %v", domain.ErrConfiguration, err)
	}

	e.obs.LogInfo("device_programming",
		ports.Field{Key: "interval_s", Value: e.cfg.Interval},
		ports.Field{Key: "voltage_v", Value: e.cfg.TubeVoltage})
	if err := e.program(); err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.started = true
	e.state = StateRunning

	go e.loop(loopCtx)
	return nil
}

// Stop cancels the pending cycle, waits for a running one to finish and closes
// the sinks. It is safe to call more than once.
func (e *Engine) Stop() {
	e.mu.Lock()
	started := e.started
	cancel := e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if started {
		<-e.done
	} else {
		e.doneOnce.Do(func() { close(e.done) })
	}
	e.setState(StateStopped)
	e.closeSinks()
}

// Done is closed when the loop has exited, either after Stop or a fatal error.
func (e *Engine) Done() <-chan struct{} { return e.done }

// Err returns the fatal error that stopped the engine, if any.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) loop(ctx context.Context) {
	defer e.doneOnce.Do(func() { close(e.done) })

	interval := seconds(e.cfg.Interval)
	warmup := seconds(e.cfg.Interval * warmupFactor)

	next := e.clock.Now().Add(warmup)
	timer := e.clock.NewTimer(warmup)
	e.setState(StateWaiting)

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C():
		}
		if ctx.Err() != nil {
			return
		}

		// Arm the next deadline before any I/O; device latency must not
		// shift the cadence.
		next = next.Add(interval)
		d := next.Sub(e.clock.Now())
		if d <= 0 {
			next = e.clock.Now().Add(interval)
			d = interval
		}
		timer = e.clock.NewTimer(d)

		if err := e.cycle(); err != nil {
			e.obs.IncCounter(MetricLinkFailures, 1)
			e.obs.LogError("device_read_failed", err)

			if rerr := e.recover(); rerr != nil {
				timer.Stop()
				e.fail(rerr)
				return
			}
			e.obs.IncCounter(MetricLinkRecoveries, 1)

			timer.Stop()
			next = e.clock.Now().Add(warmup)
			timer = e.clock.NewTimer(warmup)
		}
		e.setState(StateWaiting)
	}
}

func (e *Engine) cycle() error {
	e.setState(StateMeasuring)
	ts := e.clock.Now().UTC()

	cpm, radiation, err := e.inst.CPMAndRadiation()
	if err != nil {
		return err
	}

	e.obs.IncCounter(MetricCycles, 1)
	e.obs.SetGauge(MetricCPM, cpm)
	e.obs.SetGauge(MetricRadiation, radiation)
	e.obs.LogInfo("pushing_data",
		ports.Field{Key: "cpm", Value: cpm},
		ports.Field{Key: "radiation_usvh", Value: radiation})

	e.setState(StateDispatching)
	e.dispatch(domain.NewMeasurement(ts, cpm, radiation))
	return nil
}

// dispatch hands m to each enabled sink in registration order. A failing sink
// never stops the others.
func (e *Engine) dispatch(m domain.Measurement) {
	for _, s := range e.sinks {
		if !s.Enabled() {
			continue
		}
		start := e.clock.Now()
		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.SinkTimeout)
		err := s.Update(ctx, m)
		cancel()
		e.obs.ObserveLatency(MetricSinkLatency, e.clock.Now().Sub(start).Seconds())

		if err != nil {
			if !errors.Is(err, domain.ErrSink) {
				err = fmt.Errorf("%w: %s: %v", domain.ErrSink, s.Name(), err)
			}
			e.obs.IncCounter(MetricSinkFailures, 1)
			e.obs.LogError("sink_update_failed", err, ports.Field{Key: "sink", Value: s.Name()})
		}
	}
}

// recover resets the link and reprograms the device as Start does.
func (e *Engine) recover() error {
	e.setState(StateRecovering)
	e.obs.LogInfo("device_reset")

	if err := e.inst.Reset(); err != nil {
		return err
	}
	return e.program()
}

func (e *Engine) program() error {
	if err := e.inst.SetVoltage(e.cfg.TubeVoltage); err != nil {
		return err
	}
	return e.inst.SetInterval(e.cfg.Interval)
}

func (e *Engine) fail(err error) {
	e.obs.LogCritical("device_reinit_failed", err)

	e.mu.Lock()
	e.err = fmt.Errorf("monitor stopped: %w", err)
	e.state = StateStopped
	e.mu.Unlock()

	e.closeSinks()
}

func (e *Engine) closeSinks() {
	e.closeOnce.Do(func() {
		e.obs.LogInfo("stopping_sinks")
		for _, s := range e.sinks {
			if !s.Enabled() {
				continue
			}
			if err := s.Close(); err != nil {
				e.obs.LogError("sink_close_failed", err, ports.Field{Key: "sink", Value: s.Name()})
			}
		}
	})
}

func (e *Engine) enabledSinks() int {
	n := 0
	for _, s := range e.sinks {
		if s.Enabled() {
			n++
		}
	}
	return n
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateStopped {
		return
	}
	e.state = s
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

type nopObs struct{}

func (nopObs) LogInfo(string, ...ports.Field)           {}
func (nopObs) LogError(string, error, ...ports.Field)    {}
func (nopObs) LogCritical(string, error, ...ports.Field) {}
func (nopObs) IncCounter(string, float64)                {}
func (nopObs) ObserveLatency(string, float64)            {}
func (nopObs) SetGauge(string, float64)                  {}
