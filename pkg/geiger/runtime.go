package geiger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/slomkowski/usb-geiger/internal/adapters/observability"
	"github.com/slomkowski/usb-geiger/internal/adapters/sink"
	"github.com/slomkowski/usb-geiger/internal/adapters/usb"
	"github.com/slomkowski/usb-geiger/internal/app/converter"
	"github.com/slomkowski/usb-geiger/internal/app/monitor"
	"github.com/slomkowski/usb-geiger/internal/ports"
)

// RuntimeOption customizes the dependencies used by Runtime.
type RuntimeOption func(*runtimeOverrides)

type runtimeOverrides struct {
	link          DeviceLink
	sinks         []Sink
	observability Observability
	clock         Clock
}

// WithDeviceLink replaces the libusb transport, e.g. with a simulator.
func WithDeviceLink(link DeviceLink) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.link = link
	}
}

// WithSink registers an additional sink after the configured ones.
func WithSink(s Sink) RuntimeOption {
	return func(o *runtimeOverrides) {
		if s != nil {
			o.sinks = append(o.sinks, s)
		}
	}
}

// WithObservability plugs in a custom observability backend.
func WithObservability(obs Observability) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.observability = obs
	}
}

// WithClock overrides the wall clock used for scheduling.
func WithClock(c Clock) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.clock = c
	}
}

type sinkFactory struct {
	name  string
	build func(ctx context.Context, cfg *Config) (ports.Sink, error)
}

// sinkRegistry is evaluated in order; the order is also the dispatch order.
var sinkRegistry = []sinkFactory{
	{"csvfile", func(_ context.Context, c *Config) (ports.Sink, error) { return built(sink.NewCSVFile(c.Sinks.CSV)) }},
	{"postgres", func(ctx context.Context, c *Config) (ports.Sink, error) { return built(sink.OpenPostgres(ctx, c.Sinks.Postgres)) }},
	{"email", func(_ context.Context, c *Config) (ports.Sink, error) { return built(sink.NewEmail(c.Sinks.Email)) }},
	{"radmon", func(_ context.Context, c *Config) (ports.Sink, error) { return built(sink.NewRadmon(c.Sinks.Radmon)) }},
	{"kafka", func(_ context.Context, c *Config) (ports.Sink, error) { return built(sink.NewKafka(c.Sinks.Kafka)) }},
	{"mongodb", func(ctx context.Context, c *Config) (ports.Sink, error) { return built(sink.NewMongo(ctx, c.Sinks.MongoDB)) }},
	{"opcua", func(ctx context.Context, c *Config) (ports.Sink, error) { return built(sink.NewOPCUA(ctx, c.Sinks.OPCUA)) }},
}

func built[S ports.Sink](s S, err error) (ports.Sink, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Runtime wires the USB link, unit converter, sinks and monitoring engine and
// exposes simple lifecycle hooks for embedding the monitor inside any Go service.
type Runtime struct {
	cfg        *Config
	obs        ports.Observability
	link       ports.DeviceLink
	ownsLink   bool
	conv       *converter.Converter
	sinks      []ports.Sink
	engine     *monitor.Engine
	metricsSrv *http.Server
}

// NewRuntime opens the device and builds every enabled sink. A sink whose
// section is enabled but unusable is logged and left out.
func NewRuntime(ctx context.Context, cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is required", ErrConfiguration)
	}

	var overrides runtimeOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}

	obs := overrides.observability
	if obs == nil {
		obs = observability.NewPromObs()
	}

	link := overrides.link
	ownsLink := false
	if link == nil {
		l, err := usb.Open(cfg.Device.USB)
		if err != nil {
			return nil, err
		}
		link = l
		ownsLink = true
	}

	sinks := buildSinks(ctx, cfg, obs)
	sinks = append(sinks, overrides.sinks...)

	conv := converter.New(link, cfg.Device.Tube)
	engineOpts := []monitor.Option{monitor.WithObservability(obs)}
	if overrides.clock != nil {
		engineOpts = append(engineOpts, monitor.WithClock(overrides.clock))
	}
	engine := monitor.New(conv, sinks, monitor.Config{
		Interval:    cfg.Monitor.Interval,
		TubeVoltage: conv.Params().TubeVoltage,
		SinkTimeout: cfg.Monitor.SinkTimeout,
	}, engineOpts...)

	return &Runtime{
		cfg:      cfg,
		obs:      obs,
		link:     link,
		ownsLink: ownsLink,
		conv:     conv,
		sinks:    sinks,
		engine:   engine,
	}, nil
}

func buildSinks(ctx context.Context, cfg *Config, obs ports.Observability) []ports.Sink {
	var sinks []ports.Sink
	for _, f := range sinkRegistry {
		s, err := f.build(ctx, cfg)
		if err != nil {
			obs.LogError("sink_init_failed", err, ports.Field{Key: "sink", Value: f.name})
			continue
		}
		if !s.Enabled() {
			continue
		}
		obs.LogInfo("sink_enabled", ports.Field{Key: "sink", Value: f.name})
		sinks = append(sinks, s)
	}
	return sinks
}

// Start programs the device, starts the monitoring loop and the metrics
// server. It returns immediately; call Run to block on a context instead.
func (r *Runtime) Start(ctx context.Context) error {
	if r == nil {
		return fmt.Errorf("runtime is nil")
	}
	if err := r.engine.Start(ctx); err != nil {
		return err
	}
	r.startMetrics()
	return nil
}

// Run starts the runtime and blocks until ctx is cancelled or the engine
// stops on its own. It returns the engine's fatal error, if any.
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.Start(ctx); err != nil {
		_ = r.Shutdown(context.Background())
		return err
	}
	select {
	case <-ctx.Done():
	case <-r.engine.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	shutdownErr := r.Shutdown(shutdownCtx)
	return errors.Join(r.engine.Err(), shutdownErr)
}

// Shutdown stops the engine, which closes the sinks, then the metrics server
// and the device link.
func (r *Runtime) Shutdown(ctx context.Context) error {
	var errs []error

	r.engine.Stop()

	if r.metricsSrv != nil {
		if err := r.metricsSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
	}

	if r.ownsLink && r.link != nil {
		if err := r.link.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// State reports the engine state.
func (r *Runtime) State() State { return r.engine.State() }

// Err returns the fatal error that stopped the engine, if any.
func (r *Runtime) Err() error { return r.engine.Err() }

// Done is closed once the monitoring loop has exited.
func (r *Runtime) Done() <-chan struct{} { return r.engine.Done() }

// Sinks lists the active sinks in dispatch order.
func (r *Runtime) Sinks() []string {
	names := make([]string, len(r.sinks))
	for i, s := range r.sinks {
		names[i] = s.Name()
	}
	return names
}

func (r *Runtime) startMetrics() {
	if r.cfg.Metrics.Addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if r.engine.State() == StateStopped {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("stopped"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.metricsSrv = &http.Server{
		Addr:    r.cfg.Metrics.Addr,
		Handler: mux,
	}

	go func(srv *http.Server) {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics server exited: %v", err)
		}
	}(r.metricsSrv)
}
