package geiger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := ParseConfig([]byte("monitor:\n  interval: 10\n"))
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Metrics.Addr = ""
	return cfg
}

func TestNewRuntimeWithCustomAdapters(t *testing.T) {
	cfg := testConfig(t)
	link := newFakeLink()
	obs := &recordingObs{}
	cb := NewCallbackSink("cb", func(context.Context, Measurement) error { return nil })

	rt, err := NewRuntime(context.Background(), cfg,
		WithDeviceLink(link),
		WithObservability(obs),
		WithSink(cb),
	)
	if err != nil {
		t.Fatalf("NewRuntime returned error: %v", err)
	}
	if rt.link != link {
		t.Fatalf("expected custom link to be used")
	}
	if rt.obs != obs {
		t.Fatalf("expected custom observability to be used")
	}
	if got := rt.Sinks(); len(got) != 1 || got[0] != "cb" {
		t.Fatalf("unexpected sinks: %v", got)
	}

	if err := rt.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	sent := link.sentRequests()
	if len(sent) != 2 || sent[0] != 30 || sent[1] != 20 {
		t.Fatalf("expected voltage then interval programming, got %v", sent)
	}
	if err := rt.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if cb.Enabled() {
		t.Fatalf("expected sinks to be closed on shutdown")
	}
	if link.closed != 0 {
		t.Fatalf("runtime must not close a caller-owned link")
	}
	if rt.State() != StateStopped {
		t.Fatalf("expected stopped state, got %s", rt.State())
	}
}

func TestRuntimeRegistryOrderAndFailedSinks(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sinks.CSV = CSVConfig{Enabled: true, FileName: filepath.Join(t.TempDir(), "geiger.csv")}
	cfg.Sinks.Radmon = RadmonConfig{Enabled: true}
	obs := &recordingObs{}

	rt, err := NewRuntime(context.Background(), cfg,
		WithDeviceLink(newFakeLink()),
		WithObservability(obs),
		WithSink(NewCallbackSink("extra", func(context.Context, Measurement) error { return nil })),
	)
	if err != nil {
		t.Fatalf("NewRuntime returned error: %v", err)
	}
	defer rt.Shutdown(context.Background())

	got := rt.Sinks()
	if len(got) != 2 || got[0] != "csvfile" || got[1] != "extra" {
		t.Fatalf("unexpected sinks: %v", got)
	}
	if obs.errorCount("sink_init_failed") != 1 {
		t.Fatalf("expected one sink_init_failed log, got %v", obs.errors)
	}
}

func TestRuntimeRefusesToStartWithoutSinks(t *testing.T) {
	rt, err := NewRuntime(context.Background(), testConfig(t),
		WithDeviceLink(newFakeLink()),
		WithObservability(&recordingObs{}),
	)
	if err != nil {
		t.Fatalf("NewRuntime returned error: %v", err)
	}
	if err := rt.Run(context.Background()); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestRuntimeRunReturnsFatalError(t *testing.T) {
	link := newFakeLink()
	link.receiveErr = errUnplugged
	link.resetErr = errUnplugged

	rt, err := NewRuntime(context.Background(), testConfig(t),
		WithDeviceLink(link),
		WithObservability(&recordingObs{}),
		WithClock(immediateClock{}),
		WithSink(NewCallbackSink("cb", func(context.Context, Measurement) error { return nil })),
	)
	if err != nil {
		t.Fatalf("NewRuntime returned error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = rt.Run(ctx)
	if !errors.Is(err, errUnplugged) {
		t.Fatalf("expected fatal device error, got %v", err)
	}
	if rt.State() != StateStopped {
		t.Fatalf("expected stopped state, got %s", rt.State())
	}
}

func TestRuntimeDeliversMeasurements(t *testing.T) {
	link := newFakeLink()
	link.regs[10] = 100

	sink, ch, closeFn := NewChannelSink("chan", 1)
	defer closeFn()

	cfg := testConfig(t)
	cfg.Monitor.SinkTimeout = 20 * time.Millisecond
	rt, err := NewRuntime(context.Background(), cfg,
		WithDeviceLink(link),
		WithObservability(&recordingObs{}),
		WithClock(immediateClock{}),
		WithSink(sink),
	)
	if err != nil {
		t.Fatalf("NewRuntime returned error: %v", err)
	}
	if err := rt.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer rt.Shutdown(context.Background())

	select {
	case m := <-ch:
		// 100 counts over the 10 s interval programmed at start
		if m.CPM == nil || *m.CPM != 600 || m.Radiation == nil || *m.Radiation != 4 {
			t.Fatalf("unexpected measurement: %+v", m)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for measurement")
	}
}

func TestNewRuntimeRequiresConfig(t *testing.T) {
	if _, err := NewRuntime(context.Background(), nil); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}
