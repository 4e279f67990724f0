package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/slomkowski/usb-geiger/internal/ports"
)

func TestPromObsMetrics(t *testing.T) {
	origReg := prometheus.DefaultRegisterer
	origGatherer := prometheus.DefaultGatherer
	t.Cleanup(func() {
		prometheus.DefaultRegisterer = origReg
		prometheus.DefaultGatherer = origGatherer
	})

	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg

	obs := NewPromObs()

	obs.IncCounter("geiger_cycles_total", 3)
	if got := testutil.ToFloat64(obs.counters["geiger_cycles_total"]); got != 3 {
		t.Fatalf("expected cycles counter 3, got %f", got)
	}

	obs.IncCounter("geiger_sink_failures_total", 1)
	if got := testutil.ToFloat64(obs.counters["geiger_sink_failures_total"]); got != 1 {
		t.Fatalf("expected sink failure counter 1, got %f", got)
	}

	obs.SetGauge("geiger_cpm", 18.5)
	if got := testutil.ToFloat64(obs.gauges["geiger_cpm"]); got != 18.5 {
		t.Fatalf("expected cpm gauge 18.5, got %f", got)
	}

	obs.ObserveLatency("geiger_sink_latency_seconds", 0.25)
	hCollector := obs.histos["geiger_sink_latency_seconds"].(prometheus.Collector)
	if samples := testutil.CollectAndCount(hCollector); samples != 1 {
		t.Fatalf("expected latency histogram to record 1 sample, got %d", samples)
	}

	// unknown names are ignored
	obs.IncCounter("nope", 1)
	obs.SetGauge("nope", 1)
}

func TestFormatFields(t *testing.T) {
	got := formatFields([]ports.Field{{Key: "sink", Value: "csv"}, {Key: "cpm", Value: 12.5}})
	if got != " sink=csv cpm=12.5" {
		t.Fatalf("unexpected fields rendering %q", got)
	}
	if formatFields(nil) != "" {
		t.Fatalf("expected empty rendering for no fields")
	}
}
