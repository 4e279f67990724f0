package observability

import (
	"fmt"
	"log"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/slomkowski/usb-geiger/internal/ports"
)

type PromObs struct {
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

func NewPromObs() *PromObs {
	cycles := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geiger_cycles_total",
		Help: "Measuring cycles that produced a reading.",
	})
	linkFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geiger_link_failures_total",
		Help: "Cycles aborted by a USB communication failure.",
	})
	recoveries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geiger_link_recoveries_total",
		Help: "Successful device resets after a communication failure.",
	})
	sinkFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geiger_sink_failures_total",
		Help: "Measurements a sink failed to deliver.",
	})
	cpm := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "geiger_cpm",
		Help: "Counts per minute of the last cycle.",
	})
	radiation := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "geiger_radiation_usvh",
		Help: "Dose rate of the last cycle in uSv/h.",
	})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "geiger_sink_latency_seconds",
		Help:    "Time spent delivering one measurement to one sink.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	})

	prometheus.MustRegister(cycles, linkFailures, recoveries, sinkFailures, cpm, radiation, latency)

	return &PromObs{
		counters: map[string]prometheus.Counter{
			"geiger_cycles_total":          cycles,
			"geiger_link_failures_total":   linkFailures,
			"geiger_link_recoveries_total": recoveries,
			"geiger_sink_failures_total":   sinkFailures,
		},
		gauges: map[string]prometheus.Gauge{
			"geiger_cpm":            cpm,
			"geiger_radiation_usvh": radiation,
		},
		histos: map[string]prometheus.Observer{
			"geiger_sink_latency_seconds": latency,
		},
	}
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	log.Printf("INFO: %s%s", msg, formatFields(fields))
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	if err != nil {
		log.Printf("ERROR: %s: %v%s", msg, err, formatFields(fields))
	}
}

func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	if err != nil {
		log.Printf("CRITICAL: %s: %v%s", msg, err, formatFields(fields))
	}
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func formatFields(fields []ports.Field) string {
	if len(fields) == 0 {
		return ""
	}
	var b strings.Builder
	for _, f := range fields {
		fmt.Fprintf(&b, " %s=%v", f.Key, f.Value)
	}
	return b.String()
}

var _ ports.Observability = (*PromObs)(nil)
