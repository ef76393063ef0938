// Package metrics exposes dispatch pipeline counters as Prometheus
// collectors on a private registry.
package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"botswarm/internal/dispatch"
)

// Exporter adapts dispatch.Metrics to Prometheus collectors.
type Exporter struct {
	reg *prom.Registry

	requestsTotal prom.Counter
	outcomesTotal *prom.CounterVec
	waveDuration  prom.Histogram
	unitsInflight prom.Gauge
}

var _ dispatch.Metrics = (*Exporter)(nil)

func NewExporter(namespace string) *Exporter {
	if namespace == "" {
		namespace = "botswarm"
	}
	reg := prom.NewRegistry()

	e := &Exporter{
		reg: reg,
		requestsTotal: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_requests_total",
			Help:      "Total number of dispatch requests started.",
		}),
		outcomesTotal: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_outcomes_total",
			Help:      "Per-participant outcomes by engine and result.",
		}, []string{"engine", "result"}),
		waveDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_wave_duration_seconds",
			Help:      "Wall time each scheduler wave took to settle.",
			Buckets:   prom.DefBuckets,
		}),
		unitsInflight: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "dispatch_inflight_units",
			Help:      "Execution units currently running.",
		}),
	}
	reg.MustRegister(e.requestsTotal, e.outcomesTotal, e.waveDuration, e.unitsInflight)
	return e
}

// Handler serves the registry in the Prometheus text format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.reg, promhttp.HandlerOpts{})
}

func (e *Exporter) RequestStarted() {
	if e == nil {
		return
	}
	e.requestsTotal.Inc()
}

func (e *Exporter) OutcomeRecorded(engine string, success bool) {
	if e == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	e.outcomesTotal.WithLabelValues(engine, result).Inc()
}

func (e *Exporter) WaveFinished(took time.Duration) {
	if e == nil {
		return
	}
	e.waveDuration.Observe(took.Seconds())
}

func (e *Exporter) UnitStarted() {
	if e == nil {
		return
	}
	e.unitsInflight.Inc()
}

func (e *Exporter) UnitFinished() {
	if e == nil {
		return
	}
	e.unitsInflight.Dec()
}
