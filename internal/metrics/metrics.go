// Package metrics exposes Prometheus instruments for pipeline runs and pack administration.
//
// All methods are safe on a nil *Metrics, so components can record unconditionally.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "preflight"

// Metrics holds the instruments and the registry they are registered with.
type Metrics struct {
	registry *prometheus.Registry

	runs          *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	decisions     *prometheus.CounterVec
	gateReasons   *prometheus.CounterVec
	recoveries    *prometheus.CounterVec
	packOps       *prometheus.CounterVec
}

// New creates the instruments on a fresh registry, including Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by outcome (composed, blocked, error).",
		}, []string{"outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage, including artifact persistence.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"stage"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profile_decisions_total",
			Help:      "Classifier decisions.",
		}, []string{"decision"}),
		gateReasons: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_reasons_total",
			Help:      "PreCheck failure reasons by code.",
		}, []string{"code"}),
		recoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_recoveries_total",
			Help:      "Compose failures recovered, by recovery source.",
		}, []string{"source"}),
		packOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pack_operations_total",
			Help:      "Pack administration operations by result.",
		}, []string{"op", "result"}),
	}
	reg.MustRegister(
		m.runs, m.stageDuration, m.decisions, m.gateReasons, m.recoveries, m.packOps,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Run records the outcome of one pipeline run.
func (m *Metrics) Run(outcome string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
}

// Stage records how long a stage took, measured from start.
func (m *Metrics) Stage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// Decision counts a classifier decision.
func (m *Metrics) Decision(decision string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(decision).Inc()
}

// GateReason counts a PreCheck failure reason.
func (m *Metrics) GateReason(code string) {
	if m == nil {
		return
	}
	m.gateReasons.WithLabelValues(code).Inc()
}

// Recovery counts an enrichment recovery.
func (m *Metrics) Recovery(source string) {
	if m == nil {
		return
	}
	m.recoveries.WithLabelValues(source).Inc()
}

// PackOp counts a pack operation. err == nil is recorded as "ok".
func (m *Metrics) PackOp(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.packOps.WithLabelValues(op, result).Inc()
}

// Counter exposes the run counter for a given outcome; used by tests and the status surfaces.
func (m *Metrics) Counter(outcome string) prometheus.Counter {
	return m.runs.WithLabelValues(outcome)
}
