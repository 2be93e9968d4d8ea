// Package metrics exposes Prometheus instruments for the worker engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	WorkersSpawned prometheus.Counter
	WorkersActive  prometheus.Gauge
	Messages       *prometheus.CounterVec // direction, outcome
	Faults         *prometheus.CounterVec // kind, disposition
	LoadFailures   prometheus.Counter
	Discarded      *prometheus.CounterVec // direction

	registry prometheus.Gatherer
}

// New registers the engine collectors with reg. A nil reg gets a private
// registry so several engines can coexist in one process.
func New(reg prometheus.Registerer) *Metrics {
	var gatherer prometheus.Gatherer
	if reg == nil {
		r := prometheus.NewRegistry()
		reg, gatherer = r, r
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	f := promauto.With(reg)
	return &Metrics{
		WorkersSpawned: f.NewCounter(prometheus.CounterOpts{
			Name: "jsworker_workers_spawned_total",
			Help: "Total number of workers constructed",
		}),
		WorkersActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "jsworker_workers_active",
			Help: "Number of workers that have not terminated",
		}),
		Messages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "jsworker_messages_total",
			Help: "Messages by direction and outcome",
		}, []string{"direction", "outcome"}),
		Faults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "jsworker_faults_total",
			Help: "Faults raised inside workers by kind and disposition",
		}, []string{"kind", "disposition"}),
		LoadFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "jsworker_script_load_failures_total",
			Help: "Worker scripts that failed to load or compile",
		}),
		Discarded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "jsworker_messages_discarded_total",
			Help: "Undelivered messages dropped by terminate",
		}, []string{"direction"}),
		registry: gatherer,
	}
}

// Gatherer returns the registry the collectors live in, or nil when the
// caller supplied a Registerer that cannot gather.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}
