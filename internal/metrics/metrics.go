// Package metrics holds the Prometheus collectors exported by the gateway.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector; each gateway instance owns its own registry
type Metrics struct {
	registry *prometheus.Registry

	FetchDuration  *prometheus.HistogramVec
	FetchErrors    *prometheus.CounterVec
	StrategyServed *prometheus.CounterVec
	CacheLookups   *prometheus.CounterVec
	WarmRuns       prometheus.Counter
	WarmItems      *prometheus.CounterVec
	ConsentChoices *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clubgate",
			Subsystem: "fetch",
			Name:      "duration_seconds",
			Help:      "Upstream fetch latency by response type.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clubgate",
			Subsystem: "fetch",
			Name:      "errors_total",
			Help:      "Upstream fetches that failed before a response arrived.",
		}, []string{"mode"}),
		StrategyServed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clubgate",
			Subsystem: "worker",
			Name:      "served_total",
			Help:      "Requests served by the worker, by strategy and source.",
		}, []string{"strategy", "source"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clubgate",
			Subsystem: "worker",
			Name:      "cache_lookups_total",
			Help:      "Cache partition lookups by partition role and result.",
		}, []string{"role", "result"}),
		WarmRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clubgate",
			Subsystem: "warm",
			Name:      "runs_total",
			Help:      "Completed cache warm runs.",
		}),
		WarmItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clubgate",
			Subsystem: "warm",
			Name:      "items_total",
			Help:      "Warm items by kind and outcome.",
		}, []string{"kind", "outcome"}),
		ConsentChoices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clubgate",
			Subsystem: "consent",
			Name:      "choices_total",
			Help:      "Consent decisions recorded.",
		}, []string{"state"}),
	}

	m.registry.MustRegister(
		m.FetchDuration,
		m.FetchErrors,
		m.StrategyServed,
		m.CacheLookups,
		m.WarmRuns,
		m.WarmItems,
		m.ConsentChoices,
	)

	return m
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
