// Package metrics exposes the engine's Prometheus counters and gauges.
// The registry is constructed and passed explicitly rather than living in
// package-level state, so tests can run isolated registries.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's instruments, all registered against one registry.
type Metrics struct {
	registry *prometheus.Registry

	// MutationsProposed counts proposals accepted for analysis.
	MutationsProposed prometheus.Counter

	// MutationsCompleted counts proposals that reached applied.
	MutationsCompleted prometheus.Counter

	// MutationsFailed counts proposals that reached failed or rolled_back.
	MutationsFailed prometheus.Counter

	// PendingApprovals gauges approval requests awaiting a response.
	PendingApprovals prometheus.Gauge

	// Connections gauges live channel sessions currently registered.
	Connections prometheus.Gauge

	// TasksInFlight gauges agent tasks currently executing, by agent type.
	TasksInFlight *prometheus.GaugeVec

	// TaskRetries counts agent task retry attempts, by agent type.
	TaskRetries *prometheus.CounterVec
}

// New creates a Metrics set on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		MutationsProposed: factory.NewCounter(prometheus.CounterOpts{
			Name: "specforge_mutations_proposed_total",
			Help: "counter of mutation proposals accepted for analysis",
		}),
		MutationsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "specforge_mutations_completed_total",
			Help: "counter of mutation proposals applied to the spec graph",
		}),
		MutationsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "specforge_mutations_failed_total",
			Help: "counter of mutation proposals that failed or rolled back",
		}),
		PendingApprovals: factory.NewGauge(prometheus.GaugeOpts{
			Name: "specforge_pending_approvals",
			Help: "gauge of approval requests awaiting a user response",
		}),
		Connections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "specforge_ws_connections",
			Help: "gauge of registered live channel sessions",
		}),
		TasksInFlight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "specforge_agent_tasks_inflight",
			Help: "gauge of agent tasks currently executing",
		}, []string{"agent_type"}),
		TaskRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "specforge_agent_task_retries_total",
			Help: "counter of agent task retry attempts",
		}, []string{"agent_type"}),
	}
}

// Handler returns the HTTP handler serving the registry in Prometheus
// exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for additional collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
