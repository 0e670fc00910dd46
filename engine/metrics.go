package wampEngine

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	registry  *prometheus.Registry
	published *prometheus.CounterVec
	received  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	sessions  *prometheus.GaugeVec
	pending   prometheus.Gauge
}

func newMetrics() *Metrics {
	metrics := Metrics{
		registry: prometheus.NewRegistry(),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wampytester",
			Name:      "published_total",
			Help:      "Publications handed to a session",
		}, []string{"realm"}),
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wampytester",
			Name:      "received_total",
			Help:      "Events received by subscriptions",
		}, []string{"realm"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wampytester",
			Name:      "errors_total",
			Help:      "Reported errors by kind",
		}, []string{"kind"}),
		sessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "wampytester",
			Name:      "sessions",
			Help:      "Session handles held by the registry",
		}, []string{"role"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wampytester",
			Name:      "pending_publishes",
			Help:      "Publish requests waiting for their fire time or session",
		}),
	}
	metrics.registry.MustRegister(
		metrics.published,
		metrics.received,
		metrics.errors,
		metrics.sessions,
		metrics.pending,
	)
	return &metrics
}

// Registry is the per-engine Prometheus registry
func (metrics *Metrics) Registry() *prometheus.Registry {
	return metrics.registry
}

func (metrics *Metrics) countError(kind ErrorKind) {
	metrics.errors.WithLabelValues(kind.String()).Inc()
}
