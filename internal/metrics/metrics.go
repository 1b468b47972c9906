// Package metrics exposes Prometheus instrumentation for the publishing
// scheduler and recovery service. The event-bus and SSE collectors
// (EventsDropped, SSEConnections) and the PublishingPaused and QueueDepth
// gauges are registered, but no caller outside tests updates them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector Sophia registers.
type Metrics struct {
	DispatchTotal   *prometheus.CounterVec
	DispatchRetries *prometheus.CounterVec
	QueueDepth      *prometheus.GaugeVec
	RecoveryTotal   *prometheus.CounterVec
	EventsDropped   *prometheus.CounterVec
	SSEConnections  prometheus.Gauge
	PublishingPaused prometheus.Gauge
}

// New creates and registers Sophia's metrics under the given namespace.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "sophia"
	}

	return &Metrics{
		DispatchTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_total",
				Help:      "Total number of platform dispatch attempts by platform and outcome",
			},
			[]string{"platform", "status"},
		),
		DispatchRetries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_retries_total",
				Help:      "Total number of retried dispatch attempts by platform",
			},
			[]string{"platform"},
		),
		QueueDepth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_depth",
				Help:      "Number of queue entries by status",
			},
			[]string{"status"},
		),
		RecoveryTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "recovery_total",
				Help:      "Total number of recovery attempts by resulting status",
			},
			[]string{"status"},
		),
		EventsDropped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_dropped_total",
				Help:      "Total number of events dropped because a subscriber's buffer was full",
			},
			[]string{"event_type"},
		),
		SSEConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sse_connections",
				Help:      "Number of currently open SSE connections",
			},
		),
		PublishingPaused: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "publishing_paused",
				Help:      "1 if global publishing is paused, 0 otherwise",
			},
		),
	}
}

// RecordDispatch records the outcome of a single platform dispatch attempt.
func (m *Metrics) RecordDispatch(platform, status string) {
	m.DispatchTotal.WithLabelValues(platform, status).Inc()
}

// RecordRetry records a scheduler retry for the given platform.
func (m *Metrics) RecordRetry(platform string) {
	m.DispatchRetries.WithLabelValues(platform).Inc()
}

// RecordRecovery records the terminal status of a recovery attempt.
func (m *Metrics) RecordRecovery(status string) {
	m.RecoveryTotal.WithLabelValues(status).Inc()
}

// SetQueueDepth sets the current queue depth gauge for a status.
func (m *Metrics) SetQueueDepth(status string, n int) {
	m.QueueDepth.WithLabelValues(status).Set(float64(n))
}
