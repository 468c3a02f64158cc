// Package metrics provides Prometheus metrics for the revision core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	EvaluationsTotal      *prometheus.CounterVec
	QueueTransitionsTotal *prometheus.CounterVec
	VersionsArchivedTotal prometheus.Counter
	VersionsPrunedTotal   prometheus.Counter
	RollbacksTotal        prometheus.Counter
	CorruptedVersionsTotal prometheus.Counter
	HTTPRequestDuration   *prometheus.HistogramVec
}

// New creates and registers all metrics on the default registerer.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith creates and registers all metrics on reg. Tests pass a fresh
// registry to avoid duplicate registration.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EvaluationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "naosu_evaluations_total",
				Help: "Total number of evaluation mutations",
			},
			[]string{"action"},
		),
		QueueTransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "naosu_queue_transitions_total",
				Help: "Total number of replacement queue state transitions",
			},
			[]string{"to"},
		),
		VersionsArchivedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "naosu_versions_archived_total",
				Help: "Total number of history entries compressed to archived",
			},
		),
		VersionsPrunedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "naosu_versions_pruned_total",
				Help: "Total number of archived history entries hard-deleted",
			},
		),
		RollbacksTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "naosu_rollbacks_total",
				Help: "Total number of paragraph rollbacks applied",
			},
		),
		CorruptedVersionsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "naosu_corrupted_versions_total",
				Help: "Total number of archived payloads that failed to decompress",
			},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "naosu_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}
