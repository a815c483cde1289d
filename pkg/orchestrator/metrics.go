package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the orchestrator's prometheus collectors.
type Metrics struct {
	BatchesCompleted   *prometheus.CounterVec
	BatchDuration      *prometheus.HistogramVec
	ComponentFailures  *prometheus.CounterVec
	RowsCreated        *prometheus.CounterVec
	RowsFailed         *prometheus.CounterVec
	ComponentsFinished prometheus.Counter
}

// NewMetrics creates and registers the collectors. A nil registerer leaves
// them unregistered, which tests use to avoid global state.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BatchesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "j2o",
			Name:      "batches_completed_total",
			Help:      "Batches loaded into the target, per component.",
		}, []string{"component"}),
		BatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "j2o",
			Name:      "batch_duration_seconds",
			Help:      "Wall time per loaded batch.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"component"}),
		ComponentFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "j2o",
			Name:      "component_failures_total",
			Help:      "Component runs that ended in an error.",
		}, []string{"component"}),
		RowsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "j2o",
			Name:      "rows_created_total",
			Help:      "Target records created, per component.",
		}, []string{"component"}),
		RowsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "j2o",
			Name:      "rows_failed_total",
			Help:      "Rows rejected by the target, per component.",
		}, []string{"component"}),
		ComponentsFinished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "j2o",
			Name:      "components_finished_total",
			Help:      "Components that ran to completion.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.BatchesCompleted, m.BatchDuration, m.ComponentFailures,
			m.RowsCreated, m.RowsFailed, m.ComponentsFinished,
		)
	}
	return m
}
