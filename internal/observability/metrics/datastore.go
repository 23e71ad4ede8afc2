package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DatastoreMetrics contains Prometheus metrics for identification record
// storage operations.
type DatastoreMetrics struct {
	registry *prometheus.Registry

	dbOperationsTotal    *prometheus.CounterVec
	dbOperationDuration  *prometheus.HistogramVec
	reviewConflictsTotal prometheus.Counter

	collectors []prometheus.Collector
}

// NewDatastoreMetrics creates and registers new datastore metrics
func NewDatastoreMetrics(registry *prometheus.Registry) (*DatastoreMetrics, error) {
	m := &DatastoreMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *DatastoreMetrics) initMetrics() {
	m.dbOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datastore_operations_total",
			Help: "Total number of identification record storage operations",
		},
		[]string{"operation", "status"}, // operation: insert_batch, get, list, update_review
	)

	m.dbOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "datastore_operation_duration_seconds",
			Help:    "Time taken for identification record storage operations",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation"},
	)

	m.reviewConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "datastore_review_conflicts_total",
			Help: "Total number of review updates lost to a concurrent reviewer",
		},
	)

	m.collectors = []prometheus.Collector{
		m.dbOperationsTotal,
		m.dbOperationDuration,
		m.reviewConflictsTotal,
	}
}

// Describe implements the Collector interface
func (m *DatastoreMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *DatastoreMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordOperation records one storage operation and its duration
func (m *DatastoreMetrics) RecordOperation(operation, status string, duration float64) {
	if m == nil {
		return
	}
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
	m.dbOperationDuration.WithLabelValues(operation).Observe(duration)
}

// RecordReviewConflict records a review update lost to a concurrent reviewer
func (m *DatastoreMetrics) RecordReviewConflict() {
	if m == nil {
		return
	}
	m.reviewConflictsTotal.Inc()
}
