// Package metrics provides Prometheus metric collectors for the
// identification pipeline and its storage layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics contains Prometheus metrics for the provider fan-out,
// confidence routing, and review state machine. All record methods are safe
// to call on a nil receiver so metrics can stay optional in tests.
type PipelineMetrics struct {
	registry *prometheus.Registry

	// Provider call metrics
	providerCallsTotal   *prometheus.CounterVec
	providerCallDuration *prometheus.HistogramVec
	providerRetriesTotal *prometheus.CounterVec

	// Routing metrics
	routeDecisionsTotal *prometheus.CounterVec

	// Review metrics
	reviewsTotal *prometheus.CounterVec

	collectors []prometheus.Collector
}

// NewPipelineMetrics creates and registers new pipeline metrics
func NewPipelineMetrics(registry *prometheus.Registry) (*PipelineMetrics, error) {
	m := &PipelineMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *PipelineMetrics) initMetrics() {
	m.providerCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identify_provider_calls_total",
			Help: "Total number of classification provider calls",
		},
		[]string{"provider", "outcome"}, // outcome: ok, error, no_match
	)

	m.providerCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "identify_provider_call_duration_seconds",
			Help:    "Time taken for classification provider calls including retries",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"provider"},
	)

	m.providerRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identify_provider_retries_total",
			Help: "Total number of retried classification provider calls",
		},
		[]string{"provider"},
	)

	m.routeDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identify_route_decisions_total",
			Help: "Total number of confidence routing decisions",
		},
		[]string{"target", "status", "reason"},
	)

	m.reviewsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identify_reviews_total",
			Help: "Total number of reviewer decisions",
		},
		[]string{"decision", "status"}, // status: success, error
	)

	m.collectors = []prometheus.Collector{
		m.providerCallsTotal,
		m.providerCallDuration,
		m.providerRetriesTotal,
		m.routeDecisionsTotal,
		m.reviewsTotal,
	}
}

// Describe implements the Collector interface
func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordProviderCall records one completed provider call
func (m *PipelineMetrics) RecordProviderCall(provider, outcome string, duration float64) {
	if m == nil {
		return
	}
	m.providerCallsTotal.WithLabelValues(provider, outcome).Inc()
	m.providerCallDuration.WithLabelValues(provider).Observe(duration)
}

// RecordProviderRetry records one retried provider call attempt
func (m *PipelineMetrics) RecordProviderRetry(provider string) {
	if m == nil {
		return
	}
	m.providerRetriesTotal.WithLabelValues(provider).Inc()
}

// RecordRouteDecision records one confidence routing decision
func (m *PipelineMetrics) RecordRouteDecision(target, status, reason string) {
	if m == nil {
		return
	}
	m.routeDecisionsTotal.WithLabelValues(target, status, reason).Inc()
}

// RecordReview records one reviewer decision attempt
func (m *PipelineMetrics) RecordReview(decision string, success bool) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	m.reviewsTotal.WithLabelValues(decision, status).Inc()
}
