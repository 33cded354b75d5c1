// Package middleware provides cross-cutting concerns for the matching engine.
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/go-compass/internal/ports"
)

// Metric names understood by PrometheusMetrics. Anything else is routed to
// the generic operation counter, gauge or latency histogram.
const (
	MetricComparisons      = "comparisons_total"
	MetricProximityScore   = "proximity_score"
	MetricCommonStatements = "common_statements"
)

// Label keys read from the labels map.
const (
	LabelProfile = "profile"
	LabelOutcome = "outcome"
	LabelStatus  = "status"
)

const unknownLabel = "unknown"

// PrometheusMetrics implements the MetricsCollector interface using Prometheus.
// It tracks comparison volume, score distribution and latency per scoring
// profile.
type PrometheusMetrics struct {
	comparisons      *prometheus.CounterVec
	proximityScore   *prometheus.HistogramVec
	commonStatements *prometheus.HistogramVec
	executionLatency *prometheus.HistogramVec
	operationCounter *prometheus.CounterVec
	systemGauges     *prometheus.GaugeVec
}

// NewPrometheusMetrics creates a new PrometheusMetrics instance and registers
// all metrics on reg. A nil reg means the global default registerer.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		// Scoring metrics.
		comparisons: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "compass",
				Name:      MetricComparisons,
				Help:      "Total number of position comparisons by outcome.",
			},
			[]string{LabelProfile, LabelOutcome},
		),
		proximityScore: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "compass",
				Name:      MetricProximityScore,
				Help:      "Distribution of numeric proximity scores.",
				Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
			},
			[]string{LabelProfile},
		),
		commonStatements: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "compass",
				Name:      MetricCommonStatements,
				Help:      "Number of statements both sides answered per comparison.",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
			},
			[]string{LabelProfile},
		),

		// General execution metrics.
		executionLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "compass",
				Name:      "operation_duration_seconds",
				Help:      "Execution time of engine operations.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation", LabelProfile},
		),
		operationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "compass",
				Name:      "operations_total",
				Help:      "Total number of engine operations by status.",
			},
			[]string{"operation", LabelStatus, LabelProfile},
		),
		systemGauges: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "compass",
				Name:      "state",
				Help:      "Current engine state values.",
			},
			[]string{"metric", LabelProfile},
		),
	}
}

// RecordLatency implements the MetricsCollector interface by recording
// execution latency in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordLatency(
	operation string,
	duration time.Duration,
	labels map[string]string,
) {
	pm.executionLatency.WithLabelValues(operation, labelOr(labels, LabelProfile)).Observe(duration.Seconds())
}

// RecordCounter implements the MetricsCollector interface by incrementing
// Prometheus counters.
func (pm *PrometheusMetrics) RecordCounter(
	metric string, value float64, labels map[string]string,
) {
	profile := labelOr(labels, LabelProfile)

	switch metric {
	case MetricComparisons:
		pm.comparisons.WithLabelValues(profile, labelOr(labels, LabelOutcome)).Add(value)
	default:
		status := labels[LabelStatus]
		if status == "" {
			status = "success"
		}
		pm.operationCounter.WithLabelValues(metric, status, profile).Add(value)
	}
}

// RecordGauge implements the MetricsCollector interface by setting
// Prometheus gauge values.
func (pm *PrometheusMetrics) RecordGauge(
	metric string, value float64, labels map[string]string,
) {
	pm.systemGauges.WithLabelValues(metric, labelOr(labels, LabelProfile)).Set(value)
}

// RecordHistogram implements the MetricsCollector interface by recording
// values in a Prometheus histogram. Unrecognized metrics share the
// execution latency histogram.
func (pm *PrometheusMetrics) RecordHistogram(
	metric string, value float64, labels map[string]string,
) {
	profile := labelOr(labels, LabelProfile)

	switch metric {
	case MetricProximityScore:
		pm.proximityScore.WithLabelValues(profile).Observe(value)
	case MetricCommonStatements:
		pm.commonStatements.WithLabelValues(profile).Observe(value)
	default:
		pm.executionLatency.WithLabelValues(metric, profile).Observe(value)
	}
}

func labelOr(labels map[string]string, key string) string {
	if v := labels[key]; v != "" {
		return v
	}
	return unknownLabel
}

// Compile-time verification that PrometheusMetrics implements MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)
