package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// DriftMetrics contains all Prometheus metrics for data drift detection.
type DriftMetrics struct {
	ChecksTotal       prometheus.Counter
	CheckErrors       prometheus.Counter
	ChecksBySeverity  *prometheus.CounterVec
	CheckDuration     prometheus.Histogram
	LastCheckTime     prometheus.Gauge
	TagsAboveWarning  prometheus.Gauge
	registry          *prometheus.Registry
}

// NewDriftMetrics creates and registers drift metrics on the given registry.
func NewDriftMetrics(registry *prometheus.Registry) (*DriftMetrics, error) {
	m := &DriftMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register drift metrics: %w", err)
	}
	return m, nil
}

func (m *DriftMetrics) initMetrics() {
	m.ChecksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "drift_checks_total",
		Help: "Total number of completed drift checks",
	})

	m.CheckErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "drift_check_errors_total",
		Help: "Total number of drift checks that failed",
	})

	m.ChecksBySeverity = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "drift_checks_by_severity_total",
		Help: "Drift check outcomes by assessed severity",
	}, []string{"severity"})

	m.CheckDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "drift_check_duration_seconds",
		Help:    "Duration of one drift check in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	m.LastCheckTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "drift_last_check_timestamp_seconds",
		Help: "Timestamp of the last completed drift sweep",
	})

	m.TagsAboveWarning = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "drift_tags_above_warning",
		Help: "Number of tags whose latest drift severity is medium or worse",
	})
}

// RecordCheck records one completed drift check with its severity.
func (m *DriftMetrics) RecordCheck(severity string, durationSeconds float64) {
	m.ChecksTotal.Inc()
	m.ChecksBySeverity.WithLabelValues(severity).Inc()
	m.CheckDuration.Observe(durationSeconds)
}

// RecordCheckError counts one failed drift check.
func (m *DriftMetrics) RecordCheckError() {
	m.CheckErrors.Inc()
}

// SweepCompleted marks the end of a full drift sweep over all tags.
func (m *DriftMetrics) SweepCompleted(tagsAboveWarning int) {
	m.LastCheckTime.SetToCurrentTime()
	m.TagsAboveWarning.Set(float64(tagsAboveWarning))
}

// Collect implements the prometheus.Collector interface.
func (m *DriftMetrics) Collect(ch chan<- prometheus.Metric) {
	ch <- m.ChecksTotal
	ch <- m.CheckErrors
	m.ChecksBySeverity.Collect(ch)
	ch <- m.CheckDuration
	ch <- m.LastCheckTime
	ch <- m.TagsAboveWarning
}

// Describe implements the prometheus.Collector interface.
func (m *DriftMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.ChecksTotal.Desc()
	ch <- m.CheckErrors.Desc()
	m.ChecksBySeverity.Describe(ch)
	ch <- m.CheckDuration.Desc()
	ch <- m.LastCheckTime.Desc()
	ch <- m.TagsAboveWarning.Desc()
}
