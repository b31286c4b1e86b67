package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OrchestratorMetrics contains all Prometheus metrics for training run
// orchestration.
type OrchestratorMetrics struct {
	RunsStarted     prometheus.Counter
	RunsCompleted   prometheus.Counter
	RunsAborted     prometheus.Counter
	RunsRejected    prometheus.Counter
	RunInProgress   prometheus.Gauge
	LastRunTime     prometheus.Gauge
	RunDuration     prometheus.Histogram
	EntityOutcomes  *prometheus.CounterVec
	EntityDuration  prometheus.Histogram
	PromotionsTotal prometheus.Counter
	registry        *prometheus.Registry
}

// NewOrchestratorMetrics creates and registers orchestrator metrics on the
// given registry.
func NewOrchestratorMetrics(registry *prometheus.Registry) (*OrchestratorMetrics, error) {
	m := &OrchestratorMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register orchestrator metrics: %w", err)
	}
	return m, nil
}

func (m *OrchestratorMetrics) initMetrics() {
	m.RunsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "training_runs_started_total",
		Help: "Total number of training runs started",
	})

	m.RunsCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "training_runs_completed_total",
		Help: "Total number of training runs that finished all entities",
	})

	m.RunsAborted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "training_runs_aborted_total",
		Help: "Total number of training runs aborted before processing entities",
	})

	m.RunsRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "training_runs_rejected_total",
		Help: "Total number of run attempts rejected because a run was already in progress",
	})

	m.RunInProgress = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "training_run_in_progress",
		Help: "Whether a training run is currently executing (1 or 0)",
	})

	m.LastRunTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "training_last_run_timestamp_seconds",
		Help: "Timestamp of the last completed training run",
	})

	m.RunDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "training_run_duration_seconds",
		Help:    "Duration of complete training runs in seconds",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	m.EntityOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "training_entity_outcomes_total",
		Help: "Per-entity training outcomes by result",
	}, []string{"outcome"})

	m.EntityDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "training_entity_duration_seconds",
		Help:    "Duration of per-entity train/evaluate/promote work in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	})

	m.PromotionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "training_model_promotions_total",
		Help: "Total number of candidate models promoted to active",
	})
}

// RunStarted marks the beginning of a run.
func (m *OrchestratorMetrics) RunStarted() {
	m.RunsStarted.Inc()
	m.RunInProgress.Set(1)
}

// RunCompleted marks a finished run and records its duration.
func (m *OrchestratorMetrics) RunCompleted(duration time.Duration) {
	m.RunsCompleted.Inc()
	m.RunInProgress.Set(0)
	m.LastRunTime.SetToCurrentTime()
	m.RunDuration.Observe(duration.Seconds())
}

// RunAborted marks a run that failed preflight checks.
func (m *OrchestratorMetrics) RunAborted() {
	m.RunsAborted.Inc()
	m.RunInProgress.Set(0)
}

// RunRejected counts a run attempt refused by the run-level lock.
func (m *OrchestratorMetrics) RunRejected() {
	m.RunsRejected.Inc()
}

// RecordEntity records one entity outcome and how long its work took.
func (m *OrchestratorMetrics) RecordEntity(outcome string, duration time.Duration) {
	m.EntityOutcomes.WithLabelValues(outcome).Inc()
	m.EntityDuration.Observe(duration.Seconds())
}

// RecordPromotion counts one successful atomic promote.
func (m *OrchestratorMetrics) RecordPromotion() {
	m.PromotionsTotal.Inc()
}

// Collect implements the prometheus.Collector interface.
func (m *OrchestratorMetrics) Collect(ch chan<- prometheus.Metric) {
	ch <- m.RunsStarted
	ch <- m.RunsCompleted
	ch <- m.RunsAborted
	ch <- m.RunsRejected
	ch <- m.RunInProgress
	ch <- m.LastRunTime
	ch <- m.RunDuration
	m.EntityOutcomes.Collect(ch)
	ch <- m.EntityDuration
	ch <- m.PromotionsTotal
}

// Describe implements the prometheus.Collector interface.
func (m *OrchestratorMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.RunsStarted.Desc()
	ch <- m.RunsCompleted.Desc()
	ch <- m.RunsAborted.Desc()
	ch <- m.RunsRejected.Desc()
	ch <- m.RunInProgress.Desc()
	ch <- m.LastRunTime.Desc()
	ch <- m.RunDuration.Desc()
	m.EntityOutcomes.Describe(ch)
	ch <- m.EntityDuration.Desc()
	ch <- m.PromotionsTotal.Desc()
}
