package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SchedulerMetrics contains all Prometheus metrics for recurring task
// execution.
type SchedulerMetrics struct {
	TaskRuns        *prometheus.CounterVec
	TaskDuration    *prometheus.HistogramVec
	TaskLastRun     *prometheus.GaugeVec
	TasksRegistered prometheus.Gauge
	registry        *prometheus.Registry
}

// NewSchedulerMetrics creates and registers scheduler metrics on the given
// registry.
func NewSchedulerMetrics(registry *prometheus.Registry) (*SchedulerMetrics, error) {
	m := &SchedulerMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register scheduler metrics: %w", err)
	}
	return m, nil
}

func (m *SchedulerMetrics) initMetrics() {
	m.TaskRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_task_runs_total",
		Help: "Task firings by task name and outcome",
	}, []string{"task", "status"})

	m.TaskDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scheduler_task_duration_seconds",
		Help:    "Duration of one task firing in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	}, []string{"task"})

	m.TaskLastRun = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scheduler_task_last_run_timestamp_seconds",
		Help: "Timestamp of each task's last completed firing",
	}, []string{"task"})

	m.TasksRegistered = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_tasks_registered",
		Help: "Number of tasks the scheduler is currently driving",
	})
}

// RecordTaskRun records one task firing with its outcome and duration.
func (m *SchedulerMetrics) RecordTaskRun(task, status string, duration time.Duration) {
	m.TaskRuns.WithLabelValues(task, status).Inc()
	m.TaskDuration.WithLabelValues(task).Observe(duration.Seconds())
	m.TaskLastRun.WithLabelValues(task).SetToCurrentTime()
}

// SetRegisteredTasks records how many tasks Start launched.
func (m *SchedulerMetrics) SetRegisteredTasks(n int) {
	m.TasksRegistered.Set(float64(n))
}

// Collect implements the prometheus.Collector interface.
func (m *SchedulerMetrics) Collect(ch chan<- prometheus.Metric) {
	m.TaskRuns.Collect(ch)
	m.TaskDuration.Collect(ch)
	m.TaskLastRun.Collect(ch)
	ch <- m.TasksRegistered
}

// Describe implements the prometheus.Collector interface.
func (m *SchedulerMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.TaskRuns.Describe(ch)
	m.TaskDuration.Describe(ch)
	m.TaskLastRun.Describe(ch)
	ch <- m.TasksRegistered.Desc()
}
