package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// ForecastMetrics contains all Prometheus metrics for forecast generation,
// actual-value backfill, and performance aggregation.
type ForecastMetrics struct {
	ForecastsGenerated prometheus.Counter
	ForecastErrors     prometheus.Counter
	FallbacksUsed      prometheus.Counter
	GenerationLatency  prometheus.Histogram
	CacheHits          prometheus.Counter
	CacheMisses        prometheus.Counter
	ActualsMatched     prometheus.Counter
	ActualsPending     prometheus.Gauge
	HoursAggregated    prometheus.Counter
	registry           *prometheus.Registry
}

// NewForecastMetrics creates and registers forecast metrics on the given
// registry.
func NewForecastMetrics(registry *prometheus.Registry) (*ForecastMetrics, error) {
	m := &ForecastMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register forecast metrics: %w", err)
	}
	return m, nil
}

func (m *ForecastMetrics) initMetrics() {
	m.ForecastsGenerated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "forecast_points_generated_total",
		Help: "Total number of forecast points produced",
	})

	m.ForecastErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "forecast_errors_total",
		Help: "Total number of failed forecast attempts",
	})

	m.FallbacksUsed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "forecast_persistence_fallbacks_total",
		Help: "Total number of forecasts served by the persistence fallback",
	})

	m.GenerationLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "forecast_generation_latency_seconds",
		Help:    "Latency of generating all horizons for one tag",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	m.CacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "forecast_predictor_cache_hits_total",
		Help: "Total number of predictor cache hits",
	})

	m.CacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "forecast_predictor_cache_misses_total",
		Help: "Total number of predictor cache misses",
	})

	m.ActualsMatched = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "forecast_actuals_matched_total",
		Help: "Total number of stored predictions backfilled with actual values",
	})

	m.ActualsPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "forecast_actuals_pending",
		Help: "Number of due predictions still waiting for an actual value",
	})

	m.HoursAggregated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "forecast_hours_aggregated_total",
		Help: "Total number of hourly performance buckets aggregated",
	})
}

// RecordForecasts counts generated forecast points for one tag.
func (m *ForecastMetrics) RecordForecasts(points int, latencySeconds float64) {
	m.ForecastsGenerated.Add(float64(points))
	m.GenerationLatency.Observe(latencySeconds)
}

// RecordForecastError counts one failed forecast attempt.
func (m *ForecastMetrics) RecordForecastError() {
	m.ForecastErrors.Inc()
}

// RecordFallback counts one persistence-fallback forecast.
func (m *ForecastMetrics) RecordFallback() {
	m.FallbacksUsed.Inc()
}

// RecordCacheHit counts a predictor cache hit or miss.
func (m *ForecastMetrics) RecordCacheHit(hit bool) {
	if hit {
		m.CacheHits.Inc()
	} else {
		m.CacheMisses.Inc()
	}
}

// RecordActualsMatched counts backfilled predictions and updates the pending
// gauge.
func (m *ForecastMetrics) RecordActualsMatched(matched, pending int) {
	m.ActualsMatched.Add(float64(matched))
	m.ActualsPending.Set(float64(pending))
}

// RecordHoursAggregated counts aggregated hourly performance buckets.
func (m *ForecastMetrics) RecordHoursAggregated(hours int) {
	m.HoursAggregated.Add(float64(hours))
}

// Collect implements the prometheus.Collector interface.
func (m *ForecastMetrics) Collect(ch chan<- prometheus.Metric) {
	ch <- m.ForecastsGenerated
	ch <- m.ForecastErrors
	ch <- m.FallbacksUsed
	ch <- m.GenerationLatency
	ch <- m.CacheHits
	ch <- m.CacheMisses
	ch <- m.ActualsMatched
	ch <- m.ActualsPending
	ch <- m.HoursAggregated
}

// Describe implements the prometheus.Collector interface.
func (m *ForecastMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.ForecastsGenerated.Desc()
	ch <- m.ForecastErrors.Desc()
	ch <- m.FallbacksUsed.Desc()
	ch <- m.GenerationLatency.Desc()
	ch <- m.CacheHits.Desc()
	ch <- m.CacheMisses.Desc()
	ch <- m.ActualsMatched.Desc()
	ch <- m.ActualsPending.Desc()
	ch <- m.HoursAggregated.Desc()
}
