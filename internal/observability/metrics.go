// Package observability provides Prometheus metrics and the scrape endpoint
// for the Foresight-Go application. Sentry-based error telemetry lives in the
// telemetry package.
package observability

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tphakala/foresight-go/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry     *prometheus.Registry
	Orchestrator *metrics.OrchestratorMetrics
	Forecast     *metrics.ForecastMetrics
	Drift        *metrics.DriftMetrics
	MQTT         *metrics.MQTTMetrics
	Scheduler    *metrics.SchedulerMetrics
}

// NewMetrics creates a new Metrics instance with its own registry and all
// component collectors registered.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	orchestratorMetrics, err := metrics.NewOrchestratorMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator metrics: %w", err)
	}

	forecastMetrics, err := metrics.NewForecastMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create forecast metrics: %w", err)
	}

	driftMetrics, err := metrics.NewDriftMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create drift metrics: %w", err)
	}

	mqttMetrics, err := metrics.NewMQTTMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create MQTT metrics: %w", err)
	}

	schedulerMetrics, err := metrics.NewSchedulerMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler metrics: %w", err)
	}

	return &Metrics{
		registry:     registry,
		Orchestrator: orchestratorMetrics,
		Forecast:     forecastMetrics,
		Drift:        driftMetrics,
		MQTT:         mqttMetrics,
		Scheduler:    schedulerMetrics,
	}, nil
}

// Gatherer exposes the underlying registry for tests and custom handlers.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// RegisterHandlers registers the metrics endpoint with the provided mux.
func (m *Metrics) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/metrics", m.metricsHandler)
}

// metricsHandler is the HTTP handler for the /metrics endpoint.
func (m *Metrics) metricsHandler(w http.ResponseWriter, r *http.Request) {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      log.New(os.Stderr, "metrics handler: ", log.LstdFlags),
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
	h.ServeHTTP(w, r)
}
