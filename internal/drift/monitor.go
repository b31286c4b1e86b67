package drift

import (
	"context"
	"log/slog"
	"time"

	"github.com/tphakala/foresight-go/internal/conf"
	"github.com/tphakala/foresight-go/internal/datastore"
	"github.com/tphakala/foresight-go/internal/errors"
	"github.com/tphakala/foresight-go/internal/logging"
	"github.com/tphakala/foresight-go/internal/observability/metrics"
)

const (
	defaultCurrentWindow = 24 * time.Hour
	defaultReferenceDays = 30
	defaultMinSamples    = 50
)

// Monitor runs drift checks for every tag that carries an active model and
// records the outcomes. An optional alert hook fires for checks whose
// severity reaches the configured alert threshold.
type Monitor struct {
	settings *conf.Settings
	store    datastore.Interface
	metrics  *metrics.DriftMetrics
	alert    func(*datastore.DriftRecord)
	log      *slog.Logger
}

// NewMonitor creates a Monitor reading windows from store.
func NewMonitor(settings *conf.Settings, store datastore.Interface) *Monitor {
	log := logging.ForService("drift")
	if log == nil {
		log = slog.Default().With("service", "drift")
	}
	return &Monitor{
		settings: settings,
		store:    store,
		log:      log,
	}
}

// SetMetrics attaches drift metrics for recording.
func (m *Monitor) SetMetrics(dm *metrics.DriftMetrics) {
	m.metrics = dm
}

// SetAlertFunc registers the hook invoked for drift at or above the
// configured alert severity. The record passed in is already persisted.
func (m *Monitor) SetAlertFunc(fn func(*datastore.DriftRecord)) {
	m.alert = fn
}

// Sweep runs one drift check per tag with an active model. Per-tag failures
// are logged and counted but do not stop the sweep.
func (m *Monitor) Sweep(ctx context.Context) error {
	sweepStart := time.Now()

	models, err := m.store.ActiveModels()
	if err != nil {
		return errors.New(err).
			Component("drift").
			Category(errors.CategoryDatabase).
			Context("operation", "list_active_models").
			Build()
	}
	if len(models) == 0 {
		m.log.Debug("No active models, nothing to check for drift")
		return nil
	}

	checked := 0
	aboveWarning := 0
	for i := range models {
		if err := ctx.Err(); err != nil {
			return err
		}
		tag := models[i].Tag

		start := time.Now()
		rec, err := m.checkTag(tag, sweepStart)
		if err != nil {
			if m.metrics != nil {
				m.metrics.RecordCheckError()
			}
			m.log.Error("Drift check failed", "tag", tag, "error", err)
			continue
		}
		if rec == nil {
			// not enough data in one of the windows, already logged
			continue
		}

		checked++
		if m.metrics != nil {
			m.metrics.RecordCheck(rec.Severity, time.Since(start).Seconds())
		}
		if conf.SeverityAtLeast(rec.Severity, SeverityMedium) {
			aboveWarning++
		}
		m.maybeAlert(rec)
	}

	if m.metrics != nil {
		m.metrics.SweepCompleted(aboveWarning)
	}
	m.log.Info("Drift sweep completed",
		"tags", len(models),
		"checked", checked,
		"above_warning", aboveWarning,
		"duration_ms", time.Since(sweepStart).Milliseconds(),
	)
	return nil
}

// checkTag compares the tag's recent window against its reference window and
// persists the outcome. It returns nil without error when either window has
// too few samples to judge.
func (m *Monitor) checkTag(tag string, now time.Time) (*datastore.DriftRecord, error) {
	cfg := &m.settings.Drift

	window := cfg.CurrentWindow
	if window <= 0 {
		window = defaultCurrentWindow
	}
	refDays := cfg.ReferenceDays
	if refDays < 1 {
		refDays = defaultReferenceDays
	}
	minSamples := cfg.MinSamples
	if minSamples < 1 {
		minSamples = defaultMinSamples
	}

	currentFrom := now.Add(-window)
	referenceFrom := currentFrom.AddDate(0, 0, -refDays)

	reference, err := m.store.GetReadings(tag, referenceFrom, currentFrom)
	if err != nil {
		return nil, errors.New(err).
			Component("drift").
			Category(errors.CategoryDatabase).
			Context("operation", "reference_window").
			Context("tag", tag).
			Build()
	}
	current, err := m.store.GetReadings(tag, currentFrom, now)
	if err != nil {
		return nil, errors.New(err).
			Component("drift").
			Category(errors.CategoryDatabase).
			Context("operation", "current_window").
			Context("tag", tag).
			Build()
	}

	if len(reference) < minSamples || len(current) < minSamples {
		m.log.Debug("Skipping drift check, window too thin",
			"tag", tag,
			"reference_samples", len(reference),
			"current_samples", len(current),
			"min_samples", minSamples,
		)
		return nil, nil
	}

	refValues := values(reference)
	curValues := values(current)

	psi, psiSeverity := PSI(refValues, curValues)
	ksStat, ksPValue, ksSeverity := KSTest(refValues, curValues)
	jsDist, jsSeverity := JSDistance(refValues, curValues)
	severity := worst(psiSeverity, ksSeverity, jsSeverity)

	rec := &datastore.DriftRecord{
		Tag:              tag,
		CheckedAt:        now,
		PSI:              psi,
		KSStat:           ksStat,
		KSPValue:         ksPValue,
		JSDivergence:     jsDist,
		Severity:         severity,
		CurrentSamples:   len(curValues),
		ReferenceSamples: len(refValues),
	}
	if err := m.store.SaveDriftResult(rec); err != nil {
		return nil, errors.New(err).
			Component("drift").
			Category(errors.CategoryDatabase).
			Context("operation", "save_drift_result").
			Context("tag", tag).
			Build()
	}

	if severity == SeverityNone {
		m.log.Debug("No drift detected", "tag", tag, "psi", psi, "ks_pvalue", ksPValue)
	} else {
		m.log.Warn("Data drift detected",
			"tag", tag,
			"severity", severity,
			"psi", psi,
			"ks_stat", ksStat,
			"ks_pvalue", ksPValue,
			"js_distance", jsDist,
		)
	}
	return rec, nil
}

// maybeAlert invokes the alert hook when the check's severity reaches the
// configured threshold. An alert severity of "none" disables alerting.
func (m *Monitor) maybeAlert(rec *datastore.DriftRecord) {
	if m.alert == nil {
		return
	}
	threshold := m.settings.Drift.AlertSeverity
	if threshold == "" || threshold == SeverityNone {
		return
	}
	if conf.SeverityAtLeast(rec.Severity, threshold) {
		m.alert(rec)
	}
}

// values extracts the reading values in window order.
func values(readings []datastore.SensorReading) []float64 {
	out := make([]float64, len(readings))
	for i := range readings {
		out[i] = readings[i].Value
	}
	return out
}
