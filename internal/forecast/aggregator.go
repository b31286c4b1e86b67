package forecast

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/tphakala/foresight-go/internal/conf"
	"github.com/tphakala/foresight-go/internal/datastore"
	"github.com/tphakala/foresight-go/internal/errors"
	"github.com/tphakala/foresight-go/internal/logging"
	"github.com/tphakala/foresight-go/internal/observability/metrics"
)

const (
	defaultAggMinSamples   = 3
	defaultAggRetentionDay = 90
)

// Aggregator rolls completed predictions up into hourly accuracy records per
// tag and horizon, and purges aggregates past retention once a day.
type Aggregator struct {
	settings *conf.Settings
	store    datastore.Interface
	metrics  *metrics.ForecastMetrics
	log      *slog.Logger
}

// NewAggregator creates an Aggregator.
func NewAggregator(settings *conf.Settings, store datastore.Interface) *Aggregator {
	log := logging.ForService("forecast")
	if log == nil {
		log = slog.Default().With("service", "forecast")
	}
	return &Aggregator{
		settings: settings,
		store:    store,
		log:      log,
	}
}

// SetMetrics attaches forecast metrics for recording.
func (a *Aggregator) SetMetrics(m *metrics.ForecastMetrics) {
	a.metrics = m
}

// Run aggregates the most recently completed full hour. Buckets with fewer
// than the configured minimum of matched predictions are skipped, so thin
// hours never produce misleading accuracy rows.
func (a *Aggregator) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cfg := a.settings.Forecast.Aggregation
	minSamples := cfg.MinSamples
	if minSamples <= 0 {
		minSamples = defaultAggMinSamples
	}

	hourEnd := time.Now().Truncate(time.Hour)
	hourStart := hourEnd.Add(-time.Hour)

	preds, err := a.store.CompletedPredictions(hourStart, hourEnd)
	if err != nil {
		return errors.New(err).
			Component("forecast").
			Category(errors.CategoryDatabase).
			Context("operation", "completed_predictions").
			Build()
	}

	type bucket struct {
		tag     string
		horizon int
	}
	groups := make(map[bucket][]datastore.PredictionRecord)
	for i := range preds {
		k := bucket{tag: preds[i].Tag, horizon: preds[i].HorizonMinutes}
		groups[k] = append(groups[k], preds[i])
	}

	created := 0
	for k, rows := range groups {
		if len(rows) < minSamples {
			continue
		}

		rec := aggregate(k.tag, k.horizon, hourStart, rows)
		if err := a.store.UpsertPerformance(rec); err != nil {
			a.log.Error("Performance upsert failed",
				"tag", k.tag,
				"horizon_minutes", k.horizon,
				"error", err,
			)
			continue
		}
		created++
	}

	if a.metrics != nil && created > 0 {
		a.metrics.RecordHoursAggregated(created)
	}
	a.log.Info("Hourly accuracy aggregated",
		"hour_start", hourStart.Format(time.RFC3339),
		"buckets", created,
		"completed_predictions", len(preds),
	)

	// retention purge once per day, on the midnight run
	if hourEnd.Hour() == 0 {
		a.purgeOld()
	}
	return nil
}

// aggregate computes the hourly accuracy record for one tag and horizon.
// RMSE reuses the stored absolute errors since squaring removes the sign
// anyway; MAPE averages only rows where a percentage error was computable.
func aggregate(tag string, horizon int, hourStart time.Time, rows []datastore.PredictionRecord) *datastore.PerformanceRecord {
	var sumAbs, sumSq, sumAPE float64
	apeN := 0
	for i := range rows {
		if rows[i].AbsError == nil {
			continue
		}
		e := *rows[i].AbsError
		sumAbs += e
		sumSq += e * e
		if rows[i].APE != nil {
			sumAPE += *rows[i].APE
			apeN++
		}
	}

	n := float64(len(rows))
	rec := &datastore.PerformanceRecord{
		Tag:            tag,
		HourStart:      hourStart,
		HorizonMinutes: horizon,
		SampleCount:    len(rows),
		MAE:            sumAbs / n,
		RMSE:           math.Sqrt(sumSq / n),
	}
	if apeN > 0 {
		rec.MAPE = sumAPE / float64(apeN)
	}
	return rec
}

// purgeOld removes aggregates older than the retention window.
func (a *Aggregator) purgeOld() {
	retention := a.settings.Forecast.Aggregation.RetentionDays
	if retention <= 0 {
		retention = defaultAggRetentionDay
	}
	cutoff := time.Now().AddDate(0, 0, -retention)

	purged, err := a.store.PurgePerformanceBefore(cutoff)
	if err != nil {
		a.log.Error("Performance retention purge failed", "error", err)
		return
	}
	if purged > 0 {
		a.log.Info("Old performance aggregates purged",
			"rows", purged,
			"cutoff", cutoff.Format(time.RFC3339),
		)
	}
}
