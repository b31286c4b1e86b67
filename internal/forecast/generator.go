// Package forecast turns active models into stored predictions, backfills
// observed actuals once target times pass, and aggregates hourly accuracy.
// The three stages run as separate scheduler tasks staggered within one
// forecast cycle so each stage sees the previous stage's output.
package forecast

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/tphakala/foresight-go/internal/conf"
	"github.com/tphakala/foresight-go/internal/datastore"
	"github.com/tphakala/foresight-go/internal/errors"
	"github.com/tphakala/foresight-go/internal/logging"
	"github.com/tphakala/foresight-go/internal/observability/metrics"
	"github.com/tphakala/foresight-go/internal/trainer"
)

const (
	// recentHistory is how far back the generator reads when assembling the
	// lag context handed to predictors.
	recentHistory = 6 * time.Hour

	// fallbackSpread is the relative half-width of the naive bounds used
	// when a model artifact cannot be restored and the last observed value
	// is carried forward instead.
	fallbackSpread = 0.05

	defaultInterval   = 10 * time.Minute
	defaultCacheTTL   = 30 * time.Minute
	defaultConfidence = 0.95
)

// defaultHorizons are the forecast horizons in minutes used when none are
// configured.
var defaultHorizons = []int{10, 30, 60}

// Generator produces forecast points for every tag with an active model.
// Restored predictors are cached per tag and version so repeated cycles do
// not re-parse artifacts.
type Generator struct {
	settings *conf.Settings
	store    datastore.Interface
	cache    *cache.Cache
	metrics  *metrics.ForecastMetrics
	publish  func([]datastore.PredictionRecord)
	log      *slog.Logger
}

// NewGenerator creates a Generator reading models and readings from store.
func NewGenerator(settings *conf.Settings, store datastore.Interface) *Generator {
	log := logging.ForService("forecast")
	if log == nil {
		log = slog.Default().With("service", "forecast")
	}

	ttl := settings.Forecast.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}

	return &Generator{
		settings: settings,
		store:    store,
		cache:    cache.New(ttl, 2*ttl),
		log:      log,
	}
}

// SetMetrics attaches forecast metrics for recording.
func (g *Generator) SetMetrics(m *metrics.ForecastMetrics) {
	g.metrics = m
}

// SetPublishFunc registers the hook invoked with each tag's predictions once
// they are persisted. It runs on the generation goroutine, so it must only
// hand the records off.
func (g *Generator) SetPublishFunc(fn func([]datastore.PredictionRecord)) {
	g.publish = fn
}

// GenerateAll runs one generation cycle. The forecast reference time is
// rounded down to the configured interval so target times stay stable
// regardless of when within the cycle the task actually fires. Failures are
// isolated per tag.
func (g *Generator) GenerateAll(ctx context.Context) error {
	interval := g.settings.Forecast.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	forecastTime := time.Now().Truncate(interval)

	models, err := g.store.ActiveModels()
	if err != nil {
		return errors.New(err).
			Component("forecast").
			Category(errors.CategoryDatabase).
			Context("operation", "list_active_models").
			Build()
	}
	if len(models) == 0 {
		g.log.Debug("No active models, nothing to forecast")
		return nil
	}

	generated := 0
	for i := range models {
		if err := ctx.Err(); err != nil {
			return err
		}
		m := &models[i]
		if err := g.generateForTag(m, forecastTime); err != nil {
			if g.metrics != nil {
				g.metrics.RecordForecastError()
			}
			g.log.Error("Forecast generation failed",
				"tag", m.Tag,
				"model_version", m.Version,
				"error", err,
			)
			continue
		}
		generated++
	}

	g.log.Info("Forecast cycle completed",
		"forecast_time", forecastTime.Format(time.RFC3339),
		"models", len(models),
		"generated", generated,
	)
	return nil
}

// generateForTag produces one prediction per configured horizon for a single
// active model and stores them.
func (g *Generator) generateForTag(m *datastore.ModelRecord, forecastTime time.Time) error {
	start := time.Now()

	recent, err := g.store.GetReadings(m.Tag, forecastTime.Add(-recentHistory), forecastTime)
	if err != nil {
		return err
	}
	if len(recent) == 0 {
		g.log.Warn("No recent readings to anchor forecast", "tag", m.Tag)
		return nil
	}
	last := recent[len(recent)-1]

	predictor, err := g.predictor(m)
	if err != nil {
		// a model that cannot be restored must not silence the tag, so the
		// last observed value is carried forward with wide naive bounds
		g.log.Error("Predictor restore failed, using persistence fallback",
			"tag", m.Tag,
			"model_version", m.Version,
			"error", err,
		)
		if g.metrics != nil {
			g.metrics.RecordFallback()
		}
		predictor = nil
	}

	series := make(trainer.Series, len(recent))
	for i := range recent {
		series[i] = trainer.Sample{Time: recent[i].Time, Value: recent[i].Value}
	}

	horizons := g.settings.Forecast.Horizons
	if len(horizons) == 0 {
		horizons = defaultHorizons
	}
	confidence := g.settings.Forecast.Confidence
	if confidence <= 0 || confidence >= 1 {
		confidence = defaultConfidence
	}
	z := trainer.NormalQuantile((1 + confidence) / 2)

	preds := make([]datastore.PredictionRecord, 0, len(horizons))
	for _, h := range horizons {
		target := forecastTime.Add(time.Duration(h) * time.Minute)

		var value, lower, upper float64
		if predictor == nil {
			value = last.Value
			spread := math.Abs(last.Value) * fallbackSpread
			lower, upper = value-spread, value+spread
		} else {
			value = predictor.Forecast(series, target)
			margin := z * predictor.ResidualStd()
			lower, upper = value-margin, value+margin
		}

		preds = append(preds, datastore.PredictionRecord{
			Tag:            m.Tag,
			TargetTime:     target,
			HorizonMinutes: h,
			ModelID:        m.ID,
			ModelVersion:   m.Version,
			ForecastTime:   forecastTime,
			Predicted:      value,
			LowerBound:     lower,
			UpperBound:     upper,
		})
	}

	if err := g.store.SavePredictions(preds); err != nil {
		return err
	}
	if g.publish != nil {
		g.publish(preds)
	}

	if g.metrics != nil {
		g.metrics.RecordForecasts(len(preds), time.Since(start).Seconds())
	}
	g.log.Debug("Forecasts stored",
		"tag", m.Tag,
		"model_version", m.Version,
		"points", len(preds),
	)
	return nil
}

// predictor returns a cached or freshly restored predictor for the model.
// The cache key carries the version, so a promotion naturally invalidates
// the previous entry.
func (g *Generator) predictor(m *datastore.ModelRecord) (trainer.Predictor, error) {
	key := fmt.Sprintf("%s@v%d", m.Tag, m.Version)
	if cached, found := g.cache.Get(key); found {
		if g.metrics != nil {
			g.metrics.RecordCacheHit(true)
		}
		return cached.(trainer.Predictor), nil
	}
	if g.metrics != nil {
		g.metrics.RecordCacheHit(false)
	}

	kind, err := trainer.ParseKind(m.Kind)
	if err != nil {
		return nil, errors.New(err).
			Component("forecast").
			Category(errors.CategoryModelRegistry).
			ModelContext(m.Tag, m.Kind).
			Build()
	}
	p, err := trainer.Restore(kind, m.Artifact)
	if err != nil {
		return nil, errors.New(err).
			Component("forecast").
			Category(errors.CategoryModelRegistry).
			ModelContext(m.Tag, m.Kind).
			Context("model_version", m.Version).
			Build()
	}

	g.cache.Set(key, p, cache.DefaultExpiration)
	return p, nil
}

// CachedPredictors returns the number of live cache entries, for diagnostics.
func (g *Generator) CachedPredictors() int {
	return g.cache.ItemCount()
}
