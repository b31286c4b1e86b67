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
	defaultBatchSize = 100
	defaultMaxBatch  = 20
	defaultTolerance = 5 * time.Minute

	// apeEpsilon guards the percentage error against division by values
	// indistinguishable from zero.
	apeEpsilon = 1e-6
)

// Updater backfills the observed actual value of predictions whose target
// time has passed, matching each prediction to the nearest good reading
// within a tolerance window.
type Updater struct {
	settings *conf.Settings
	store    datastore.Interface
	metrics  *metrics.ForecastMetrics
	log      *slog.Logger
}

// NewUpdater creates an Updater.
func NewUpdater(settings *conf.Settings, store datastore.Interface) *Updater {
	log := logging.ForService("forecast")
	if log == nil {
		log = slog.Default().With("service", "forecast")
	}
	return &Updater{
		settings: settings,
		store:    store,
		log:      log,
	}
}

// SetMetrics attaches forecast metrics for recording.
func (u *Updater) SetMetrics(m *metrics.ForecastMetrics) {
	u.metrics = m
}

// Run performs one backfill pass in bounded batches. A prediction with no
// reading inside the tolerance window stays pending and is retried on later
// passes; a batch that matches nothing ends the pass so the same unmatched
// rows are not rescanned in a tight loop.
func (u *Updater) Run(ctx context.Context) error {
	cfg := u.settings.Forecast.Updater

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	maxBatch := cfg.MaxBatch
	if maxBatch <= 0 {
		maxBatch = defaultMaxBatch
	}
	tolerance := cfg.Tolerance
	if tolerance <= 0 {
		tolerance = defaultTolerance
	}

	totalMatched := 0
	totalPending := 0

	for batch := 0; batch < maxBatch; batch++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		due, err := u.store.DuePredictions(time.Now(), batchSize)
		if err != nil {
			return errors.New(err).
				Component("forecast").
				Category(errors.CategoryDatabase).
				Context("operation", "due_predictions").
				Build()
		}
		if len(due) == 0 {
			break
		}

		matched := 0
		for i := range due {
			p := &due[i]
			if err := u.backfillOne(p, tolerance); err != nil {
				u.log.Error("Actual value backfill failed",
					"tag", p.Tag,
					"target_time", p.TargetTime.Format(time.RFC3339),
					"error", err,
				)
				continue
			}
			if p.Actual != nil {
				matched++
			}
		}

		totalMatched += matched
		totalPending = len(due) - matched

		if matched == 0 || len(due) < batchSize {
			break
		}
	}

	if u.metrics != nil {
		u.metrics.RecordActualsMatched(totalMatched, totalPending)
	}
	if totalMatched > 0 {
		u.log.Info("Actual values backfilled",
			"matched", totalMatched,
			"pending", totalPending,
		)
	} else {
		u.log.Debug("No predictions ready for backfill", "pending", totalPending)
	}
	return nil
}

// backfillOne matches a single prediction against the nearest reading within
// tolerance and stores the observed value and error columns. The prediction's
// Actual field is set on success so the caller can count matches.
func (u *Updater) backfillOne(p *datastore.PredictionRecord, tolerance time.Duration) error {
	readings, err := u.store.ReadingsAround(p.Tag, p.TargetTime, tolerance)
	if err != nil {
		return err
	}
	if len(readings) == 0 {
		// no observation near the target time yet
		return nil
	}

	actual := readings[0].Value
	absError := math.Abs(p.Predicted - actual)

	var ape *float64
	if math.Abs(actual) > apeEpsilon {
		v := absError / math.Abs(actual) * 100
		ape = &v
	}

	if err := u.store.SetPredictionActual(p.ID, actual, absError, ape); err != nil {
		return err
	}
	p.Actual = &actual
	return nil
}
