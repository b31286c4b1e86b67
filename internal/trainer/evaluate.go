package trainer

import (
	"context"
	"math"

	"github.com/tphakala/foresight-go/internal/errors"
)

// mapeEpsilon is the actual-value floor below which a percentage error is
// meaningless and the sample is excluded from MAPE.
const mapeEpsilon = 1e-6

// Evaluate scores a fitted candidate against a holdout series using
// one-step-ahead forecasts. history provides lag context for the first
// holdout points and is not scored. The computed metrics are stored on the
// candidate and returned.
func (t *Trainer) Evaluate(c *Candidate, history, holdout Series) (Metrics, error) {
	if len(holdout) == 0 {
		return Metrics{}, errors.Newf("holdout series is empty, nothing to evaluate").
			Component("trainer").
			Category(errors.CategoryModelEvaluation).
			ModelContext(c.Tag, string(c.Kind)).
			Build()
	}

	predictor := c.Predictor()
	if predictor == nil {
		restored, err := Restore(c.Kind, c.Params)
		if err != nil {
			return Metrics{}, errors.New(err).
				Component("trainer").
				Category(errors.CategoryModelEvaluation).
				ModelContext(c.Tag, string(c.Kind)).
				Build()
		}
		predictor = restored
	}

	recent := append(Series(nil), history...)

	var sumAbs, sumSq, sumAPE float64
	apeN := 0
	for _, s := range holdout {
		predicted := predictor.Forecast(recent, s.Time)
		diff := predicted - s.Value
		sumAbs += math.Abs(diff)
		sumSq += diff * diff
		if math.Abs(s.Value) > mapeEpsilon {
			sumAPE += math.Abs(diff / s.Value)
			apeN++
		}
		recent = append(recent, s)
	}

	n := float64(len(holdout))
	m := Metrics{
		MAE:  sumAbs / n,
		RMSE: math.Sqrt(sumSq / n),
	}
	if apeN > 0 {
		m.MAPE = sumAPE / float64(apeN) * 100
	}

	if !finite(m.MAE, m.RMSE, m.MAPE) {
		return Metrics{}, errors.Newf("evaluation produced non-finite metrics (mae=%v rmse=%v mape=%v)", m.MAE, m.RMSE, m.MAPE).
			Component("trainer").
			Category(errors.CategoryModelEvaluation).
			ModelContext(c.Tag, string(c.Kind)).
			Build()
	}

	c.Metrics = m
	t.log.Debug("Evaluated candidate model",
		"tag", c.Tag,
		"kind", string(c.Kind),
		"holdout", len(holdout),
		"mae", m.MAE,
		"rmse", m.RMSE,
		"mape", m.MAPE,
	)
	return m, nil
}

// WalkForward scores a model kind with expanding splits: fold i trains on
// everything before its test slice and is scored one-step-ahead on the slice
// itself, so every scored sample comes from a model that never saw it.
// Returns the metrics averaged over the folds.
func (t *Trainer) WalkForward(ctx context.Context, w *Window, kind ModelKind, folds int) (Metrics, error) {
	if folds < 1 {
		return Metrics{}, errors.Newf("walk-forward needs at least 1 fold, got %d", folds).
			Component("trainer").
			Category(errors.CategoryValidation).
			ModelContext(w.Tag, string(kind)).
			Build()
	}

	// The first fold trains on one segment, so the segment itself must
	// clear the fitting floor.
	segment := len(w.Samples) / (folds + 1)
	if segment < minFitSamples {
		return Metrics{}, errors.Newf("window of %d samples is too small for %d walk-forward folds", len(w.Samples), folds).
			Component("trainer").
			Category(errors.CategoryInsufficientData).
			ModelContext(w.Tag, string(kind)).
			Build()
	}

	var sum Metrics
	for i := range folds {
		trainEnd := segment * (i + 1)
		testEnd := segment * (i + 2)
		if i == folds-1 {
			// Division remainder joins the final test slice.
			testEnd = len(w.Samples)
		}

		sub := Window{
			Tag:        w.Tag,
			Start:      w.Samples[0].Time,
			End:        w.Samples[trainEnd-1].Time,
			MinSamples: w.MinSamples,
			Samples:    w.Samples[:trainEnd],
		}
		c, err := t.Train(ctx, &sub, kind)
		if err != nil {
			return Metrics{}, err
		}
		m, err := t.Evaluate(c, sub.Samples, w.Samples[trainEnd:testEnd])
		if err != nil {
			return Metrics{}, err
		}
		sum.MAE += m.MAE
		sum.RMSE += m.RMSE
		sum.MAPE += m.MAPE
	}

	n := float64(folds)
	avg := Metrics{MAE: sum.MAE / n, RMSE: sum.RMSE / n, MAPE: sum.MAPE / n}
	t.log.Debug("Walk-forward evaluation finished",
		"tag", w.Tag,
		"kind", string(kind),
		"folds", folds,
		"mae", avg.MAE,
	)
	return avg, nil
}
