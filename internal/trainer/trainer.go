// Package trainer fits candidate forecasting models for one sensor tag and
// evaluates them against a holdout slice. Three interchangeable model kinds
// are supported; fitted parameters are an opaque JSON blob that only this
// package and the model registry ever interpret.
package trainer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/tphakala/foresight-go/internal/errors"
	"github.com/tphakala/foresight-go/internal/logging"
)

// ModelKind tags one of the supported model families.
type ModelKind string

const (
	KindSeasonalRegression    ModelKind = "seasonal-regression"
	KindAdditiveDecomposition ModelKind = "additive-decomposition"
	KindGradientBoosted       ModelKind = "gradient-boosted"
)

// AllKinds returns every supported model kind.
func AllKinds() []ModelKind {
	return []ModelKind{KindSeasonalRegression, KindAdditiveDecomposition, KindGradientBoosted}
}

// ParseKind validates a model kind name from configuration.
func ParseKind(s string) (ModelKind, error) {
	switch ModelKind(s) {
	case KindSeasonalRegression, KindAdditiveDecomposition, KindGradientBoosted:
		return ModelKind(s), nil
	default:
		return "", fmt.Errorf("unknown model kind %q", s)
	}
}

// Sample is one time-series observation.
type Sample struct {
	Time  time.Time
	Value float64
}

// Series is a time-ordered sequence of samples.
type Series []Sample

// Values returns the sample values in order.
func (s Series) Values() []float64 {
	values := make([]float64, len(s))
	for i := range s {
		values[i] = s[i].Value
	}
	return values
}

// Window is the per-entity training input built by the orchestrator:
// the tag, the time bounds, the minimum sample requirement, and the samples
// reserved for fitting (the holdout slice is kept outside the window).
type Window struct {
	Tag        string
	Start      time.Time
	End        time.Time
	MinSamples int
	Samples    Series
}

// Metrics holds the accuracy measures computed by Evaluate. MAE is the
// primary comparison metric for deployment decisions.
type Metrics struct {
	MAE  float64 `json:"mae"`
	RMSE float64 `json:"rmse"`
	MAPE float64 `json:"mape"`
}

// Candidate is a freshly fitted, not yet promoted model.
type Candidate struct {
	Tag           string
	Kind          ModelKind
	Params        json.RawMessage
	Metrics       Metrics
	WindowStart   time.Time
	WindowEnd     time.Time
	WindowSamples int
	TrainDuration time.Duration
	CreatedAt     time.Time

	predictor Predictor
}

// Predictor produces forecasts from a fitted model. recent carries the most
// recent observed samples for lag-based kinds; target is the time being
// forecast.
type Predictor interface {
	Forecast(recent Series, target time.Time) float64
	ResidualStd() float64
}

// Predictor returns the in-memory predictor for a candidate fitted in this
// process, or nil for candidates that were not fitted locally.
func (c *Candidate) Predictor() Predictor {
	return c.predictor
}

// minFitSamples is the hard floor below which no kind can be fitted sensibly.
const minFitSamples = 48

// Trainer fits and evaluates candidates.
type Trainer struct {
	log *slog.Logger
}

// New creates a Trainer.
func New() *Trainer {
	log := logging.ForService("trainer")
	if log == nil {
		log = slog.Default().With("service", "trainer")
	}
	return &Trainer{log: log}
}

// Split divides a series into fitting and holdout parts, reserving the final
// holdoutFraction of samples for evaluation.
func Split(s Series, holdoutFraction float64) (train, holdout Series) {
	if len(s) == 0 {
		return nil, nil
	}
	cut := len(s) - int(float64(len(s))*holdoutFraction)
	if cut <= 0 {
		cut = 1
	}
	if cut >= len(s) {
		cut = len(s) - 1
	}
	return s[:cut], s[cut:]
}

// Train fits one candidate of the given kind on the window samples.
// Numerical failures surface as model-training errors; the caller decides
// whether they fail the entity or the whole run.
func (t *Trainer) Train(ctx context.Context, w *Window, kind ModelKind) (*Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.New(err).
			Component("trainer").
			Category(errors.CategoryTimeout).
			ModelContext(w.Tag, string(kind)).
			Build()
	}
	if len(w.Samples) < minFitSamples {
		return nil, errors.Newf("window has %d samples, need at least %d to fit", len(w.Samples), minFitSamples).
			Component("trainer").
			Category(errors.CategoryModelTraining).
			ModelContext(w.Tag, string(kind)).
			Build()
	}

	started := time.Now()

	var (
		predictor Predictor
		params    any
		err       error
	)
	switch kind {
	case KindSeasonalRegression:
		predictor, params, err = fitSeasonalRegression(w.Samples)
	case KindAdditiveDecomposition:
		predictor, params, err = fitAdditiveDecomposition(w.Samples)
	case KindGradientBoosted:
		predictor, params, err = fitGradientBoosted(w.Samples)
	default:
		return nil, errors.Newf("unknown model kind %q", kind).
			Component("trainer").
			Category(errors.CategoryValidation).
			Context("tag", w.Tag).
			Build()
	}
	if err != nil {
		return nil, errors.New(err).
			Component("trainer").
			Category(errors.CategoryModelTraining).
			ModelContext(w.Tag, string(kind)).
			Build()
	}

	blob, err := json.Marshal(params)
	if err != nil {
		return nil, errors.New(fmt.Errorf("encoding model parameters: %w", err)).
			Component("trainer").
			Category(errors.CategoryModelTraining).
			ModelContext(w.Tag, string(kind)).
			Build()
	}

	duration := time.Since(started)
	t.log.Debug("Fitted candidate model",
		"tag", w.Tag,
		"kind", string(kind),
		"samples", len(w.Samples),
		"duration_ms", duration.Milliseconds(),
	)

	return &Candidate{
		Tag:           w.Tag,
		Kind:          kind,
		Params:        blob,
		WindowStart:   w.Start,
		WindowEnd:     w.End,
		WindowSamples: len(w.Samples),
		TrainDuration: duration,
		CreatedAt:     time.Now(),
		predictor:     predictor,
	}, nil
}

// Restore rebuilds a predictor from a registry parameter blob.
func Restore(kind ModelKind, params json.RawMessage) (Predictor, error) {
	switch kind {
	case KindSeasonalRegression:
		var p seasonalParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("decoding %s parameters: %w", kind, err)
		}
		return &seasonalPredictor{params: p}, nil
	case KindAdditiveDecomposition:
		var p decompositionParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("decoding %s parameters: %w", kind, err)
		}
		return &decompositionPredictor{params: p}, nil
	case KindGradientBoosted:
		var p boostedParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("decoding %s parameters: %w", kind, err)
		}
		return &boostedPredictor{params: p}, nil
	default:
		return nil, fmt.Errorf("unknown model kind %q", kind)
	}
}
