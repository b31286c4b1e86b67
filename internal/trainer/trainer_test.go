package trainer

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/foresight-go/internal/errors"
)

// syntheticSeries builds a deterministic sensor-like series: a base level
// with a daily cycle peaking at noon, a slow upward trend, and a small
// repeatable wiggle standing in for noise.
func syntheticSeries(start time.Time, n int, step time.Duration) Series {
	s := make(Series, n)
	for i := range n {
		ts := start.Add(time.Duration(i) * step)
		hour := float64(ts.Hour()) + float64(ts.Minute())/60
		value := 20 +
			5*math.Sin(2*math.Pi*hour/24-math.Pi/2) +
			0.01*ts.Sub(start).Hours() +
			0.2*math.Sin(float64(i)*1.3)
		s[i] = Sample{Time: ts, Value: value}
	}
	return s
}

func testWindow(tag string, s Series) *Window {
	return &Window{
		Tag:        tag,
		Start:      s[0].Time,
		End:        s[len(s)-1].Time,
		MinSamples: minFitSamples,
		Samples:    s,
	}
}

func TestParseKind(t *testing.T) {
	for _, kind := range AllKinds() {
		parsed, err := ParseKind(string(kind))
		require.NoError(t, err)
		assert.Equal(t, kind, parsed)
	}

	_, err := ParseKind("oracle")
	assert.Error(t, err, "Unknown kinds must be rejected")
}

func TestSplit(t *testing.T) {
	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	s := syntheticSeries(start, 100, 10*time.Minute)

	train, holdout := Split(s, 0.2)
	assert.Len(t, train, 80)
	assert.Len(t, holdout, 20)
	assert.Equal(t, s[79].Time, train[len(train)-1].Time, "Split must preserve chronological order")
	assert.Equal(t, s[80].Time, holdout[0].Time)

	train, holdout = Split(s, 0)
	assert.Len(t, holdout, 1, "Zero fraction still reserves one holdout sample")
	assert.Len(t, train, 99)

	train, holdout = Split(nil, 0.2)
	assert.Nil(t, train)
	assert.Nil(t, holdout)
}

func TestTrainAllKinds(t *testing.T) {
	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	s := syntheticSeries(start, 7*24*6, 10*time.Minute) // one week at 10 min
	tr := New()

	for _, kind := range AllKinds() {
		t.Run(string(kind), func(t *testing.T) {
			w := testWindow("plant/line1/temp", s)
			c, err := tr.Train(t.Context(), w, kind)
			require.NoError(t, err)
			require.NotNil(t, c)

			assert.Equal(t, "plant/line1/temp", c.Tag)
			assert.Equal(t, kind, c.Kind)
			assert.Equal(t, len(s), c.WindowSamples)
			assert.NotEmpty(t, c.Params, "Fitted parameters must serialize")
			assert.NotNil(t, c.Predictor())
			assert.False(t, c.CreatedAt.IsZero())

			std := c.Predictor().ResidualStd()
			assert.True(t, std >= 0 && !math.IsNaN(std), "Residual std must be finite and non-negative")
		})
	}
}

func TestTrainInsufficientSamples(t *testing.T) {
	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	s := syntheticSeries(start, 10, 10*time.Minute)
	tr := New()

	_, err := tr.Train(t.Context(), testWindow("plant/line1/temp", s), KindSeasonalRegression)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryModelTraining),
		"Too-small windows are a training failure, not a crash")
}

func TestTrainCancelledContext(t *testing.T) {
	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	s := syntheticSeries(start, 200, 10*time.Minute)
	tr := New()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := tr.Train(ctx, testWindow("plant/line1/temp", s), KindSeasonalRegression)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryTimeout))
}

func TestTrainUnknownKind(t *testing.T) {
	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	s := syntheticSeries(start, 200, 10*time.Minute)
	tr := New()

	_, err := tr.Train(t.Context(), testWindow("plant/line1/temp", s), ModelKind("oracle"))
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
}

func TestEvaluateAllKinds(t *testing.T) {
	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	s := syntheticSeries(start, 7*24*6, 10*time.Minute)
	train, holdout := Split(s, 0.2)
	tr := New()

	for _, kind := range AllKinds() {
		t.Run(string(kind), func(t *testing.T) {
			c, err := tr.Train(t.Context(), testWindow("plant/line1/temp", train), kind)
			require.NoError(t, err)

			m, err := tr.Evaluate(c, train, holdout)
			require.NoError(t, err)

			assert.Greater(t, m.MAE, 0.0)
			assert.GreaterOrEqual(t, m.RMSE, m.MAE, "RMSE is never below MAE")
			assert.Less(t, m.MAE, 1.5, "All kinds should track the synthetic cycle closely")
			assert.Greater(t, m.MAPE, 0.0)
			assert.Equal(t, m, c.Metrics, "Evaluate must record metrics on the candidate")
		})
	}
}

func TestEvaluateEmptyHoldout(t *testing.T) {
	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	s := syntheticSeries(start, 200, 10*time.Minute)
	tr := New()

	c, err := tr.Train(t.Context(), testWindow("plant/line1/temp", s), KindSeasonalRegression)
	require.NoError(t, err)

	_, err = tr.Evaluate(c, s, nil)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryModelEvaluation))
}

func TestWalkForward(t *testing.T) {
	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	s := syntheticSeries(start, 7*24*6, 10*time.Minute)
	tr := New()

	m, err := tr.WalkForward(t.Context(), testWindow("plant/line1/temp", s), KindSeasonalRegression, 3)
	require.NoError(t, err)

	assert.Greater(t, m.MAE, 0.0)
	assert.GreaterOrEqual(t, m.RMSE, m.MAE, "RMSE is never below MAE")
	assert.Less(t, m.MAE, 2.0, "Averaged folds should still track the synthetic cycle")
	assert.False(t, math.IsNaN(m.MAPE))
}

func TestWalkForwardRejectsBadInput(t *testing.T) {
	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	tr := New()

	s := syntheticSeries(start, 7*24*6, 10*time.Minute)
	_, err := tr.WalkForward(t.Context(), testWindow("plant/line1/temp", s), KindSeasonalRegression, 0)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))

	small := syntheticSeries(start, 100, 10*time.Minute)
	_, err = tr.WalkForward(t.Context(), testWindow("plant/line1/temp", small), KindSeasonalRegression, 3)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryInsufficientData),
		"A window too small to fill the folds is an insufficient-data failure")
}

func TestRestoreRoundTrip(t *testing.T) {
	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	s := syntheticSeries(start, 7*24*6, 10*time.Minute)
	tr := New()

	recent := s[len(s)-12:]
	targets := []time.Time{
		s[len(s)-1].Time.Add(10 * time.Minute),
		s[len(s)-1].Time.Add(time.Hour),
		s[len(s)-1].Time.Add(6 * time.Hour),
	}

	for _, kind := range AllKinds() {
		t.Run(string(kind), func(t *testing.T) {
			c, err := tr.Train(t.Context(), testWindow("plant/line1/temp", s), kind)
			require.NoError(t, err)

			restored, err := Restore(kind, c.Params)
			require.NoError(t, err)

			for _, target := range targets {
				want := c.Predictor().Forecast(recent, target)
				got := restored.Forecast(recent, target)
				assert.InDelta(t, want, got, 1e-9, "Restored predictor must forecast identically")
			}
			assert.InDelta(t, c.Predictor().ResidualStd(), restored.ResidualStd(), 1e-9)
		})
	}

	_, err := Restore(KindSeasonalRegression, []byte("{not json"))
	assert.Error(t, err)

	_, err = Restore(ModelKind("oracle"), []byte("{}"))
	assert.Error(t, err)
}

func TestSeasonalTracksDailyCycle(t *testing.T) {
	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	s := syntheticSeries(start, 7*24*6, 10*time.Minute)
	tr := New()

	c, err := tr.Train(t.Context(), testWindow("plant/line1/temp", s), KindSeasonalRegression)
	require.NoError(t, err)

	day := s[len(s)-1].Time.Truncate(24 * time.Hour).Add(24 * time.Hour)
	noon := c.Predictor().Forecast(nil, day.Add(12*time.Hour))
	midnight := c.Predictor().Forecast(nil, day)

	assert.Greater(t, noon, midnight, "The synthetic cycle peaks at noon and the fit must reflect it")
	assert.Greater(t, noon-midnight, 5.0, "Fitted amplitude should be close to the true swing of 10")
}

func TestNormalQuantile(t *testing.T) {
	assert.InDelta(t, 1.9600, NormalQuantile(0.975), 0.001)
	assert.InDelta(t, -1.9600, NormalQuantile(0.025), 0.001)
	assert.InDelta(t, 0.0, NormalQuantile(0.5), 1e-9)
	assert.InDelta(t, 1.6449, NormalQuantile(0.95), 0.001)
}
