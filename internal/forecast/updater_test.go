package forecast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/foresight-go/internal/datastore"
)

func TestUpdaterBackfillsNearestReading(t *testing.T) {
	settings := testSettings(t)
	store := newTestStore(t, settings)

	target := time.Now().Add(-20 * time.Minute).Truncate(time.Second)
	require.NoError(t, store.SavePredictions([]datastore.PredictionRecord{{
		Tag:            "TAG_U",
		TargetTime:     target,
		HorizonMinutes: 10,
		ForecastTime:   target.Add(-10 * time.Minute),
		Predicted:      25,
	}}))
	require.NoError(t, store.SaveReadings([]datastore.SensorReading{
		{Tag: "TAG_U", Time: target.Add(-3 * time.Minute), Value: 24, Quality: datastore.GoodQuality},
		{Tag: "TAG_U", Time: target.Add(time.Minute), Value: 26, Quality: datastore.GoodQuality},
	}))

	u := NewUpdater(settings, store)
	require.NoError(t, u.Run(t.Context()))

	preds, err := store.PredictionsForTag("TAG_U", target.Add(-time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, preds, 1)

	p := preds[0]
	require.NotNil(t, p.Actual)
	assert.InDelta(t, 26.0, *p.Actual, 1e-9, "The reading closest to the target time wins")
	require.NotNil(t, p.AbsError)
	assert.InDelta(t, 1.0, *p.AbsError, 1e-9)
	require.NotNil(t, p.APE)
	assert.InDelta(t, 100.0/26.0, *p.APE, 1e-9)
}

func TestUpdaterLeavesUnmatchedPending(t *testing.T) {
	settings := testSettings(t)
	store := newTestStore(t, settings)

	target := time.Now().Add(-30 * time.Minute)
	require.NoError(t, store.SavePredictions([]datastore.PredictionRecord{{
		Tag:            "TAG_U",
		TargetTime:     target,
		HorizonMinutes: 10,
		Predicted:      25,
	}}))
	// the only reading is outside the five minute tolerance
	require.NoError(t, store.SaveReadings([]datastore.SensorReading{
		{Tag: "TAG_U", Time: target.Add(-20 * time.Minute), Value: 24, Quality: datastore.GoodQuality},
	}))

	u := NewUpdater(settings, store)
	require.NoError(t, u.Run(t.Context()))

	preds, err := store.PredictionsForTag("TAG_U", target.Add(-time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, preds, 1)
	assert.Nil(t, preds[0].Actual, "No reading within tolerance leaves the prediction pending")
}

func TestUpdaterIgnoresFutureTargets(t *testing.T) {
	settings := testSettings(t)
	store := newTestStore(t, settings)

	target := time.Now().Add(30 * time.Minute)
	require.NoError(t, store.SavePredictions([]datastore.PredictionRecord{{
		Tag:            "TAG_U",
		TargetTime:     target,
		HorizonMinutes: 30,
		Predicted:      25,
	}}))

	u := NewUpdater(settings, store)
	require.NoError(t, u.Run(t.Context()))

	preds, err := store.PredictionsForTag("TAG_U", time.Now(), 0)
	require.NoError(t, err)
	require.Len(t, preds, 1)
	assert.Nil(t, preds[0].Actual, "A target still in the future must not be backfilled")
}

func TestUpdaterOmitsAPEForZeroActual(t *testing.T) {
	settings := testSettings(t)
	store := newTestStore(t, settings)

	target := time.Now().Add(-20 * time.Minute)
	require.NoError(t, store.SavePredictions([]datastore.PredictionRecord{{
		Tag:            "TAG_Z",
		TargetTime:     target,
		HorizonMinutes: 10,
		Predicted:      25,
	}}))
	require.NoError(t, store.SaveReadings([]datastore.SensorReading{
		{Tag: "TAG_Z", Time: target, Value: 0, Quality: datastore.GoodQuality},
	}))

	u := NewUpdater(settings, store)
	require.NoError(t, u.Run(t.Context()))

	preds, err := store.PredictionsForTag("TAG_Z", target.Add(-time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, preds, 1)

	p := preds[0]
	require.NotNil(t, p.Actual)
	assert.Zero(t, *p.Actual)
	require.NotNil(t, p.AbsError)
	assert.InDelta(t, 25.0, *p.AbsError, 1e-9)
	assert.Nil(t, p.APE, "Percentage error is undefined against a zero actual")
}
