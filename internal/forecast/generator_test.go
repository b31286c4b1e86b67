package forecast

import (
	"fmt"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/foresight-go/internal/conf"
	"github.com/tphakala/foresight-go/internal/datastore"
	"github.com/tphakala/foresight-go/internal/trainer"
)

// testSettings installs a self-contained configuration rooted in a temp dir.
func testSettings(t *testing.T) *conf.Settings {
	t.Helper()

	dir := t.TempDir()
	s := &conf.Settings{}
	s.Main.Name = "TestNode"
	s.Main.Log.Rotation = conf.RotationSize
	s.Main.Log.MaxSize = 10 * 1024 * 1024
	s.Database.SQLite.Enabled = true
	s.Database.SQLite.Path = filepath.Join(dir, "foresight.db")
	s.Forecast.Enabled = true
	s.Forecast.Interval = 10 * time.Minute
	s.Forecast.Horizons = []int{10, 30, 60}
	s.Forecast.Confidence = 0.95
	s.Forecast.CacheTTL = 30 * time.Minute
	s.Forecast.Updater.Tolerance = 5 * time.Minute
	s.Forecast.Updater.BatchSize = 100
	s.Forecast.Updater.MaxBatch = 20
	s.Forecast.Aggregation.MinSamples = 3
	s.Forecast.Aggregation.RetentionDays = 90
	conf.SetTestSettings(s)
	return s
}

func newTestStore(t *testing.T, settings *conf.Settings) datastore.Interface {
	t.Helper()

	store, err := datastore.New(settings)
	require.NoError(t, err)
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// seedReadings stores n good-quality samples for tag at a 10-minute cadence
// ending just before now, shaped like a daily sensor cycle.
func seedReadings(t *testing.T, store datastore.Interface, tag string, n int) {
	t.Helper()

	end := time.Now().Add(-10 * time.Minute)
	readings := make([]datastore.SensorReading, n)
	for i := range n {
		ts := end.Add(-time.Duration(n-1-i) * 10 * time.Minute)
		hour := float64(ts.Hour()) + float64(ts.Minute())/60
		readings[i] = datastore.SensorReading{
			Tag:     tag,
			Time:    ts,
			Value:   20 + 5*math.Sin(2*math.Pi*hour/24-math.Pi/2) + 0.2*math.Sin(float64(i)*1.3),
			Quality: datastore.GoodQuality,
		}
	}
	require.NoError(t, store.SaveReadings(readings))
}

// promoteFittedModel fits a seasonal model on fitTag's readings and promotes
// it under tag, so the stored artifact restores cleanly.
func promoteFittedModel(t *testing.T, store datastore.Interface, tag, fitTag string) *datastore.ModelRecord {
	t.Helper()

	now := time.Now()
	readings, err := store.GetReadings(fitTag, now.AddDate(0, 0, -30), now)
	require.NoError(t, err)
	require.NotEmpty(t, readings)

	series := make(trainer.Series, len(readings))
	for i := range readings {
		series[i] = trainer.Sample{Time: readings[i].Time, Value: readings[i].Value}
	}

	w := &trainer.Window{
		Tag:        fitTag,
		Start:      series[0].Time,
		End:        now,
		MinSamples: 1,
		Samples:    series,
	}
	c, err := trainer.New().Train(t.Context(), w, trainer.KindSeasonalRegression)
	require.NoError(t, err)

	rec := &datastore.ModelRecord{
		Kind:            string(c.Kind),
		MAE:             0.5,
		Hyperparameters: string(c.Params),
		Artifact:        []byte(c.Params),
	}
	require.NoError(t, store.PromoteModel(tag, rec))
	return rec
}

func TestGenerateAllStoresHorizonPoints(t *testing.T) {
	settings := testSettings(t)
	store := newTestStore(t, settings)
	seedReadings(t, store, "TAG_F", 400)
	promoteFittedModel(t, store, "TAG_F", "TAG_F")

	g := NewGenerator(settings, store)
	require.NoError(t, g.GenerateAll(t.Context()))

	preds, err := store.PredictionsForTag("TAG_F", time.Now().Add(-time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, preds, 3, "One point per configured horizon")

	horizons := make(map[int]bool)
	for _, p := range preds {
		horizons[p.HorizonMinutes] = true
		assert.Equal(t, 1, p.ModelVersion)
		assert.Zero(t, p.ForecastTime.UTC().Second())
		assert.Zero(t, p.ForecastTime.UTC().Minute()%10, "Reference time aligns to the cycle boundary")
		assert.Equal(t,
			p.ForecastTime.Add(time.Duration(p.HorizonMinutes)*time.Minute).Unix(),
			p.TargetTime.Unix(),
		)
		assert.False(t, math.IsNaN(p.Predicted))
		assert.LessOrEqual(t, p.LowerBound, p.Predicted)
		assert.GreaterOrEqual(t, p.UpperBound, p.Predicted)
		assert.Nil(t, p.Actual, "Actuals are backfilled later, not at generation time")
	}
	assert.Equal(t, map[int]bool{10: true, 30: true, 60: true}, horizons)
	assert.GreaterOrEqual(t, g.CachedPredictors(), 1, "Restored predictor should be cached")
}

func TestGenerateAllToleratesRepeatedCycles(t *testing.T) {
	settings := testSettings(t)
	store := newTestStore(t, settings)
	seedReadings(t, store, "TAG_F", 400)
	promoteFittedModel(t, store, "TAG_F", "TAG_F")

	g := NewGenerator(settings, store)
	require.NoError(t, g.GenerateAll(t.Context()))
	require.NoError(t, g.GenerateAll(t.Context()))

	preds, err := store.PredictionsForTag("TAG_F", time.Now().Add(-time.Hour), 0)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, p := range preds {
		key := fmt.Sprintf("%d@%d", p.TargetTime.Unix(), p.HorizonMinutes)
		assert.False(t, seen[key], "Duplicate point for target %s horizon %d", p.TargetTime, p.HorizonMinutes)
		seen[key] = true
	}
}

func TestGeneratePublishHookReceivesStoredPoints(t *testing.T) {
	settings := testSettings(t)
	store := newTestStore(t, settings)
	seedReadings(t, store, "TAG_F", 400)
	promoteFittedModel(t, store, "TAG_F", "TAG_F")

	var published [][]datastore.PredictionRecord
	g := NewGenerator(settings, store)
	g.SetPublishFunc(func(preds []datastore.PredictionRecord) {
		published = append(published, preds)
	})

	require.NoError(t, g.GenerateAll(t.Context()))

	require.Len(t, published, 1, "One hook call per tag per cycle")
	require.Len(t, published[0], 3)
	for _, p := range published[0] {
		assert.Equal(t, "TAG_F", p.Tag)
		assert.Equal(t, 1, p.ModelVersion)
	}
}

func TestGenerateFallsBackOnCorruptArtifact(t *testing.T) {
	settings := testSettings(t)
	store := newTestStore(t, settings)
	seedReadings(t, store, "TAG_C", 200)

	rec := &datastore.ModelRecord{
		Kind:     string(trainer.KindSeasonalRegression),
		MAE:      1,
		Artifact: []byte("not a model artifact"),
	}
	require.NoError(t, store.PromoteModel("TAG_C", rec))

	g := NewGenerator(settings, store)
	require.NoError(t, g.GenerateAll(t.Context()),
		"A corrupt artifact must not fail the whole cycle")

	now := time.Now()
	readings, err := store.GetReadings("TAG_C", now.Add(-recentHistory), now)
	require.NoError(t, err)
	last := readings[len(readings)-1].Value

	preds, err := store.PredictionsForTag("TAG_C", now.Add(-time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, preds, 3)
	for _, p := range preds {
		assert.InDelta(t, last, p.Predicted, 1e-9, "Persistence fallback carries the last value forward")
		assert.InDelta(t, last*(1-fallbackSpread), p.LowerBound, 1e-9)
		assert.InDelta(t, last*(1+fallbackSpread), p.UpperBound, 1e-9)
	}
}

func TestGenerateSkipsTagsWithoutRecentReadings(t *testing.T) {
	settings := testSettings(t)
	store := newTestStore(t, settings)
	seedReadings(t, store, "TAG_A", 300)
	promoteFittedModel(t, store, "TAG_B", "TAG_A")

	g := NewGenerator(settings, store)
	require.NoError(t, g.GenerateAll(t.Context()))

	preds, err := store.PredictionsForTag("TAG_B", time.Now().Add(-time.Hour), 0)
	require.NoError(t, err)
	assert.Empty(t, preds, "No readings to anchor means no forecast, not an error")
}

func TestGenerateAllWithoutModelsIsANoOp(t *testing.T) {
	settings := testSettings(t)
	store := newTestStore(t, settings)

	g := NewGenerator(settings, store)
	require.NoError(t, g.GenerateAll(t.Context()))
	assert.Zero(t, g.CachedPredictors())
}
