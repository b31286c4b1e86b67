package datastore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/foresight-go/internal/conf"
)

// newTestStore opens a SQLite store against a temp file and closes it when
// the test ends.
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	settings := &conf.Settings{}
	settings.Database.SQLite.Enabled = true
	settings.Database.SQLite.Path = filepath.Join(t.TempDir(), "test.db")

	store := &SQLiteStore{Settings: settings}
	require.NoError(t, store.Open())
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	return store
}

func TestGetActiveModelReturnsNilWhenNoneExists(t *testing.T) {
	store := newTestStore(t)

	m, err := store.GetActiveModel("TAG_X")
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestPromoteAssignsVersionOneForFirstModel(t *testing.T) {
	store := newTestStore(t)

	err := store.PromoteModel("TAG_X", &ModelRecord{
		Kind: "seasonal-regression",
		MAE:  0.12,
	})
	require.NoError(t, err)

	active, err := store.GetActiveModel("TAG_X")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, 1, active.Version)
	assert.InDelta(t, 0.12, active.MAE, 1e-9)
	assert.True(t, active.Active)
	require.NotNil(t, active.DeployedAt)
}

func TestPromoteSwapsActiveFlagAtomically(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.PromoteModel("TAG_X", &ModelRecord{Kind: "seasonal-regression", MAE: 0.12}))
	require.NoError(t, store.PromoteModel("TAG_X", &ModelRecord{Kind: "gradient-boosted", MAE: 0.09}))

	active, err := store.GetActiveModel("TAG_X")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, 2, active.Version)
	assert.InDelta(t, 0.09, active.MAE, 1e-9)

	// exactly one active row, prior version demoted
	history, err := store.ModelHistory("TAG_X", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)

	activeCount := 0
	for i := range history {
		if history[i].Active {
			activeCount++
		}
	}
	assert.Equal(t, 1, activeCount)
	assert.Equal(t, 2, history[0].Version, "history is newest first")
	assert.False(t, history[1].Active)
}

func TestPromoteKeepsVersionsIndependentPerTag(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.PromoteModel("TAG_A", &ModelRecord{Kind: "seasonal-regression", MAE: 0.2}))
	require.NoError(t, store.PromoteModel("TAG_A", &ModelRecord{Kind: "seasonal-regression", MAE: 0.1}))
	require.NoError(t, store.PromoteModel("TAG_B", &ModelRecord{Kind: "gradient-boosted", MAE: 0.3}))

	a, err := store.GetActiveModel("TAG_A")
	require.NoError(t, err)
	b, err := store.GetActiveModel("TAG_B")
	require.NoError(t, err)

	assert.Equal(t, 2, a.Version)
	assert.Equal(t, 1, b.Version)
}

func TestActiveSensorTagsFiltersQualityAndCount(t *testing.T) {
	store := newTestStore(t)
	base := time.Now().Add(-time.Hour)

	var readings []SensorReading
	// TAG_GOOD: 5 good readings
	for i := 0; i < 5; i++ {
		readings = append(readings, SensorReading{
			Tag: "TAG_GOOD", Time: base.Add(time.Duration(i) * time.Minute), Value: float64(i), Quality: GoodQuality,
		})
	}
	// TAG_SPARSE: 2 good readings, below the minimum
	for i := 0; i < 2; i++ {
		readings = append(readings, SensorReading{
			Tag: "TAG_SPARSE", Time: base.Add(time.Duration(i) * time.Minute), Value: float64(i), Quality: GoodQuality,
		})
	}
	// TAG_BAD: plenty of readings but with bad quality
	for i := 0; i < 5; i++ {
		readings = append(readings, SensorReading{
			Tag: "TAG_BAD", Time: base.Add(time.Duration(i) * time.Minute), Value: float64(i), Quality: 0,
		})
	}
	require.NoError(t, store.SaveReadings(readings))

	tags, err := store.ActiveSensorTags(base.Add(-time.Minute), 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"TAG_GOOD"}, tags)
}

func TestReadingsAroundReturnsNearestFirst(t *testing.T) {
	store := newTestStore(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveReadings([]SensorReading{
		{Tag: "T", Time: at.Add(-4 * time.Minute), Value: 1, Quality: GoodQuality},
		{Tag: "T", Time: at.Add(1 * time.Minute), Value: 2, Quality: GoodQuality},
		{Tag: "T", Time: at.Add(10 * time.Minute), Value: 3, Quality: GoodQuality},
	}))

	readings, err := store.ReadingsAround("T", at, 5*time.Minute)
	require.NoError(t, err)
	require.Len(t, readings, 2, "reading outside tolerance is excluded")
	assert.InDelta(t, 2.0, readings[0].Value, 1e-9, "nearest reading comes first")
}

func TestRunRecordRoundTrip(t *testing.T) {
	store := newTestStore(t)

	run := &RunRecord{
		RunID:      "3d9e2f9a-0000-4000-8000-000000000001",
		StartedAt:  time.Now().Add(-time.Minute),
		FinishedAt: time.Now(),
		Attempted:  2,
		Succeeded:  1,
		Promoted:   1,
		Skipped:    1,
		Entities: []RunEntityRecord{
			{Tag: "TAG_X", Outcome: OutcomePromoted, Kind: "seasonal-regression", MAE: 0.12, Version: 1},
			{Tag: "TAG_Y", Outcome: OutcomeSkipped, Reason: "insufficient data"},
		},
	}
	require.NoError(t, store.SaveRun(run))

	got, err := store.GetRun(run.RunID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Len(t, got.Entities, 2)

	runs, err := store.RecentRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.RunID, runs[0].RunID)
}

func TestDuePredictionsAndBackfill(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()

	require.NoError(t, store.SavePredictions([]PredictionRecord{
		{Tag: "T", TargetTime: now.Add(-10 * time.Minute), HorizonMinutes: 10, Predicted: 5},
		{Tag: "T", TargetTime: now.Add(30 * time.Minute), HorizonMinutes: 30, Predicted: 6},
	}))

	due, err := store.DuePredictions(now, 0)
	require.NoError(t, err)
	require.Len(t, due, 1, "future prediction is not due")

	ape := 10.0
	require.NoError(t, store.SetPredictionActual(due[0].ID, 5.5, 0.5, &ape))

	due, err = store.DuePredictions(now, 0)
	require.NoError(t, err)
	assert.Empty(t, due, "backfilled prediction no longer due")

	preds, err := store.PredictionsForTag("T", now.Add(-time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, preds, 2)
	require.NotNil(t, preds[0].Actual)
	assert.InDelta(t, 5.5, *preds[0].Actual, 1e-9)
}

func TestUpsertPerformanceReplacesExistingRow(t *testing.T) {
	store := newTestStore(t)
	hour := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.UpsertPerformance(&PerformanceRecord{
		Tag: "T", HourStart: hour, HorizonMinutes: 10, SampleCount: 3, MAE: 1.0,
	}))
	require.NoError(t, store.UpsertPerformance(&PerformanceRecord{
		Tag: "T", HourStart: hour, HorizonMinutes: 10, SampleCount: 5, MAE: 0.8,
	}))

	var count int64
	require.NoError(t, store.DB.Model(&PerformanceRecord{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestPurgePerformanceBefore(t *testing.T) {
	store := newTestStore(t)
	old := time.Now().Add(-100 * 24 * time.Hour)
	recent := time.Now().Add(-time.Hour)

	require.NoError(t, store.UpsertPerformance(&PerformanceRecord{Tag: "T", HourStart: old, HorizonMinutes: 10}))
	require.NoError(t, store.UpsertPerformance(&PerformanceRecord{Tag: "T", HourStart: recent, HorizonMinutes: 10}))

	purged, err := store.PurgePerformanceBefore(time.Now().Add(-90 * 24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
}

func TestDriftResultRoundTrip(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SaveDriftResult(&DriftRecord{
		Tag: "T", CheckedAt: time.Now().Add(-time.Hour), PSI: 0.05, Severity: "none",
	}))
	require.NoError(t, store.SaveDriftResult(&DriftRecord{
		Tag: "T", CheckedAt: time.Now(), PSI: 0.31, Severity: "critical",
	}))

	latest, err := store.LatestDriftResult("T")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "critical", latest.Severity)

	missing, err := store.LatestDriftResult("UNKNOWN")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
