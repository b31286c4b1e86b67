package drift

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/foresight-go/internal/conf"
	"github.com/tphakala/foresight-go/internal/datastore"
)

// testSettings installs a self-contained configuration rooted in a temp dir,
// with windows sized down to keep test data small.
func testSettings(t *testing.T) *conf.Settings {
	t.Helper()

	dir := t.TempDir()
	s := &conf.Settings{}
	s.Main.Name = "TestNode"
	s.Main.Log.Rotation = conf.RotationSize
	s.Main.Log.MaxSize = 10 * 1024 * 1024
	s.Database.SQLite.Enabled = true
	s.Database.SQLite.Path = filepath.Join(dir, "foresight.db")
	s.Drift.Enabled = true
	s.Drift.Interval = 24 * time.Hour
	s.Drift.CurrentWindow = 24 * time.Hour
	s.Drift.ReferenceDays = 7
	s.Drift.MinSamples = 20
	s.Drift.AlertSeverity = "high"
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

// seedWindow spreads n good-quality samples evenly across [from, to).
func seedWindow(t *testing.T, store datastore.Interface, tag string, from, to time.Time, values []float64) {
	t.Helper()

	step := to.Sub(from) / time.Duration(len(values))
	readings := make([]datastore.SensorReading, len(values))
	for i, v := range values {
		readings[i] = datastore.SensorReading{
			Tag:     tag,
			Time:    from.Add(time.Duration(i) * step),
			Value:   v,
			Quality: datastore.GoodQuality,
		}
	}
	require.NoError(t, store.SaveReadings(readings))
}

func activateModel(t *testing.T, store datastore.Interface, tag string) {
	t.Helper()
	require.NoError(t, store.PromoteModel(tag, &datastore.ModelRecord{
		Kind: "seasonal-regression",
		MAE:  1.0,
	}))
}

// windows returns seed-safe bounds for the reference and current windows,
// with margins so the exact Sweep timestamp cannot move samples across the
// window boundary.
func windows(settings *conf.Settings) (refFrom, refTo, curFrom, curTo time.Time) {
	now := time.Now()
	curStart := now.Add(-settings.Drift.CurrentWindow)
	refStart := curStart.AddDate(0, 0, -settings.Drift.ReferenceDays)

	margin := 10 * time.Minute
	return refStart.Add(margin), curStart.Add(-margin),
		curStart.Add(margin), now.Add(-time.Minute)
}

func TestSweepFlagsShiftedWindow(t *testing.T) {
	settings := testSettings(t)
	store := newTestStore(t, settings)
	refFrom, refTo, curFrom, curTo := windows(settings)

	activateModel(t, store, "TAG_D")
	seedWindow(t, store, "TAG_D", refFrom, refTo, goldenPhases(300, 0))
	seedWindow(t, store, "TAG_D", curFrom, curTo, shifted(goldenPhases(100, 1.0), 15))

	var alerts []*datastore.DriftRecord
	monitor := NewMonitor(settings, store)
	monitor.SetAlertFunc(func(rec *datastore.DriftRecord) {
		alerts = append(alerts, rec)
	})

	require.NoError(t, monitor.Sweep(t.Context()))

	rec, err := store.LatestDriftResult("TAG_D")
	require.NoError(t, err)
	require.NotNil(t, rec, "check outcome must be persisted")
	assert.Equal(t, SeverityCritical, rec.Severity)
	assert.Greater(t, rec.PSI, 0.3)
	assert.Less(t, rec.KSPValue, 0.001)
	assert.Equal(t, 100, rec.CurrentSamples)
	assert.Equal(t, 300, rec.ReferenceSamples)
	assert.WithinDuration(t, time.Now(), rec.CheckedAt, time.Minute)

	require.Len(t, alerts, 1, "critical drift is above the high alert threshold")
	assert.Equal(t, "TAG_D", alerts[0].Tag)
}

func TestSweepStaysQuietOnStableData(t *testing.T) {
	settings := testSettings(t)
	store := newTestStore(t, settings)
	refFrom, refTo, curFrom, curTo := windows(settings)

	activateModel(t, store, "TAG_S")
	seedWindow(t, store, "TAG_S", refFrom, refTo, goldenPhases(300, 0))
	seedWindow(t, store, "TAG_S", curFrom, curTo, goldenPhases(100, 2.399))

	var alerts []*datastore.DriftRecord
	monitor := NewMonitor(settings, store)
	monitor.SetAlertFunc(func(rec *datastore.DriftRecord) {
		alerts = append(alerts, rec)
	})

	require.NoError(t, monitor.Sweep(t.Context()))

	rec, err := store.LatestDriftResult("TAG_S")
	require.NoError(t, err)
	require.NotNil(t, rec, "quiet checks are persisted too")
	assert.Equal(t, SeverityNone, rec.Severity)
	assert.Empty(t, alerts)
}

func TestSweepSkipsThinWindows(t *testing.T) {
	settings := testSettings(t)
	store := newTestStore(t, settings)
	refFrom, refTo, curFrom, curTo := windows(settings)

	activateModel(t, store, "TAG_T")
	seedWindow(t, store, "TAG_T", refFrom, refTo, goldenPhases(300, 0))
	seedWindow(t, store, "TAG_T", curFrom, curTo, goldenPhases(5, 0))

	monitor := NewMonitor(settings, store)
	require.NoError(t, monitor.Sweep(t.Context()))

	rec, err := store.LatestDriftResult("TAG_T")
	require.NoError(t, err)
	assert.Nil(t, rec, "too few current samples to judge")
}

func TestSweepWithoutModelsIsANoOp(t *testing.T) {
	settings := testSettings(t)
	store := newTestStore(t, settings)

	monitor := NewMonitor(settings, store)
	require.NoError(t, monitor.Sweep(t.Context()))
}

func TestAlertSeverityNoneDisablesAlerts(t *testing.T) {
	settings := testSettings(t)
	settings.Drift.AlertSeverity = "none"
	store := newTestStore(t, settings)
	refFrom, refTo, curFrom, curTo := windows(settings)

	activateModel(t, store, "TAG_N")
	seedWindow(t, store, "TAG_N", refFrom, refTo, goldenPhases(300, 0))
	seedWindow(t, store, "TAG_N", curFrom, curTo, shifted(goldenPhases(100, 1.0), 15))

	alerted := false
	monitor := NewMonitor(settings, store)
	monitor.SetAlertFunc(func(*datastore.DriftRecord) { alerted = true })

	require.NoError(t, monitor.Sweep(t.Context()))

	rec, err := store.LatestDriftResult("TAG_N")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, SeverityCritical, rec.Severity, "detection still runs")
	assert.False(t, alerted, "alerting is switched off")
}
