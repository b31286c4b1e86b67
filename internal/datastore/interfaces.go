// Package datastore implements the persistent store for sensor readings,
// the versioned model registry, predictions, accuracy aggregates, drift
// results, and run audit records. SQLite and MySQL backends share the same
// GORM-based implementation.
package datastore

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tphakala/foresight-go/internal/conf"
	"github.com/tphakala/foresight-go/internal/errors"
	"github.com/tphakala/foresight-go/internal/logging"
)

// Interface is the datastore contract consumed by the orchestrator, the
// forecast pipeline, the drift monitor, and the API layer.
type Interface interface {
	Open() error
	Close() error
	Ping() error

	// model registry
	GetActiveModel(tag string) (*ModelRecord, error)
	PromoteModel(tag string, m *ModelRecord) error
	ModelHistory(tag string, limit int) ([]ModelRecord, error)
	ActiveModels() ([]ModelRecord, error)

	// sensor readings
	ActiveSensorTags(since time.Time, minSamples int) ([]string, error)
	GetReadings(tag string, from, to time.Time) ([]SensorReading, error)
	ReadingsAround(tag string, at time.Time, tolerance time.Duration) ([]SensorReading, error)
	SaveReadings(readings []SensorReading) error

	// run audit
	SaveRun(run *RunRecord) error
	GetRun(runID string) (*RunRecord, error)
	RecentRuns(limit int) ([]RunRecord, error)

	// predictions
	SavePredictions(preds []PredictionRecord) error
	DuePredictions(before time.Time, limit int) ([]PredictionRecord, error)
	SetPredictionActual(id uint, actual, absError float64, ape *float64) error
	PredictionsForTag(tag string, from time.Time, limit int) ([]PredictionRecord, error)
	CompletedPredictions(hourStart, hourEnd time.Time) ([]PredictionRecord, error)

	// accuracy aggregates
	UpsertPerformance(rec *PerformanceRecord) error
	PerformanceForTag(tag string, from time.Time) ([]PerformanceRecord, error)
	PurgePerformanceBefore(cutoff time.Time) (int64, error)

	// drift
	SaveDriftResult(rec *DriftRecord) error
	LatestDriftResult(tag string) (*DriftRecord, error)
}

// DataStore implements Interface using GORM; embedded by the backend types.
type DataStore struct {
	DB *gorm.DB
}

// New creates the configured datastore backend.
func New(settings *conf.Settings) (Interface, error) {
	switch {
	case settings.Database.SQLite.Enabled:
		return &SQLiteStore{
			Settings: settings,
		}, nil
	case settings.Database.MySQL.Enabled:
		return &MySQLStore{
			Settings: settings,
		}, nil
	default:
		return nil, errors.Newf("no database backend enabled in settings").
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// Ping verifies the underlying connection is alive. The orchestrator calls
// this as a preflight before starting a pass.
func (ds *DataStore) Ping() error {
	if ds.DB == nil {
		return errors.Newf("datastore not open").
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	if err := sqlDB.Ping(); err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "ping").
			Build()
	}
	return nil
}

// Close closes the underlying database connection.
func (ds *DataStore) Close() error {
	if ds.DB == nil {
		return nil
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// --- model registry ---

// GetActiveModel returns the active model for tag, or nil when the tag has
// never had a promotion.
func (ds *DataStore) GetActiveModel(tag string) (*ModelRecord, error) {
	var m ModelRecord
	err := ds.DB.Where("tag = ? AND active = ?", tag, true).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryModelRegistry).
			Context("tag", tag).
			Context("operation", "get_active_model").
			Build()
	}
	return &m, nil
}

// PromoteModel atomically deactivates the current active model for tag (if
// any) and inserts m as the new active record with the next version number.
// Readers never observe zero or two active models for the tag.
func (ds *DataStore) PromoteModel(tag string, m *ModelRecord) error {
	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		var maxVersion int
		row := tx.Model(&ModelRecord{}).
			Where("tag = ?", tag).
			Select("COALESCE(MAX(version), 0)").
			Row()
		if err := row.Scan(&maxVersion); err != nil {
			return err
		}

		if err := tx.Model(&ModelRecord{}).
			Where("tag = ? AND active = ?", tag, true).
			Update("active", false).Error; err != nil {
			return err
		}

		now := time.Now()
		m.Tag = tag
		m.Version = maxVersion + 1
		m.Active = true
		m.DeployedAt = &now
		m.ArtifactSize = len(m.Artifact)

		return tx.Create(m).Error
	})
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryModelRegistry).
			Context("tag", tag).
			Context("operation", "promote").
			Build()
	}
	return nil
}

// ModelHistory returns the most recent registry entries for tag, newest first.
func (ds *DataStore) ModelHistory(tag string, limit int) ([]ModelRecord, error) {
	var models []ModelRecord
	q := ds.DB.Where("tag = ?", tag).Order("version DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("fetching model history for %s: %w", tag, err)
	}
	return models, nil
}

// ActiveModels returns the active model of every tag that has one.
func (ds *DataStore) ActiveModels() ([]ModelRecord, error) {
	var models []ModelRecord
	if err := ds.DB.Where("active = ?", true).Order("tag").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("fetching active models: %w", err)
	}
	return models, nil
}

// --- sensor readings ---

// ActiveSensorTags returns tags that have at least minSamples good-quality
// readings since the given time, sorted by tag.
func (ds *DataStore) ActiveSensorTags(since time.Time, minSamples int) ([]string, error) {
	var tags []string
	err := ds.DB.Model(&SensorReading{}).
		Where("time >= ? AND quality = ?", since, GoodQuality).
		Group("tag").
		Having("COUNT(*) >= ?", minSamples).
		Order("tag").
		Pluck("tag", &tags).Error
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "active_sensor_tags").
			Build()
	}
	return tags, nil
}

// GetReadings returns good-quality readings for tag in [from, to), ordered
// by time.
func (ds *DataStore) GetReadings(tag string, from, to time.Time) ([]SensorReading, error) {
	var readings []SensorReading
	err := ds.DB.
		Where("tag = ? AND time >= ? AND time < ? AND quality = ?", tag, from, to, GoodQuality).
		Order("time").
		Find(&readings).Error
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("tag", tag).
			Context("operation", "get_readings").
			Build()
	}
	return readings, nil
}

// ReadingsAround returns readings for tag within tolerance of at, nearest
// first, so callers can pick the closest match.
func (ds *DataStore) ReadingsAround(tag string, at time.Time, tolerance time.Duration) ([]SensorReading, error) {
	var readings []SensorReading
	err := ds.DB.
		Where("tag = ? AND time >= ? AND time <= ? AND quality = ?",
			tag, at.Add(-tolerance), at.Add(tolerance), GoodQuality).
		Order("time").
		Find(&readings).Error
	if err != nil {
		return nil, fmt.Errorf("fetching readings around %s for %s: %w", at, tag, err)
	}
	sort.Slice(readings, func(i, j int) bool {
		di := readings[i].Time.Sub(at).Abs()
		dj := readings[j].Time.Sub(at).Abs()
		return di < dj
	})
	return readings, nil
}

// SaveReadings bulk-inserts sensor readings.
func (ds *DataStore) SaveReadings(readings []SensorReading) error {
	if len(readings) == 0 {
		return nil
	}
	if err := ds.DB.CreateInBatches(readings, 500).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "save_readings").
			Context("count", len(readings)).
			Build()
	}
	return nil
}

// --- run audit ---

// SaveRun persists a finalized run record with its per-entity outcomes.
func (ds *DataStore) SaveRun(run *RunRecord) error {
	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		return tx.Create(run).Error
	})
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "save_run").
			Context("run_id", run.RunID).
			Build()
	}
	return nil
}

// GetRun returns a run with its entities, or nil when unknown.
func (ds *DataStore) GetRun(runID string) (*RunRecord, error) {
	var run RunRecord
	err := ds.DB.Preload("Entities").Where("run_id = ?", runID).First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching run %s: %w", runID, err)
	}
	return &run, nil
}

// RecentRuns returns the most recent runs, newest first, with entities.
func (ds *DataStore) RecentRuns(limit int) ([]RunRecord, error) {
	var runs []RunRecord
	q := ds.DB.Preload("Entities").Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("fetching recent runs: %w", err)
	}
	return runs, nil
}

// --- predictions ---

// SavePredictions bulk-inserts forecast points. A point that already exists
// for the same tag, target time, and horizon is left untouched, so repeating
// a generation cycle is harmless.
func (ds *DataStore) SavePredictions(preds []PredictionRecord) error {
	if len(preds) == 0 {
		return nil
	}
	if err := ds.DB.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(preds, 200).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "save_predictions").
			Context("count", len(preds)).
			Build()
	}
	return nil
}

// DuePredictions returns predictions whose target time has passed but whose
// actual value has not been backfilled yet, oldest first.
func (ds *DataStore) DuePredictions(before time.Time, limit int) ([]PredictionRecord, error) {
	var preds []PredictionRecord
	q := ds.DB.
		Where("target_time <= ? AND actual IS NULL", before).
		Order("target_time")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&preds).Error; err != nil {
		return nil, fmt.Errorf("fetching due predictions: %w", err)
	}
	return preds, nil
}

// SetPredictionActual backfills the observed value and error columns of one
// prediction.
func (ds *DataStore) SetPredictionActual(id uint, actual, absError float64, ape *float64) error {
	updates := map[string]any{
		"actual":    actual,
		"abs_error": absError,
	}
	if ape != nil {
		updates["ape"] = *ape
	}
	if err := ds.DB.Model(&PredictionRecord{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("updating prediction %d actual: %w", id, err)
	}
	return nil
}

// PredictionsForTag returns predictions for tag with target time at or after
// from, ordered by target time.
func (ds *DataStore) PredictionsForTag(tag string, from time.Time, limit int) ([]PredictionRecord, error) {
	var preds []PredictionRecord
	q := ds.DB.
		Where("tag = ? AND target_time >= ?", tag, from).
		Order("target_time")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&preds).Error; err != nil {
		return nil, fmt.Errorf("fetching predictions for %s: %w", tag, err)
	}
	return preds, nil
}

// CompletedPredictions returns predictions with backfilled actuals whose
// target time falls in [hourStart, hourEnd).
func (ds *DataStore) CompletedPredictions(hourStart, hourEnd time.Time) ([]PredictionRecord, error) {
	var preds []PredictionRecord
	err := ds.DB.
		Where("target_time >= ? AND target_time < ? AND actual IS NOT NULL", hourStart, hourEnd).
		Order("tag").
		Find(&preds).Error
	if err != nil {
		return nil, fmt.Errorf("fetching completed predictions: %w", err)
	}
	return preds, nil
}

// --- accuracy aggregates ---

// UpsertPerformance inserts or replaces the aggregate row identified by
// tag, hour start, and horizon.
func (ds *DataStore) UpsertPerformance(rec *PerformanceRecord) error {
	rec.UpdatedAt = time.Now()
	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		var existing PerformanceRecord
		err := tx.Where("tag = ? AND hour_start = ? AND horizon_minutes = ?",
			rec.Tag, rec.HourStart, rec.HorizonMinutes).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(rec).Error
		case err != nil:
			return err
		default:
			rec.ID = existing.ID
			return tx.Save(rec).Error
		}
	})
	if err != nil {
		return fmt.Errorf("upserting performance for %s: %w", rec.Tag, err)
	}
	return nil
}

// PerformanceForTag returns hourly aggregates for tag from the given time
// onward, ordered by hour and horizon.
func (ds *DataStore) PerformanceForTag(tag string, from time.Time) ([]PerformanceRecord, error) {
	var recs []PerformanceRecord
	err := ds.DB.
		Where("tag = ? AND hour_start >= ?", tag, from).
		Order("hour_start, horizon_minutes").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("fetching performance for %s: %w", tag, err)
	}
	return recs, nil
}

// PurgePerformanceBefore deletes aggregates older than cutoff and returns the
// number of rows removed.
func (ds *DataStore) PurgePerformanceBefore(cutoff time.Time) (int64, error) {
	result := ds.DB.Where("hour_start < ?", cutoff).Delete(&PerformanceRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("purging performance aggregates: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// --- drift ---

// SaveDriftResult persists the outcome of one drift check.
func (ds *DataStore) SaveDriftResult(rec *DriftRecord) error {
	if err := ds.DB.Create(rec).Error; err != nil {
		return fmt.Errorf("saving drift result for %s: %w", rec.Tag, err)
	}
	return nil
}

// LatestDriftResult returns the most recent drift check for tag, or nil.
func (ds *DataStore) LatestDriftResult(tag string) (*DriftRecord, error) {
	var rec DriftRecord
	err := ds.DB.Where("tag = ?", tag).Order("checked_at DESC").First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching drift result for %s: %w", tag, err)
	}
	return &rec, nil
}

// serviceLogger returns the datastore logger, falling back to the default
// slog logger when logging has not been initialized (tests).
func serviceLogger() *slog.Logger {
	if l := logging.ForService("datastore"); l != nil {
		return l
	}
	return slog.Default()
}
