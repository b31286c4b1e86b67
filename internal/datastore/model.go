package datastore

import (
	"time"
)

// GoodQuality is the OPC-style quality code for readings usable in training.
const GoodQuality = 192

// SensorReading is one raw time-series sample for a sensor tag.
type SensorReading struct {
	ID      uint      `gorm:"primaryKey"`
	Tag     string    `gorm:"size:100;not null;index:idx_readings_tag_time"`
	Time    time.Time `gorm:"not null;index:idx_readings_tag_time"`
	Value   float64   `gorm:"not null"`
	Quality int       `gorm:"not null;default:192"`
}

// ModelRecord is one model registry entry. Per tag, at most one record has
// Active set; PromoteModel swaps the flag and assigns the next version inside
// a single transaction.
type ModelRecord struct {
	ID              uint   `gorm:"primaryKey"`
	Tag             string `gorm:"size:100;not null;uniqueIndex:idx_models_tag_version;index:idx_models_tag_active"`
	Kind            string `gorm:"size:50;not null"`
	Version         int    `gorm:"not null;uniqueIndex:idx_models_tag_version"`
	MAE             float64
	RMSE            float64
	MAPE            float64
	Hyperparameters string `gorm:"type:text"`
	Artifact        []byte `gorm:"type:blob"`
	ArtifactSize    int
	WindowStart     time.Time
	WindowEnd       time.Time
	WindowSamples   int
	TrainDuration   time.Duration
	Active          bool `gorm:"not null;default:false;index:idx_models_tag_active"`
	DeployedAt      *time.Time
	CreatedAt       time.Time
}

// Entity outcome labels recorded per run.
const (
	OutcomePromoted = "promoted"
	OutcomeKept     = "kept"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

// RunRecord is the audit record of one orchestration pass.
type RunRecord struct {
	ID          uint   `gorm:"primaryKey"`
	RunID       string `gorm:"size:36;uniqueIndex"`
	StartedAt   time.Time
	FinishedAt  time.Time
	Attempted   int
	Succeeded   int
	Promoted    int
	Skipped     int
	Failed      int
	Aborted     bool
	AbortReason string            `gorm:"size:255"`
	Entities    []RunEntityRecord `gorm:"foreignKey:RunRecordID"`
}

// RunEntityRecord is the per-entity outcome within one run.
type RunEntityRecord struct {
	ID          uint   `gorm:"primaryKey"`
	RunRecordID uint   `gorm:"index"`
	Tag         string `gorm:"size:100;not null"`
	Outcome     string `gorm:"size:20;not null"`
	Reason      string `gorm:"size:255"`
	Kind        string `gorm:"size:50"`
	MAE         float64
	Version     int
	Duration    time.Duration
}

// PredictionRecord is one stored forecast point, later backfilled with the
// observed actual value.
type PredictionRecord struct {
	ID             uint      `gorm:"primaryKey"`
	Tag            string    `gorm:"size:100;not null;uniqueIndex:idx_predictions_key"`
	TargetTime     time.Time `gorm:"not null;uniqueIndex:idx_predictions_key;index:idx_predictions_due"`
	HorizonMinutes int       `gorm:"not null;uniqueIndex:idx_predictions_key"`
	ModelID        uint
	ModelVersion   int
	ForecastTime   time.Time
	Predicted      float64
	LowerBound     float64
	UpperBound     float64
	Actual         *float64
	AbsError       *float64
	APE            *float64
}

// PerformanceRecord is an hourly accuracy aggregate per tag and horizon.
type PerformanceRecord struct {
	ID             uint      `gorm:"primaryKey"`
	Tag            string    `gorm:"size:100;not null;uniqueIndex:idx_perf_key"`
	HourStart      time.Time `gorm:"not null;uniqueIndex:idx_perf_key"`
	HorizonMinutes int       `gorm:"not null;uniqueIndex:idx_perf_key"`
	SampleCount    int
	MAE            float64
	RMSE           float64
	MAPE           float64
	UpdatedAt      time.Time
}

// DriftRecord is the stored outcome of one drift check for a tag.
type DriftRecord struct {
	ID               uint   `gorm:"primaryKey"`
	Tag              string `gorm:"size:100;not null;index"`
	CheckedAt        time.Time
	PSI              float64
	KSStat           float64
	KSPValue         float64
	JSDivergence     float64
	Severity         string `gorm:"size:20"`
	CurrentSamples   int
	ReferenceSamples int
}
