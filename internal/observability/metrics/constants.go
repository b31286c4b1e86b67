// Package metrics provides constants shared across metric definitions.
package metrics

import "time"

// Operation labels used by Recorder implementations.
const (
	// OpTrain covers model fitting for one entity and kind.
	OpTrain = "train"
	// OpEvaluate covers holdout metric computation.
	OpEvaluate = "evaluate"
	// OpPromote covers the atomic registry swap.
	OpPromote = "promote"
	// OpForecast covers forecast generation for one tag.
	OpForecast = "forecast"
	// OpBackfill covers matching stored predictions with observed actuals.
	OpBackfill = "backfill"
	// OpDriftCheck covers one distribution comparison for a tag.
	OpDriftCheck = "drift_check"
)

// Status labels used by Recorder implementations.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusSkipped = "skipped"
	StatusPanic   = "panic"
)

// ShutdownTimeout bounds graceful HTTP server shutdown for the metrics
// endpoint.
const ShutdownTimeout = 5 * time.Second
