// Package metrics provides custom Prometheus metrics for the Foresight-Go
// application components.
package metrics

// Recorder is the minimal interface components depend on when they only need
// to record outcomes, keeping them testable without a live registry.
type Recorder interface {
	// RecordOperation records one operation with its status ("success", "error", ...).
	RecordOperation(operation, status string)

	// RecordDuration records how long an operation took, in seconds.
	RecordDuration(operation string, seconds float64)

	// RecordError records an error occurrence, categorized by type.
	RecordError(operation, errorType string)
}
