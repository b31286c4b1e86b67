// Package jobqueue provides an in-process job queue with configurable
// exponential-backoff retries. Side-effect work that may fail transiently,
// like publishing run summaries to MQTT or pushing notifications, is enqueued
// here instead of blocking the orchestration path.
package jobqueue

import (
	"context"
	"errors"
	"time"
)

// Errors returned by queue operations.
var (
	ErrNilAction    = errors.New("cannot enqueue nil action")
	ErrQueueStopped = errors.New("job queue has been stopped")
	ErrQueueFull    = errors.New("job queue is full")
)

// RetryConfig holds the retry behavior for one action.
type RetryConfig struct {
	Enabled      bool          // whether failed attempts are retried
	MaxRetries   int           // maximum number of retry attempts
	InitialDelay time.Duration // delay before the first retry
	MaxDelay     time.Duration // ceiling for the backoff delay
	Multiplier   float64       // backoff multiplier per attempt
}

// DefaultRetryConfig returns the retry policy used for delivery-style
// actions: five retries over roughly half an hour.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Enabled:      true,
		MaxRetries:   5,
		InitialDelay: 10 * time.Second,
		MaxDelay:     10 * time.Minute,
		Multiplier:   2.0,
	}
}

// Action is a unit of work the queue can execute and retry.
type Action interface {
	// Execute performs the work. The context carries the per-attempt timeout.
	Execute(ctx context.Context, data any) error
	// Description names the action for logs and stats.
	Description() string
}

// JobStatus represents the lifecycle state of a queued job.
type JobStatus int

const (
	// JobStatusPending indicates the job is waiting for its first attempt.
	JobStatusPending JobStatus = iota
	// JobStatusRunning indicates the job is currently executing.
	JobStatusRunning
	// JobStatusCompleted indicates the job succeeded.
	JobStatusCompleted
	// JobStatusFailed indicates the job exhausted its attempts.
	JobStatusFailed
	// JobStatusRetrying indicates the job failed and awaits its next attempt.
	JobStatusRetrying
)

// String returns the human-readable status name.
func (s JobStatus) String() string {
	switch s {
	case JobStatusPending:
		return "Pending"
	case JobStatusRunning:
		return "Running"
	case JobStatusCompleted:
		return "Completed"
	case JobStatusFailed:
		return "Failed"
	case JobStatusRetrying:
		return "Retrying"
	default:
		return "Unknown"
	}
}
