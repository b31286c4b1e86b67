package jobqueue

import "time"

// Job is one unit of work tracked by the queue.
type Job struct {
	ID          string      // unique within this queue instance
	Action      Action      // the work to execute
	Data        any         // payload handed to the action
	Attempts    int         // attempts made so far
	MaxAttempts int         // attempts allowed in total
	CreatedAt   time.Time   // when the job was enqueued
	NextRetryAt time.Time   // when the next attempt is due
	Status      JobStatus   // current lifecycle state
	LastError   error       // error from the most recent attempt
	Config      RetryConfig // retry policy for this job
}

// ActionStats aggregates outcomes per action description.
type ActionStats struct {
	Description string    `json:"description"`
	Attempted   int       `json:"attempted"`
	Successful  int       `json:"successful"`
	Failed      int       `json:"failed"`
	Retried     int       `json:"retried"`
	Dropped     int       `json:"dropped"`
	LastError   string    `json:"last_error,omitempty"`
	LastSuccess time.Time `json:"last_success,omitzero"`
	LastFailure time.Time `json:"last_failure,omitzero"`
}

// Snapshot is a point-in-time view of the queue, logged on shutdown so
// dropped or still-pending side effects are visible.
type Snapshot struct {
	TotalJobs      int                    `json:"total"`
	SuccessfulJobs int                    `json:"successful"`
	FailedJobs     int                    `json:"failed"`
	RetryAttempts  int                    `json:"retry_attempts"`
	DroppedJobs    int                    `json:"dropped"`
	ArchivedJobs   int                    `json:"archived"`
	PendingJobs    int                    `json:"pending"`
	MaxQueueSize   int                    `json:"max_size"`
	Actions        map[string]ActionStats `json:"actions"`
}
