package jobqueue

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/tphakala/foresight-go/internal/logging"
)

// attemptTimeout bounds a single execution attempt of any action.
const attemptTimeout = 30 * time.Second

// JobQueue manages pending jobs and drives their retries.
type JobQueue struct {
	jobs            []*Job
	archivedJobs    []*Job
	mu              sync.Mutex
	stats           Snapshot
	jobCounter      int
	stopCh          chan struct{}
	runningJobs     sync.WaitGroup
	isRunning       bool
	maxJobs         int
	maxArchivedJobs int
	processCancel   context.CancelFunc
	tickInterval    time.Duration
	log             *slog.Logger
}

// NewJobQueue creates a queue with default capacity.
func NewJobQueue() *JobQueue {
	return NewJobQueueWithOptions(1000, 100)
}

// NewJobQueueWithOptions creates a queue with custom capacity limits.
func NewJobQueueWithOptions(maxJobs, maxArchivedJobs int) *JobQueue {
	log := logging.ForService("jobqueue")
	if log == nil {
		log = slog.Default().With("service", "jobqueue")
	}
	return &JobQueue{
		stopCh:          make(chan struct{}),
		maxJobs:         maxJobs,
		maxArchivedJobs: maxArchivedJobs,
		tickInterval:    time.Second,
		stats:           Snapshot{Actions: make(map[string]ActionStats)},
		log:             log,
	}
}

// SetProcessingInterval overrides the tick interval; used by tests to avoid
// waiting on the one-second default.
func (q *JobQueue) SetProcessingInterval(interval time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tickInterval = interval
}

// Start begins processing with a background context.
func (q *JobQueue) Start() {
	q.StartWithContext(context.Background())
}

// StartWithContext begins processing. Stopping the context stops the queue.
func (q *JobQueue) StartWithContext(ctx context.Context) {
	q.mu.Lock()
	if q.isRunning {
		q.mu.Unlock()
		return
	}
	q.isRunning = true
	q.stopCh = make(chan struct{})

	processCtx, cancel := context.WithCancel(ctx)
	q.processCancel = cancel
	q.mu.Unlock()

	go q.processLoop(processCtx)
}

// Stop halts processing, waiting up to ten seconds for in-flight jobs.
func (q *JobQueue) Stop() error {
	return q.StopWithTimeout(10 * time.Second)
}

// StopWithTimeout halts processing and waits for in-flight jobs up to the
// given timeout.
func (q *JobQueue) StopWithTimeout(timeout time.Duration) error {
	q.mu.Lock()
	if !q.isRunning {
		q.mu.Unlock()
		return nil
	}
	q.isRunning = false
	if q.processCancel != nil {
		q.processCancel()
		q.processCancel = nil
	}
	close(q.stopCh)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.runningJobs.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timed out waiting for jobs to complete after %v", timeout)
	}
}

// Enqueue adds a job. When the queue is full, the oldest still-pending job
// is dropped to make room; if nothing can be dropped the enqueue fails.
func (q *JobQueue) Enqueue(action Action, data any, config RetryConfig) (*Job, error) {
	if action == nil {
		return nil, ErrNilAction
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.isRunning {
		return nil, ErrQueueStopped
	}

	if len(q.jobs) >= q.maxJobs && !q.dropOldestPendingLocked() {
		q.stats.DroppedJobs++
		stats := q.stats.Actions[action.Description()]
		stats.Description = action.Description()
		stats.Dropped++
		q.stats.Actions[action.Description()] = stats
		return nil, fmt.Errorf("%w: maximum queue size (%d) reached", ErrQueueFull, q.maxJobs)
	}

	q.jobCounter++
	job := &Job{
		ID:          fmt.Sprintf("job-%d", q.jobCounter),
		Action:      action,
		Data:        data,
		MaxAttempts: config.MaxRetries + 1,
		CreatedAt:   time.Now(),
		NextRetryAt: time.Now(),
		Status:      JobStatusPending,
		Config:      config,
	}
	if !config.Enabled {
		job.MaxAttempts = 1
	}

	q.jobs = append(q.jobs, job)
	q.stats.TotalJobs++
	stats := q.stats.Actions[action.Description()]
	stats.Description = action.Description()
	stats.Attempted++
	q.stats.Actions[action.Description()] = stats

	return job, nil
}

// dropOldestPendingLocked removes the oldest pending job to make room.
// Callers must hold q.mu.
func (q *JobQueue) dropOldestPendingLocked() bool {
	oldestIdx := -1
	for i, job := range q.jobs {
		if job.Status != JobStatusPending {
			continue
		}
		if oldestIdx == -1 || job.CreatedAt.Before(q.jobs[oldestIdx].CreatedAt) {
			oldestIdx = i
		}
	}
	if oldestIdx == -1 {
		return false
	}

	dropped := q.jobs[oldestIdx]
	q.jobs = append(q.jobs[:oldestIdx], q.jobs[oldestIdx+1:]...)
	q.stats.DroppedJobs++
	stats := q.stats.Actions[dropped.Action.Description()]
	stats.Description = dropped.Action.Description()
	stats.Dropped++
	q.stats.Actions[dropped.Action.Description()] = stats

	q.log.Warn("Dropped oldest pending job to make room", "job_id", dropped.ID, "action", dropped.Action.Description())
	return true
}

func (q *JobQueue) processLoop(ctx context.Context) {
	q.mu.Lock()
	interval := q.tickInterval
	q.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-q.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			q.archiveFinishedJobs()
			q.dispatchDueJobs(ctx)
		}
	}
}

// archiveFinishedJobs moves completed and permanently failed jobs out of the
// active list, keeping a bounded history for diagnostics.
func (q *JobQueue) archiveFinishedJobs() {
	q.mu.Lock()
	defer q.mu.Unlock()

	active := q.jobs[:0]
	for _, job := range q.jobs {
		if job.Status == JobStatusCompleted || job.Status == JobStatusFailed {
			q.archivedJobs = append(q.archivedJobs, job)
		} else {
			active = append(active, job)
		}
	}
	q.jobs = active

	if excess := len(q.archivedJobs) - q.maxArchivedJobs; excess > 0 {
		q.archivedJobs = q.archivedJobs[excess:]
	}
	q.stats.ArchivedJobs = len(q.archivedJobs)
}

// dispatchDueJobs starts execution of every job whose retry time has come.
func (q *JobQueue) dispatchDueJobs(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	q.mu.Lock()
	var due []*Job
	now := time.Now()
	for _, job := range q.jobs {
		if (job.Status == JobStatusPending || job.Status == JobStatusRetrying) && !job.NextRetryAt.After(now) {
			job.Status = JobStatusRunning
			due = append(due, job)
		}
	}
	q.mu.Unlock()

	for _, job := range due {
		q.runningJobs.Go(func() {
			q.executeJob(ctx, job)
		})
	}
}

// backoffDelay computes the exponential backoff with ±10% jitter.
func backoffDelay(config RetryConfig, attempt int) time.Duration {
	delay := float64(config.InitialDelay) * math.Pow(config.Multiplier, float64(attempt))
	jitter := 0.9 + 0.2*float64(time.Now().Nanosecond())/1e9
	delay *= jitter
	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}
	return time.Duration(delay)
}

// executeJob runs one attempt, guarding against panics and slow actions, and
// schedules a retry or records the final outcome.
func (q *JobQueue) executeJob(ctx context.Context, job *Job) {
	job.Attempts++
	description := job.Action.Description()

	if job.Attempts > 1 {
		q.mu.Lock()
		q.stats.RetryAttempts++
		stats := q.stats.Actions[description]
		stats.Retried++
		q.stats.Actions[description] = stats
		q.mu.Unlock()
		q.log.Info("Retrying job", "job_id", job.ID, "action", description, "attempt", job.Attempts, "max_attempts", job.MaxAttempts)
	}

	execCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				errCh <- fmt.Errorf("job execution panicked: %v", r)
			}
		}()
		errCh <- job.Action.Execute(execCtx, job.Data)
	}()

	var err error
	select {
	case err = <-errCh:
	case <-execCtx.Done():
		err = fmt.Errorf("job execution aborted: %w", execCtx.Err())
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	stats := q.stats.Actions[description]
	stats.Description = description

	if err != nil {
		job.LastError = err
		stats.LastError = err.Error()
		stats.LastFailure = time.Now()

		if job.Attempts >= job.MaxAttempts {
			job.Status = JobStatusFailed
			q.stats.FailedJobs++
			stats.Failed++
			q.log.Error("Job permanently failed", "job_id", job.ID, "action", description, "attempts", job.Attempts, "error", err)
		} else {
			job.Status = JobStatusRetrying
			delay := backoffDelay(job.Config, job.Attempts)
			job.NextRetryAt = time.Now().Add(delay)
			q.log.Warn("Job failed, scheduling retry", "job_id", job.ID, "action", description, "retry_in", delay.String(), "attempt", job.Attempts, "error", err)
		}
	} else {
		job.Status = JobStatusCompleted
		q.stats.SuccessfulJobs++
		stats.Successful++
		stats.LastSuccess = time.Now()
		if job.Attempts > 1 {
			q.log.Info("Job succeeded after retries", "job_id", job.ID, "action", description, "attempts", job.Attempts)
		}
	}

	q.stats.Actions[description] = stats
}

// GetStats returns a snapshot of the queue state.
func (q *JobQueue) GetStats() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	actions := make(map[string]ActionStats, len(q.stats.Actions))
	for k, v := range q.stats.Actions {
		actions[k] = v
	}

	pending := 0
	for _, job := range q.jobs {
		if job.Status == JobStatusPending || job.Status == JobStatusRetrying {
			pending++
		}
	}

	snapshot := q.stats
	snapshot.Actions = actions
	snapshot.PendingJobs = pending
	snapshot.MaxQueueSize = q.maxJobs
	return snapshot
}

// ProcessImmediately triggers one processing cycle without waiting for the
// ticker; used by tests.
func (q *JobQueue) ProcessImmediately(ctx context.Context) {
	q.archiveFinishedJobs()
	q.dispatchDueJobs(ctx)
}
