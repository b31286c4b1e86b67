// Package scheduler runs the recurring background jobs: the daily training
// pass and the clock-aligned forecast, backfill, aggregation, and drift
// ticks. Interval tasks fire on wall-clock boundaries with a configurable
// stagger offset so that downstream tasks see the output of upstream ones
// within the same cycle.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tphakala/foresight-go/internal/conf"
	"github.com/tphakala/foresight-go/internal/errors"
	"github.com/tphakala/foresight-go/internal/logging"
	"github.com/tphakala/foresight-go/internal/observability/metrics"
)

// Task is a named unit of recurring work. Run receives a context that is
// cancelled when the scheduler shuts down.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// entry binds a task to the function that computes its next firing instant.
type entry struct {
	task     Task
	next     func(now time.Time) time.Time
	schedule string
}

// Scheduler owns one goroutine per registered task. Tasks are registered
// before Start and run until Stop or context cancellation.
type Scheduler struct {
	mu      sync.Mutex
	entries []*entry
	wg      sync.WaitGroup
	quit    chan struct{}
	started bool
	metrics *metrics.SchedulerMetrics
	log     *slog.Logger
}

// New returns an empty scheduler ready for task registration.
func New() *Scheduler {
	log := logging.ForService("scheduler")
	if log == nil {
		log = slog.Default().With("service", "scheduler")
	}
	return &Scheduler{log: log}
}

// SetMetrics attaches scheduler metrics for recording.
func (s *Scheduler) SetMetrics(m *metrics.SchedulerMetrics) {
	s.metrics = m
}

// AddDaily registers a task that fires once a day at the given local
// "HH:MM" time.
func (s *Scheduler) AddDaily(name, schedule string, run func(ctx context.Context) error) error {
	hour, minute, err := conf.ParseSchedule(schedule)
	if err != nil {
		return errors.New(err).
			Component("scheduler").
			Category(errors.CategoryConfiguration).
			Context("task", name).
			Context("schedule", schedule).
			Build()
	}

	s.add(&entry{
		task:     Task{Name: name, Run: run},
		next:     func(now time.Time) time.Time { return nextDaily(now, hour, minute) },
		schedule: fmt.Sprintf("daily at %02d:%02d", hour, minute),
	})
	return nil
}

// AddInterval registers a task that fires every interval, aligned to wall
// clock boundaries plus offset. An offset of one minute on a ten minute
// interval fires at x:01, x:11, and so on.
func (s *Scheduler) AddInterval(name string, interval, offset time.Duration, run func(ctx context.Context) error) error {
	if interval <= 0 {
		return errors.Newf("task %s: interval must be positive, got %s", name, interval).
			Component("scheduler").
			Category(errors.CategoryValidation).
			Build()
	}
	if offset < 0 || offset >= interval {
		return errors.Newf("task %s: offset %s must be within [0, %s)", name, offset, interval).
			Component("scheduler").
			Category(errors.CategoryValidation).
			Build()
	}

	s.add(&entry{
		task:     Task{Name: name, Run: run},
		next:     func(now time.Time) time.Time { return nextAligned(now, interval, offset) },
		schedule: fmt.Sprintf("every %s at offset %s", interval, offset),
	})
	return nil
}

func (s *Scheduler) add(e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
}

// Start launches one goroutine per registered task. Tasks added after Start
// are ignored until the next Start.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		s.log.Warn("Scheduler already running")
		return
	}
	s.started = true
	s.quit = make(chan struct{})

	for _, e := range s.entries {
		s.log.Info("Task registered", "task", e.task.Name, "schedule", e.schedule)
		s.wg.Go(func() { s.runEntry(ctx, e) })
	}
	if s.metrics != nil {
		s.metrics.SetRegisteredTasks(len(s.entries))
	}
	s.log.Info("Scheduler started", "tasks", len(s.entries))
}

// Stop signals all task goroutines and waits for in-flight runs to finish.
// Safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	close(s.quit)
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info("Scheduler stopped")
}

// runEntry sleeps until the task's next firing instant, runs it, and
// repeats. Each firing instant is recomputed from the wall clock so daily
// tasks stay correct across DST transitions.
func (s *Scheduler) runEntry(ctx context.Context, e *entry) {
	for {
		now := time.Now()
		next := e.next(now)
		timer := time.NewTimer(next.Sub(now))

		s.log.Debug("Task scheduled",
			"task", e.task.Name,
			"next_run", next.Format(time.RFC3339),
		)

		select {
		case <-timer.C:
			s.runTask(ctx, e)
		case <-s.quit:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// runTask executes a single firing. A panicking task must not take down the
// scheduler goroutine, so recovery happens here rather than in the task.
func (s *Scheduler) runTask(ctx context.Context, e *entry) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Task panicked", "task", e.task.Name, "panic", r)
			if s.metrics != nil {
				s.metrics.RecordTaskRun(e.task.Name, metrics.StatusPanic, time.Since(start))
			}
		}
	}()

	s.log.Info("Task starting", "task", e.task.Name)

	if err := e.task.Run(ctx); err != nil {
		s.log.Error("Task failed",
			"task", e.task.Name,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		if s.metrics != nil {
			s.metrics.RecordTaskRun(e.task.Name, metrics.StatusError, time.Since(start))
		}
		return
	}

	s.log.Info("Task completed",
		"task", e.task.Name,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	if s.metrics != nil {
		s.metrics.RecordTaskRun(e.task.Name, metrics.StatusSuccess, time.Since(start))
	}
}

// nextDaily returns the next local occurrence of hour:minute strictly after
// now.
func nextDaily(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// nextAligned returns the first instant strictly after now that falls on an
// interval boundary plus offset. Boundaries are measured on the wall clock,
// so a ten minute interval fires at x:00, x:10, and so on.
func nextAligned(now time.Time, interval, offset time.Duration) time.Time {
	next := now.Truncate(interval).Add(offset)
	for !next.After(now) {
		next = next.Add(interval)
	}
	return next
}
