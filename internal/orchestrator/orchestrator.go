// Package orchestrator drives periodic retraining passes over all monitored
// sensor tags. Each pass fits candidate models per tag, evaluates them on a
// holdout slice, and atomically promotes winners into the model registry.
// Entity failures are isolated: one tag can never abort the others.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tphakala/foresight-go/internal/conf"
	"github.com/tphakala/foresight-go/internal/datastore"
	"github.com/tphakala/foresight-go/internal/errors"
	"github.com/tphakala/foresight-go/internal/logging"
	"github.com/tphakala/foresight-go/internal/observability/metrics"
	"github.com/tphakala/foresight-go/internal/trainer"
	"golang.org/x/sync/errgroup"
)

// ErrRunInProgress is returned when a run is requested while another pass is
// still executing. Overlapping passes are never queued.
var ErrRunInProgress = errors.NewStd("training run already in progress")

// RunOptions override the configured defaults for a single pass. Zero fields
// fall back to the training settings.
type RunOptions struct {
	LookbackDays  int
	MinSamples    int
	Workers       int
	EntityTimeout time.Duration
	Kinds         []trainer.ModelKind
	// Tags restricts the pass to specific tags instead of discovering all
	// tags with recent readings.
	Tags []string
}

// Orchestrator owns run-level mutual exclusion, the worker pool, and the
// audit trail of every pass.
type Orchestrator struct {
	settings   *conf.Settings
	store      datastore.Interface
	trainer    *trainer.Trainer
	metrics    *metrics.OrchestratorMetrics
	log        *slog.Logger
	audit      *slog.Logger
	auditClose func() error
	running    atomic.Bool
}

// New creates an Orchestrator backed by the given registry store. The audit
// file logger is opened immediately so a misconfigured audit path fails at
// startup, not mid-run.
func New(settings *conf.Settings, store datastore.Interface) (*Orchestrator, error) {
	log := logging.ForService("orchestrator")
	if log == nil {
		log = slog.Default().With("service", "orchestrator")
	}

	o := &Orchestrator{
		settings: settings,
		store:    store,
		trainer:  trainer.New(),
		log:      log,
	}

	if path := settings.Training.AuditLog; path != "" {
		audit, closer, err := logging.NewFileLogger(path, "training-audit", slog.LevelInfo)
		if err != nil {
			return nil, errors.New(err).
				Component("orchestrator").
				Category(errors.CategoryFileIO).
				Context("path", path).
				Build()
		}
		o.audit = audit
		o.auditClose = closer
	}

	return o, nil
}

// SetMetrics attaches Prometheus metrics. Safe to leave unset.
func (o *Orchestrator) SetMetrics(m *metrics.OrchestratorMetrics) {
	o.metrics = m
}

// Close releases the audit log writer.
func (o *Orchestrator) Close() error {
	if o.auditClose != nil {
		return o.auditClose()
	}
	return nil
}

// Running reports whether a pass is currently executing.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// options merges per-run overrides with configured defaults.
func (o *Orchestrator) options(opts *RunOptions) RunOptions {
	t := &o.settings.Training
	merged := RunOptions{
		LookbackDays:  t.LookbackDays,
		MinSamples:    t.MinSamples,
		Workers:       t.Workers,
		EntityTimeout: t.EntityTimeout,
	}
	for _, k := range t.Kinds {
		if kind, err := trainer.ParseKind(k); err == nil {
			merged.Kinds = append(merged.Kinds, kind)
		} else {
			o.log.Warn("Ignoring unknown model kind in settings", "kind", k)
		}
	}
	if opts != nil {
		if opts.LookbackDays > 0 {
			merged.LookbackDays = opts.LookbackDays
		}
		if opts.MinSamples > 0 {
			merged.MinSamples = opts.MinSamples
		}
		if opts.Workers > 0 {
			merged.Workers = opts.Workers
		}
		if opts.EntityTimeout > 0 {
			merged.EntityTimeout = opts.EntityTimeout
		}
		if len(opts.Kinds) > 0 {
			merged.Kinds = opts.Kinds
		}
		merged.Tags = opts.Tags
	}
	if merged.Workers < 1 {
		merged.Workers = 1
	}
	if merged.EntityTimeout <= 0 {
		merged.EntityTimeout = 10 * time.Minute
	}
	if len(merged.Kinds) == 0 {
		merged.Kinds = trainer.AllKinds()
	}
	return merged
}

// Run executes one full retraining pass and returns its summary. Only one
// pass may execute at a time; concurrent attempts get ErrRunInProgress. The
// pass itself fails only when the registry is unreachable before any entity
// starts; every per-entity problem is absorbed into the summary.
func (o *Orchestrator) Run(ctx context.Context, opts *RunOptions) (*Summary, error) {
	if !o.running.CompareAndSwap(false, true) {
		if o.metrics != nil {
			o.metrics.RunRejected()
		}
		return nil, ErrRunInProgress
	}
	defer o.running.Store(false)

	merged := o.options(opts)
	summary := newSummary(uuid.New().String())

	o.log.Info("Training run starting",
		"run_id", summary.RunID,
		"lookback_days", merged.LookbackDays,
		"min_samples", merged.MinSamples,
		"workers", merged.Workers,
		"entity_timeout", merged.EntityTimeout.String(),
	)
	if o.metrics != nil {
		o.metrics.RunStarted()
	}

	// An unreachable registry fails the whole pass before any entity starts.
	if err := o.store.Ping(); err != nil {
		return o.abort(summary, "model registry unreachable", err)
	}

	tags := merged.Tags
	if len(tags) == 0 {
		since := summary.StartedAt.AddDate(0, 0, -merged.LookbackDays)
		discovered, err := o.store.ActiveSensorTags(since, 1)
		if err != nil {
			return o.abort(summary, "listing active sensor tags", err)
		}
		tags = discovered
	}
	if len(tags) == 0 {
		o.log.Warn("No sensor tags with recent readings, nothing to train", "run_id", summary.RunID)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(merged.Workers)
	for _, tag := range tags {
		g.Go(func() error {
			summary.add(o.processEntity(gctx, tag, &merged))
			return nil
		})
	}
	// Workers never return errors; outcomes land in the summary.
	_ = g.Wait()

	summary.finalize()
	o.conclude(summary)
	if o.metrics != nil {
		o.metrics.RunCompleted(summary.Duration())
	}
	return summary, nil
}

// abort finalizes and persists a run that failed before entity processing.
func (o *Orchestrator) abort(summary *Summary, reason string, cause error) (*Summary, error) {
	summary.Aborted = true
	summary.AbortReason = fmt.Sprintf("%s: %v", reason, cause)
	summary.finalize()
	o.conclude(summary)
	if o.metrics != nil {
		o.metrics.RunAborted()
	}
	return summary, errors.New(cause).
		Component("orchestrator").
		Category(errors.CategoryDatabase).
		Context("run_id", summary.RunID).
		Context("stage", reason).
		Build()
}

// conclude persists the run record and emits the audit entry. Both are
// best-effort: a failing audit write must not fail an otherwise completed
// run, it is only logged.
func (o *Orchestrator) conclude(summary *Summary) {
	if err := o.store.SaveRun(summary.Record()); err != nil {
		o.log.Error("Failed to persist run record", "run_id", summary.RunID, "error", err)
	}
	if o.audit != nil {
		o.audit.Info("training run summary", summary.logAttrs()...)
	}
	o.log.Info("Training run finished",
		"run_id", summary.RunID,
		"attempted", summary.Attempted,
		"promoted", summary.Promoted,
		"kept", summary.Kept,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"aborted", summary.Aborted,
		"duration_ms", summary.Duration().Milliseconds(),
	)
}

// processEntity runs the train/evaluate/decide/promote pipeline for one tag.
// Every failure, including a panic in model fitting, converts into an
// outcome so the rest of the pass keeps going.
func (o *Orchestrator) processEntity(ctx context.Context, tag string, opts *RunOptions) (result EntityResult) {
	started := time.Now()
	result = EntityResult{Tag: tag}
	defer func() {
		if r := recover(); r != nil {
			result.Outcome = datastore.OutcomeFailed
			result.Reason = fmt.Sprintf("panic: %v", r)
			o.log.Error("Entity worker panicked", "tag", tag, "panic", r)
		}
		result.Duration = time.Since(started)
		if o.metrics != nil {
			o.metrics.RecordEntity(result.Outcome, result.Duration)
		}
	}()

	entCtx, cancel := context.WithTimeout(ctx, opts.EntityTimeout)
	defer cancel()

	now := time.Now()
	from := now.AddDate(0, 0, -opts.LookbackDays)
	readings, err := o.store.GetReadings(tag, from, now)
	if err != nil {
		return o.failEntity(result, "reading history", err)
	}
	if len(readings) < opts.MinSamples {
		result.Outcome = datastore.OutcomeSkipped
		result.Reason = fmt.Sprintf("insufficient data: have %d samples, need %d", len(readings), opts.MinSamples)
		o.log.Info("Skipping entity", "tag", tag, "reason", result.Reason)
		return result
	}

	series := toSeries(readings)
	fit, holdout := trainer.Split(series, o.settings.Training.HoldoutFraction)
	window := &trainer.Window{
		Tag:        tag,
		Start:      from,
		End:        now,
		MinSamples: opts.MinSamples,
		Samples:    fit,
	}

	best, failures := o.bestCandidate(entCtx, window, holdout, opts.Kinds)
	if best == nil {
		return o.failEntity(result, "training candidates", errors.Join(failures...))
	}
	result.Kind = string(best.Kind)
	result.MAE = best.Metrics.MAE

	active, err := o.store.GetActiveModel(tag)
	if err != nil {
		return o.failEntity(result, "loading active model", err)
	}

	decision, err := Decide(best.Metrics.MAE, active, o.settings.Training.MinImprovement)
	if err != nil {
		// Contract violation: loud, but still isolated to this entity.
		o.log.Error("Deployment decision contract violation", "tag", tag, "error", err)
		result.Outcome = datastore.OutcomeFailed
		result.Reason = err.Error()
		return result
	}

	if !decision.Promote {
		result.Outcome = datastore.OutcomeKept
		result.Version = active.Version
		result.Reason = decision.Reason
		o.log.Debug("Keeping incumbent model", "tag", tag, "version", active.Version, "reason", decision.Reason)
		return result
	}

	record := modelRecord(best)
	if err := o.store.PromoteModel(tag, record); err != nil {
		// The transaction rolled back; the previous active model still rules.
		return o.failEntity(result, "promoting candidate", err)
	}
	if o.metrics != nil {
		o.metrics.RecordPromotion()
	}

	result.Outcome = datastore.OutcomePromoted
	result.Version = record.Version
	result.Reason = decision.Reason
	o.log.Info("Promoted candidate model",
		"tag", tag,
		"kind", result.Kind,
		"version", record.Version,
		"mae", best.Metrics.MAE,
	)
	return result
}

// bestCandidate fits and evaluates every requested kind and returns the one
// with the lowest holdout MAE. Individual kind failures are tolerated as
// long as at least one kind produces a scored candidate.
func (o *Orchestrator) bestCandidate(ctx context.Context, w *trainer.Window, holdout trainer.Series, kinds []trainer.ModelKind) (*trainer.Candidate, []error) {
	var best *trainer.Candidate
	var failures []error
	for _, kind := range kinds {
		candidate, err := o.trainer.Train(ctx, w, kind)
		if err != nil {
			failures = append(failures, err)
			continue
		}
		if _, err := o.trainer.Evaluate(candidate, w.Samples, holdout); err != nil {
			failures = append(failures, err)
			continue
		}
		if best == nil || candidate.Metrics.MAE < best.Metrics.MAE {
			best = candidate
		}
	}
	return best, failures
}

func (o *Orchestrator) failEntity(result EntityResult, stage string, err error) EntityResult {
	result.Outcome = datastore.OutcomeFailed
	result.Reason = fmt.Sprintf("%s: %v", stage, err)
	o.log.Error("Entity failed", "tag", result.Tag, "stage", stage, "error", err)
	return result
}

func toSeries(readings []datastore.SensorReading) trainer.Series {
	s := make(trainer.Series, len(readings))
	for i := range readings {
		s[i] = trainer.Sample{Time: readings[i].Time, Value: readings[i].Value}
	}
	return s
}

func modelRecord(c *trainer.Candidate) *datastore.ModelRecord {
	return &datastore.ModelRecord{
		Tag:             c.Tag,
		Kind:            string(c.Kind),
		MAE:             c.Metrics.MAE,
		RMSE:            c.Metrics.RMSE,
		MAPE:            c.Metrics.MAPE,
		Hyperparameters: string(c.Params),
		Artifact:        []byte(c.Params),
		WindowStart:     c.WindowStart,
		WindowEnd:       c.WindowEnd,
		WindowSamples:   c.WindowSamples,
		TrainDuration:   c.TrainDuration,
	}
}
