package daemon

import (
	"context"

	"github.com/tphakala/foresight-go/internal/datastore"
	"github.com/tphakala/foresight-go/internal/errors"
	"github.com/tphakala/foresight-go/internal/jobqueue"
	"github.com/tphakala/foresight-go/internal/orchestrator"
)

// effect adapts a named delivery function to the queue's Action interface.
// The name shows up in queue statistics and retry logs.
type effect struct {
	name string
	fn   func(ctx context.Context, data any) error
}

func (e *effect) Execute(ctx context.Context, data any) error { return e.fn(ctx, data) }

func (e *effect) Description() string { return e.name }

// enqueueEffect queues one delivery with the default retry policy. A failed
// enqueue loses the delivery, which is acceptable: run outcomes are already
// persisted and the loss is logged here.
func (d *Daemon) enqueueEffect(name string, fn func(ctx context.Context, data any) error, data any) {
	if _, err := d.queue.Enqueue(&effect{name: name, fn: fn}, data, jobqueue.DefaultRetryConfig()); err != nil {
		d.log.Error("Failed to enqueue delivery", "action", name, "error", err)
	}
}

// dispatchRunEffects fans a finished training pass out to the enabled
// delivery channels. Each delivery retries independently; none of them can
// fail the pass itself.
func (d *Daemon) dispatchRunEffects(summary *orchestrator.Summary) {
	rec := summary.Record()

	if d.publisher != nil {
		d.enqueueEffect("mqtt run event", d.publishRun, rec)
	}
	if d.notifier.Enabled() {
		d.enqueueEffect("run notification", d.notifyRun, rec)
	}
	if d.exporter.Enabled() {
		d.enqueueEffect("run summary export", d.exportRun, rec)
		for i := range summary.Entities {
			e := &summary.Entities[i]
			if e.Outcome == datastore.OutcomePromoted {
				d.enqueueEffect("model artifact export", d.exportModel, e.Tag)
			}
		}
	}
}

// dispatchDriftAlert is installed as the drift monitor's alert callback and
// runs on the monitor's goroutine, so it only enqueues.
func (d *Daemon) dispatchDriftAlert(rec *datastore.DriftRecord) {
	if d.publisher != nil {
		d.enqueueEffect("mqtt drift event", d.publishDrift, rec)
	}
	if d.notifier.Enabled() {
		d.enqueueEffect("drift notification", d.notifyDrift, rec)
	}
}

// dispatchForecast is installed as the generator's publish hook and runs on
// the generation goroutine, so it only enqueues.
func (d *Daemon) dispatchForecast(preds []datastore.PredictionRecord) {
	if d.publisher != nil {
		d.enqueueEffect("mqtt forecast event", d.publishForecast, preds)
	}
}

// ensureBroker reconnects before a publish when the connection dropped. The
// client's own cooldown keeps a flapping broker from being hammered by
// delivery retries.
func (d *Daemon) ensureBroker(ctx context.Context) error {
	if d.mqttClient.IsConnected() {
		return nil
	}
	return d.mqttClient.Connect(ctx)
}

func (d *Daemon) publishRun(ctx context.Context, data any) error {
	rec, ok := data.(*datastore.RunRecord)
	if !ok {
		return errors.Newf("mqtt run event carries %T, want *datastore.RunRecord", data).
			Component("daemon").
			Category(errors.CategoryState).
			Build()
	}
	if err := d.ensureBroker(ctx); err != nil {
		return err
	}
	return d.publisher.PublishRun(ctx, rec)
}

func (d *Daemon) publishDrift(ctx context.Context, data any) error {
	rec, ok := data.(*datastore.DriftRecord)
	if !ok {
		return errors.Newf("mqtt drift event carries %T, want *datastore.DriftRecord", data).
			Component("daemon").
			Category(errors.CategoryState).
			Build()
	}
	if err := d.ensureBroker(ctx); err != nil {
		return err
	}
	return d.publisher.PublishDrift(ctx, rec)
}

func (d *Daemon) publishForecast(ctx context.Context, data any) error {
	preds, ok := data.([]datastore.PredictionRecord)
	if !ok {
		return errors.Newf("mqtt forecast event carries %T, want []datastore.PredictionRecord", data).
			Component("daemon").
			Category(errors.CategoryState).
			Build()
	}
	if err := d.ensureBroker(ctx); err != nil {
		return err
	}
	return d.publisher.PublishForecast(ctx, preds)
}

func (d *Daemon) notifyRun(ctx context.Context, data any) error {
	rec, ok := data.(*datastore.RunRecord)
	if !ok {
		return errors.Newf("run notification carries %T, want *datastore.RunRecord", data).
			Component("daemon").
			Category(errors.CategoryState).
			Build()
	}
	return d.notifier.RunCompleted(ctx, rec)
}

func (d *Daemon) notifyDrift(ctx context.Context, data any) error {
	rec, ok := data.(*datastore.DriftRecord)
	if !ok {
		return errors.Newf("drift notification carries %T, want *datastore.DriftRecord", data).
			Component("daemon").
			Category(errors.CategoryState).
			Build()
	}
	return d.notifier.DriftDetected(ctx, rec)
}

func (d *Daemon) exportRun(ctx context.Context, data any) error {
	rec, ok := data.(*datastore.RunRecord)
	if !ok {
		return errors.Newf("run summary export carries %T, want *datastore.RunRecord", data).
			Component("daemon").
			Category(errors.CategoryState).
			Build()
	}
	return d.exporter.ExportRun(ctx, rec)
}

// exportModel fetches the artifact at delivery time instead of holding the
// blob in the queue. A model demoted between the run and the delivery is
// simply gone, not an error.
func (d *Daemon) exportModel(ctx context.Context, data any) error {
	tag, ok := data.(string)
	if !ok {
		return errors.Newf("model artifact export carries %T, want string", data).
			Component("daemon").
			Category(errors.CategoryState).
			Build()
	}
	m, err := d.store.GetActiveModel(tag)
	if err != nil {
		return err
	}
	if m == nil {
		d.log.Warn("Promoted model vanished before export", "tag", tag)
		return nil
	}
	return d.exporter.ExportModel(ctx, m)
}
