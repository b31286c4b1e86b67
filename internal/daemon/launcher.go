package daemon

import (
	"context"

	"github.com/tphakala/foresight-go/internal/conf"
	"github.com/tphakala/foresight-go/internal/datastore"
	"github.com/tphakala/foresight-go/internal/orchestrator"
)

// runLauncher exposes manual training passes to the API layer without
// handing it the whole Daemon.
type runLauncher struct {
	daemon *Daemon
}

// Running reports whether a training pass is active.
func (l *runLauncher) Running() bool {
	return l.daemon.orch.Running()
}

// Launch starts a training pass in the background. The running check gives
// the API a prompt conflict answer; the orchestrator's own run lock is what
// actually guarantees a single pass at a time.
func (l *runLauncher) Launch() error {
	d := l.daemon
	if d.orch.Running() {
		return orchestrator.ErrRunInProgress
	}

	d.wg.Go(func() {
		ctx := d.runCtx
		if ctx == nil {
			ctx = context.Background()
		}
		if err := d.runTrainingPass(ctx); err != nil {
			d.log.Error("Manual training pass failed", "error", err)
		}
	})
	return nil
}

// TrainOnce runs a single training pass end to end and returns its summary.
// It opens and closes its own datastore and audit log. Delivery side effects
// are not dispatched; the one-shot path reports to the terminal.
func TrainOnce(ctx context.Context, settings *conf.Settings, opts *orchestrator.RunOptions) (*orchestrator.Summary, error) {
	store, err := datastore.New(settings)
	if err != nil {
		return nil, err
	}
	if err := store.Open(); err != nil {
		return nil, err
	}
	defer func() { _ = store.Close() }()

	orch, err := orchestrator.New(settings, store)
	if err != nil {
		return nil, err
	}
	defer func() { _ = orch.Close() }()

	return orch.Run(ctx, opts)
}
