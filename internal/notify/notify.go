// Package notify pushes run and drift alerts to operator channels through
// shoutrrr service URLs. Messages below the configured severity floor are
// dropped, so quiet passes never page anyone.
package notify

import (
	"context"
	"fmt"
	"io"
	stdlog "log"
	"log/slog"
	"slices"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/tphakala/foresight-go/internal/conf"
	"github.com/tphakala/foresight-go/internal/datastore"
	"github.com/tphakala/foresight-go/internal/errors"
	"github.com/tphakala/foresight-go/internal/logging"
)

// sendTimeout bounds one delivery attempt across all configured services.
const sendTimeout = 10 * time.Second

// pushSender is the delivery surface, satisfied by shoutrrr's router.
type pushSender interface {
	Send(message string, params *stypes.Params) []error
}

// Notifier sends severity-filtered notifications. A disabled Notifier is
// valid and drops everything silently.
type Notifier struct {
	settings *conf.Settings
	sender   pushSender
	log      *slog.Logger
}

// NewNotifier builds a Notifier from settings. When notifications are
// enabled, every configured URL must parse or construction fails.
func NewNotifier(settings *conf.Settings) (*Notifier, error) {
	log := logging.ForService("notify")
	if log == nil {
		log = slog.Default().With("service", "notify")
	}

	n := &Notifier{settings: settings, log: log}
	if !settings.Notification.Enabled {
		return n, nil
	}

	urls := settings.Notification.Urls
	if len(urls) == 0 {
		return nil, errors.Newf("notifications enabled but no service URLs configured").
			Component("notify").
			Category(errors.CategoryConfiguration).
			Build()
	}

	sender, err := shoutrrr.CreateSender(slices.Clone(urls)...)
	if err != nil {
		// do not echo the URLs themselves, they may carry credentials
		return nil, errors.New(err).
			Component("notify").
			Category(errors.CategoryConfiguration).
			Context("url_count", len(urls)).
			Build()
	}
	sender.Timeout = sendTimeout
	sender.SetLogger(stdlog.New(io.Discard, "", 0))
	n.sender = sender

	return n, nil
}

// Enabled reports whether messages can actually be delivered.
func (n *Notifier) Enabled() bool {
	return n.sender != nil
}

// Send pushes one message when severity clears the configured floor.
func (n *Notifier) Send(ctx context.Context, severity, title, message string) error {
	if n.sender == nil {
		return nil
	}
	minSeverity := n.settings.Notification.MinSeverity
	if !conf.SeverityAtLeast(severity, minSeverity) {
		n.log.Debug("Notification below severity floor",
			"severity", severity,
			"min_severity", minSeverity,
		)
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	params := stypes.Params{}
	if title != "" {
		params.SetTitle(title)
	}
	for _, err := range n.sender.Send(message, &params) {
		if err != nil {
			return errors.New(err).
				Component("notify").
				Category(errors.CategoryNotification).
				Context("severity", severity).
				Build()
		}
	}

	n.log.Info("Notification sent", "severity", severity, "title", title)
	return nil
}

// RunCompleted notifies about one finished orchestration pass, scaled to how
// badly the pass went.
func (n *Notifier) RunCompleted(ctx context.Context, rec *datastore.RunRecord) error {
	return n.Send(ctx, runSeverity(rec), runTitle(rec), runMessage(rec))
}

// DriftDetected notifies about one drift check at the check's own severity,
// so the floor in settings decides which findings reach an operator.
func (n *Notifier) DriftDetected(ctx context.Context, rec *datastore.DriftRecord) error {
	title := fmt.Sprintf("Data drift on %s", rec.Tag)
	message := fmt.Sprintf("%s drift on %s: PSI %.3f, KS p-value %.4f, JS distance %.3f (%d current vs %d reference samples)",
		rec.Severity, rec.Tag, rec.PSI, rec.KSPValue, rec.JSDivergence,
		rec.CurrentSamples, rec.ReferenceSamples)
	return n.Send(ctx, rec.Severity, title, message)
}

func runSeverity(rec *datastore.RunRecord) string {
	switch {
	case rec.Aborted:
		return "high"
	case rec.Failed > 0:
		return "medium"
	default:
		return "low"
	}
}

func runTitle(rec *datastore.RunRecord) string {
	if rec.Aborted {
		return "Retraining pass aborted"
	}
	return "Retraining pass completed"
}

func runMessage(rec *datastore.RunRecord) string {
	if rec.Aborted {
		return fmt.Sprintf("Run %s aborted: %s", rec.RunID, rec.AbortReason)
	}
	return fmt.Sprintf("Run %s: %d/%d entities succeeded, %d promoted, %d skipped, %d failed in %s",
		rec.RunID, rec.Succeeded, rec.Attempted, rec.Promoted, rec.Skipped,
		rec.Failed, rec.FinishedAt.Sub(rec.StartedAt).Round(time.Second))
}
