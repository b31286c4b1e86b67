// Package daemon assembles the full service: datastore, training
// orchestrator, forecast pipeline, drift monitor, delivery side effects and
// the HTTP surfaces, wired together under a single lifecycle with an ordered
// shutdown.
package daemon

import (
	"context"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/tphakala/foresight-go/internal/api"
	"github.com/tphakala/foresight-go/internal/buildinfo"
	"github.com/tphakala/foresight-go/internal/conf"
	"github.com/tphakala/foresight-go/internal/datastore"
	"github.com/tphakala/foresight-go/internal/drift"
	"github.com/tphakala/foresight-go/internal/errors"
	"github.com/tphakala/foresight-go/internal/export"
	"github.com/tphakala/foresight-go/internal/forecast"
	"github.com/tphakala/foresight-go/internal/jobqueue"
	"github.com/tphakala/foresight-go/internal/logging"
	"github.com/tphakala/foresight-go/internal/mqtt"
	"github.com/tphakala/foresight-go/internal/notify"
	"github.com/tphakala/foresight-go/internal/observability"
	"github.com/tphakala/foresight-go/internal/orchestrator"
	"github.com/tphakala/foresight-go/internal/scheduler"
	"github.com/tphakala/foresight-go/internal/telemetry"
)

// Shutdown budgets. The delivery queue gets the longest slice because a job
// may be mid-publish with retries pending.
const (
	apiShutdownTimeout   = 10 * time.Second
	queueShutdownTimeout = 30 * time.Second
)

// Interval task offsets, staggered so the forecast generator, the backfill
// updater and the hourly aggregation do not all hit the database at the same
// tick.
const (
	backfillOffset    = time.Minute
	aggregationOffset = 3 * time.Minute
	driftOffset       = 5 * time.Minute
)

// Daemon owns every long-lived component of the service. Construct with New,
// then Run blocks until the context is cancelled or a termination signal
// arrives.
type Daemon struct {
	settings *conf.Settings
	log      *slog.Logger

	store   datastore.Interface
	metrics *observability.Metrics
	orch    *orchestrator.Orchestrator
	sched   *scheduler.Scheduler
	queue   *jobqueue.JobQueue

	generator  *forecast.Generator
	updater    *forecast.Updater
	aggregator *forecast.Aggregator
	monitor    *drift.Monitor

	mqttClient mqtt.Client
	publisher  *mqtt.Publisher
	notifier   *notify.Notifier
	exporter   *export.Exporter

	apiServer *api.Controller
	endpoint  *observability.Endpoint

	// runCtx is the lifetime context of Run. API-launched training passes
	// run on it so shutdown cancellation reaches them.
	runCtx context.Context
	wg     sync.WaitGroup
	quit   chan struct{}
}

// New builds the component graph without touching the network or the
// filesystem beyond the audit log. Configuration mistakes surface here, not
// minutes later when a scheduled task first fires.
func New(settings *conf.Settings) (*Daemon, error) {
	if settings == nil {
		return nil, errors.Newf("daemon requires settings").
			Component("daemon").
			Category(errors.CategoryConfiguration).
			Build()
	}

	log := logging.ForService("daemon")
	if log == nil {
		log = slog.Default().With("service", "daemon")
	}

	m, err := observability.NewMetrics()
	if err != nil {
		return nil, err
	}

	store, err := datastore.New(settings)
	if err != nil {
		return nil, err
	}

	orch, err := orchestrator.New(settings, store)
	if err != nil {
		return nil, err
	}
	orch.SetMetrics(m.Orchestrator)

	notifier, err := notify.NewNotifier(settings)
	if err != nil {
		return nil, err
	}
	exporter, err := export.NewExporter(settings)
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		settings: settings,
		log:      log,
		store:    store,
		metrics:  m,
		orch:     orch,
		sched:    scheduler.New(),
		queue:    jobqueue.NewJobQueue(),
		notifier: notifier,
		exporter: exporter,
		quit:     make(chan struct{}),
	}

	d.sched.SetMetrics(m.Scheduler)

	d.generator = forecast.NewGenerator(settings, store)
	d.generator.SetMetrics(m.Forecast)
	d.generator.SetPublishFunc(d.dispatchForecast)
	d.updater = forecast.NewUpdater(settings, store)
	d.updater.SetMetrics(m.Forecast)
	d.aggregator = forecast.NewAggregator(settings, store)
	d.aggregator.SetMetrics(m.Forecast)

	d.monitor = drift.NewMonitor(settings, store)
	d.monitor.SetMetrics(m.Drift)
	d.monitor.SetAlertFunc(d.dispatchDriftAlert)

	if settings.MQTT.Enabled {
		d.mqttClient = mqtt.NewClient(settings, m.MQTT)
		d.publisher = mqtt.NewPublisher(settings, d.mqttClient)
	}

	if settings.WebServer.Enabled {
		d.apiServer = api.New(settings, store, &runLauncher{daemon: d})
	}

	return d, nil
}

// Run opens the datastore, starts every enabled component, and blocks until
// ctx is cancelled or SIGINT/SIGTERM arrives. It always attempts an ordered
// shutdown before returning.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	d.runCtx = ctx

	if err := telemetry.Init(d.settings); err != nil {
		return err
	}
	defer telemetry.Flush()

	if err := d.store.Open(); err != nil {
		return err
	}
	defer func() {
		if err := d.store.Close(); err != nil {
			d.log.Error("Closing datastore failed", "error", err)
		}
	}()

	d.log.Info("Service starting",
		"version", buildinfo.Version,
		"training_schedule", d.settings.Training.Schedule,
		"forecast", d.settings.Forecast.Enabled,
		"drift", d.settings.Drift.Enabled,
		"mqtt", d.settings.MQTT.Enabled,
	)

	// Everything that can fail on configuration happens before the first
	// goroutine starts, so an error return never leaves components running.
	if err := d.registerTasks(); err != nil {
		return err
	}
	if d.settings.Telemetry.Enabled {
		endpoint, err := observability.NewEndpoint(d.settings, d.metrics)
		if err != nil {
			return err
		}
		d.endpoint = endpoint
	}

	// Deliveries keep their own lifetime: a termination signal must not
	// cancel a notification that is already halfway out the door. The queue
	// is stopped explicitly in shutdown.
	d.queue.StartWithContext(context.WithoutCancel(ctx))

	if d.mqttClient != nil {
		d.wg.Go(func() { d.connectBroker(ctx) })
	}

	d.sched.Start(ctx)

	if d.apiServer != nil {
		d.wg.Go(func() {
			if err := d.apiServer.Start(); err != nil {
				d.log.Error("API server failed", "error", err)
			}
		})
	}

	if d.endpoint != nil {
		d.endpoint.Start(&d.wg, d.quit)
	}

	if d.settings.Training.RunOnStart {
		d.wg.Go(func() {
			d.log.Info("Startup training pass requested")
			if err := d.runTrainingPass(ctx); err != nil {
				d.log.Error("Startup training pass failed", "error", err)
			}
		})
	}

	d.log.Info("Service ready")

	<-ctx.Done()
	d.shutdown()
	return nil
}

// registerTasks wires the periodic work into the scheduler. The training
// pass runs daily at the configured wall-clock time; everything else runs on
// staggered intervals.
func (d *Daemon) registerTasks() error {
	if err := d.sched.AddDaily("training", d.settings.Training.Schedule, d.runTrainingPass); err != nil {
		return err
	}

	if d.settings.Forecast.Enabled {
		f := d.settings.Forecast
		if err := d.sched.AddInterval("forecast", f.Interval, 0, d.generator.GenerateAll); err != nil {
			return err
		}
		if f.Updater.Enabled {
			if err := d.sched.AddInterval("backfill", f.Updater.Interval, stagger(backfillOffset, f.Updater.Interval), d.updater.Run); err != nil {
				return err
			}
		}
		if f.Aggregation.Enabled {
			if err := d.sched.AddInterval("aggregation", f.Aggregation.Interval, stagger(aggregationOffset, f.Aggregation.Interval), d.aggregator.Run); err != nil {
				return err
			}
		}
	}

	if d.settings.Drift.Enabled {
		if err := d.sched.AddInterval("drift", d.settings.Drift.Interval, stagger(driftOffset, d.settings.Drift.Interval), d.monitor.Sweep); err != nil {
			return err
		}
	}

	return nil
}

// stagger returns offset unless it would violate the scheduler's
// offset-within-interval rule, in which case the task runs unstaggered.
func stagger(offset, interval time.Duration) time.Duration {
	if offset >= interval {
		return 0
	}
	return offset
}

// connectBroker attempts the initial MQTT connection in the background so a
// slow or absent broker does not hold up startup. The client reconnects on
// its own after a lost connection, and queued publishes retry through the
// delivery queue.
func (d *Daemon) connectBroker(ctx context.Context) {
	if err := d.mqttClient.Connect(ctx); err != nil {
		d.log.Warn("Initial MQTT connection failed, deliveries will retry",
			"error", err)
	}
}

// runTrainingPass executes one orchestration pass and dispatches the
// delivery side effects for its outcome. A pass already in progress is not
// an error for the scheduler, only a log line.
func (d *Daemon) runTrainingPass(ctx context.Context) error {
	summary, err := d.orch.Run(ctx, nil)
	if errors.Is(err, orchestrator.ErrRunInProgress) {
		d.log.Warn("Training pass already running, skipping this start")
		return nil
	}
	if summary != nil {
		d.dispatchRunEffects(summary)
	}
	return err
}

// shutdown stops components in dependency order: stop taking new work, drain
// deliveries, then release connections. Failures are logged, never returned;
// shutdown always runs to the end.
func (d *Daemon) shutdown() {
	d.log.Info("Shutting down")

	d.sched.Stop()

	if d.apiServer != nil {
		sctx, cancel := context.WithTimeout(context.Background(), apiShutdownTimeout)
		if err := d.apiServer.Shutdown(sctx); err != nil {
			d.log.Error("API server shutdown failed", "error", err)
		}
		cancel()
	}

	close(d.quit)

	if err := d.queue.StopWithTimeout(queueShutdownTimeout); err != nil {
		d.log.Warn("Delivery queue did not stop cleanly", "error", err)
	}
	stats := d.queue.GetStats()
	d.log.Info("Delivery queue final state",
		"total", stats.TotalJobs,
		"successful", stats.SuccessfulJobs,
		"failed", stats.FailedJobs,
		"dropped", stats.DroppedJobs,
		"pending", stats.PendingJobs,
	)

	if d.mqttClient != nil {
		d.mqttClient.Disconnect()
	}

	if err := d.orch.Close(); err != nil {
		d.log.Error("Closing audit log failed", "error", err)
	}

	d.wg.Wait()
	d.log.Info("Shutdown complete")
}
