// Package telemetry provides opt-in error reporting via Sentry. Nothing
// leaves the process unless the user explicitly enables it and supplies
// their own DSN, and every event is scrubbed of URLs, credentials, and host
// identity before upload.
package telemetry

import (
	"log/slog"
	"runtime"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/tphakala/foresight-go/internal/buildinfo"
	"github.com/tphakala/foresight-go/internal/conf"
	"github.com/tphakala/foresight-go/internal/errors"
	"github.com/tphakala/foresight-go/internal/logging"
)

const flushTimeout = 3 * time.Second

var initialized bool

// Init starts the Sentry client and installs the reporter that the errors
// package hands high priority errors to. With sentry disabled in settings
// this is a no-op and no reporter is installed.
func Init(settings *conf.Settings) error {
	log := serviceLogger()

	if !settings.Sentry.Enabled {
		log.Info("Error telemetry is disabled (opt-in)")
		return nil
	}
	if settings.Sentry.DSN == "" {
		return errors.Newf("sentry is enabled but no DSN is configured").
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:        settings.Sentry.DSN,
		SampleRate: 1.0,
		// Hostname and stack traces stay local. Events carry only the
		// scrubbed message, component, and category.
		AttachStacktrace: false,
		ServerName:       "",
		Environment:      "production",
		Release:          "foresight-go@" + buildinfo.Version,
		BeforeSend:       scrubEvent,
	})
	if err != nil {
		return errors.New(err).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Context("operation", "sentry_init").
			Build()
	}

	configureScope()
	errors.SetTelemetryReporter(&sentryReporter{})
	initialized = true

	log.Info("Error telemetry initialized", "release", "foresight-go@"+buildinfo.Version)
	return nil
}

func configureScope() {
	systemID := resolveSystemID()
	sentry.ConfigureScope(func(scope *sentry.Scope) {
		if systemID != "" {
			scope.SetTag("system_id", systemID)
		}
		scope.SetContext("platform", map[string]any{
			"os":         runtime.GOOS,
			"arch":       runtime.GOARCH,
			"num_cpu":    runtime.NumCPU(),
			"go_version": runtime.Version(),
		})
	})
}

// resolveSystemID loads the persisted anonymous install ID, falling back to
// a session-only one when no config directory is writable.
func resolveSystemID() string {
	paths, err := conf.GetDefaultConfigPaths()
	if err == nil && len(paths) > 0 {
		if id, err := LoadOrCreateSystemID(paths[0]); err == nil {
			return id
		}
	}
	id, _ := GenerateSystemID()
	return id
}

// Flush drains pending events, bounded by flushTimeout. Called on shutdown.
func Flush() {
	if !initialized {
		return
	}
	sentry.Flush(flushTimeout)
}

func serviceLogger() *slog.Logger {
	if l := logging.ForService("telemetry"); l != nil {
		return l
	}
	return slog.Default().With("service", "telemetry")
}
