package conf

import (
	"fmt"
	"strconv"
	"strings"
)

// severityRank orders alert severities from least to most severe. The empty
// entry lets "none" act as "never alert".
var severityRank = map[string]int{
	"none":     0,
	"low":      1,
	"medium":   2,
	"high":     3,
	"critical": 4,
}

// ValidSeverity reports whether s is a known severity name.
func ValidSeverity(s string) bool {
	_, ok := severityRank[strings.ToLower(s)]
	return ok
}

// SeverityAtLeast reports whether severity is at or above threshold.
func SeverityAtLeast(severity, threshold string) bool {
	return severityRank[strings.ToLower(severity)] >= severityRank[strings.ToLower(threshold)]
}

// ValidateSettings checks the loaded settings for configuration errors that
// would only surface later at runtime.
func ValidateSettings(s *Settings) error {
	var errs []string

	if s.Main.Name == "" {
		errs = append(errs, "main.name must not be empty")
	}

	if !s.Database.SQLite.Enabled && !s.Database.MySQL.Enabled {
		errs = append(errs, "one of database.sqlite or database.mysql must be enabled")
	}
	if s.Database.SQLite.Enabled && s.Database.MySQL.Enabled {
		errs = append(errs, "only one database backend may be enabled")
	}
	if s.Database.SQLite.Enabled && s.Database.SQLite.Path == "" {
		errs = append(errs, "database.sqlite.path must not be empty")
	}
	if s.Database.MySQL.Enabled {
		if s.Database.MySQL.Host == "" || s.Database.MySQL.Database == "" {
			errs = append(errs, "database.mysql.host and database.mysql.database are required")
		}
	}

	if err := validateSchedule(s.Training.Schedule); err != nil {
		errs = append(errs, err.Error())
	}
	if s.Training.LookbackDays < 1 {
		errs = append(errs, "training.lookbackdays must be at least 1")
	}
	if s.Training.MinSamples < 1 {
		errs = append(errs, "training.minsamples must be at least 1")
	}
	if s.Training.Workers < 1 {
		errs = append(errs, "training.workers must be at least 1")
	}
	if s.Training.EntityTimeout <= 0 {
		errs = append(errs, "training.entitytimeout must be positive")
	}
	if len(s.Training.Kinds) == 0 {
		errs = append(errs, "training.kinds must list at least one model kind")
	}
	if s.Training.HoldoutFraction <= 0 || s.Training.HoldoutFraction >= 0.5 {
		errs = append(errs, "training.holdoutfraction must be in (0, 0.5)")
	}
	if s.Training.MinImprovement < 0 || s.Training.MinImprovement >= 1 {
		errs = append(errs, "training.minimprovement must be in [0, 1)")
	}

	if s.Forecast.Enabled {
		if s.Forecast.Interval <= 0 {
			errs = append(errs, "forecast.interval must be positive")
		}
		if len(s.Forecast.Horizons) == 0 {
			errs = append(errs, "forecast.horizons must list at least one horizon")
		}
		for _, h := range s.Forecast.Horizons {
			if h <= 0 {
				errs = append(errs, fmt.Sprintf("forecast horizon %d must be positive", h))
			}
		}
		if s.Forecast.Confidence <= 0 || s.Forecast.Confidence >= 1 {
			errs = append(errs, "forecast.confidence must be in (0, 1)")
		}
	}

	if s.Drift.Enabled {
		if s.Drift.CurrentWindow <= 0 || s.Drift.ReferenceDays < 1 {
			errs = append(errs, "drift.currentwindow and drift.referencedays must be positive")
		}
		if !ValidSeverity(s.Drift.AlertSeverity) {
			errs = append(errs, fmt.Sprintf("drift.alertseverity %q is not a valid severity", s.Drift.AlertSeverity))
		}
	}

	if s.MQTT.Enabled && s.MQTT.Broker == "" {
		errs = append(errs, "mqtt.broker must be set when mqtt is enabled")
	}
	if s.Notification.Enabled && len(s.Notification.Urls) == 0 {
		errs = append(errs, "notification.urls must list at least one URL when enabled")
	}
	if s.Sentry.Enabled && s.Sentry.DSN == "" {
		errs = append(errs, "sentry.dsn must be set when sentry is enabled")
	}

	if s.Export.Enabled {
		switch s.Export.Type {
		case "local":
			if s.Export.Path == "" {
				errs = append(errs, "export.path must be set for local export")
			}
		case "ftp":
			if s.Export.FTP.Host == "" {
				errs = append(errs, "export.ftp.host must be set for ftp export")
			}
		case "sftp":
			if s.Export.SFTP.Host == "" {
				errs = append(errs, "export.sftp.host must be set for sftp export")
			}
		default:
			errs = append(errs, fmt.Sprintf("export.type %q is not one of local, ftp, sftp", s.Export.Type))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}

// validateSchedule checks a daily "HH:MM" schedule string.
func validateSchedule(schedule string) error {
	parts := strings.Split(schedule, ":")
	if len(parts) != 2 {
		return fmt.Errorf("training.schedule %q is not in HH:MM form", schedule)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return fmt.Errorf("training.schedule %q has an invalid hour", schedule)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return fmt.Errorf("training.schedule %q has an invalid minute", schedule)
	}
	return nil
}

// ParseSchedule returns the hour and minute of a validated "HH:MM" schedule.
func ParseSchedule(schedule string) (hour, minute int, err error) {
	if err := validateSchedule(schedule); err != nil {
		return 0, 0, err
	}
	parts := strings.Split(schedule, ":")
	hour, _ = strconv.Atoi(parts[0])
	minute, _ = strconv.Atoi(parts[1])
	return hour, minute, nil
}
