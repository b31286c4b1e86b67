package datastore

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// slowQueryThreshold marks queries worth a warning in the logs.
const slowQueryThreshold = 200 * time.Millisecond

// gormSlogLogger adapts GORM's logger interface onto the datastore slog
// logger. Record-not-found errors are expected control flow and not logged.
type gormSlogLogger struct {
	level gormlogger.LogLevel
}

func newGormLogger(debug bool) gormlogger.Interface {
	level := gormlogger.Warn
	if debug {
		level = gormlogger.Info
	}
	return &gormSlogLogger{level: level}
}

func (l *gormSlogLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	return &gormSlogLogger{level: level}
}

func (l *gormSlogLogger) Info(_ context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Info {
		serviceLogger().Info(msg, "data", data)
	}
}

func (l *gormSlogLogger) Warn(_ context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Warn {
		serviceLogger().Warn(msg, "data", data)
	}
}

func (l *gormSlogLogger) Error(_ context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Error {
		serviceLogger().Error(msg, "data", data)
	}
}

func (l *gormSlogLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		serviceLogger().Error("Query failed", "error", err, "sql", sql, "rows", rows, "elapsed", elapsed)
	case elapsed > slowQueryThreshold:
		sql, rows := fc()
		serviceLogger().Warn("Slow query", "sql", sql, "rows", rows, "elapsed", elapsed)
	case l.level >= gormlogger.Info:
		sql, rows := fc()
		serviceLogger().Debug("Query", "sql", sql, "rows", rows, "elapsed", elapsed)
	}
}
