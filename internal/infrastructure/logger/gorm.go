package logger

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

// SQLLogger routes GORM statements to zap. Each statement carries the request
// and tenant found in its context, so a query issued for one lender can be
// traced back to the request that ran it.
type SQLLogger struct {
	log       *zap.Logger
	level     gormlogger.LogLevel
	slowQuery time.Duration
}

var _ gormlogger.Interface = (*SQLLogger)(nil)

// NewSQLLogger builds a GORM logger at the named level ("silent", "error",
// "warn", "info"). Statements slower than slowQuery are logged at warn; zero
// disables slow-query reporting.
func NewSQLLogger(log *zap.Logger, level string, slowQuery time.Duration) *SQLLogger {
	return &SQLLogger{
		log:       log.Named("sql"),
		level:     ParseSQLLevel(level),
		slowQuery: slowQuery,
	}
}

// ParseSQLLevel maps a config level onto GORM's. "debug" is treated as info;
// anything unknown falls back to warn.
func ParseSQLLevel(level string) gormlogger.LogLevel {
	switch level {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info", "debug":
		return gormlogger.Info
	}
	return gormlogger.Warn
}

func (l *SQLLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *l
	cp.level = level
	return &cp
}

func (l *SQLLogger) Info(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Info {
		l.log.Sugar().Infof(msg, args...)
	}
}

func (l *SQLLogger) Warn(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Warn {
		l.log.Sugar().Warnf(msg, args...)
	}
}

func (l *SQLLogger) Error(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Error {
		l.log.Sugar().Errorf(msg, args...)
	}
}

// Trace logs one statement. Not-found lookups are expected in repository
// code and are never logged as errors.
func (l *SQLLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)

	var (
		msg string
		lvl gormlogger.LogLevel
	)
	switch {
	case err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound):
		msg, lvl = "SQL failed", gormlogger.Error
	case l.slowQuery > 0 && elapsed > l.slowQuery:
		msg, lvl = "Slow SQL", gormlogger.Warn
	default:
		msg, lvl = "SQL", gormlogger.Info
	}
	if l.level < lvl {
		return
	}

	stmt, rows := fc()
	fields := l.statementFields(ctx, stmt, rows, elapsed)
	switch lvl {
	case gormlogger.Error:
		l.log.Error(msg, append(fields, zap.Error(err))...)
	case gormlogger.Warn:
		l.log.Warn(msg, append(fields, zap.Duration("threshold", l.slowQuery))...)
	default:
		l.log.Debug(msg, fields...)
	}
}

func (l *SQLLogger) statementFields(ctx context.Context, stmt string, rows int64, elapsed time.Duration) []zap.Field {
	fields := make([]zap.Field, 0, 5)
	fields = append(fields,
		zap.String("sql", stmt),
		zap.Int64("rows", rows),
		zap.Duration("elapsed", elapsed),
	)
	if id := GetRequestID(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if id := GetTenantID(ctx); id != "" {
		fields = append(fields, zap.String("tenant_id", id))
	}
	return fields
}
