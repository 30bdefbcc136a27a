package logger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"
)

// GormLogger routes GORM output into a module logger. Every statement is
// logged at TRACE. Slow statements and failures are raised to WARN, except
// ErrRecordNotFound, which is how a cache miss looks.
type GormLogger struct {
	log  Logger
	slow time.Duration
}

// NewGormLogger returns a GORM logger writing to log. A zero slow threshold
// never flags statements as slow.
func NewGormLogger(log Logger, slow time.Duration) *GormLogger {
	if log == nil {
		log = NewSlogLogger(nil, LogLevelError, nil)
	}
	return &GormLogger{log: log, slow: slow}
}

// LogMode is a no-op; levels come from the logging config.
func (g *GormLogger) LogMode(gorm_logger.LogLevel) gorm_logger.Interface { return g }

func (g *GormLogger) Info(_ context.Context, msg string, args ...any) {
	g.log.Debug(fmt.Sprintf(msg, args...))
}

func (g *GormLogger) Warn(_ context.Context, msg string, args ...any) {
	g.log.Warn(fmt.Sprintf(msg, args...))
}

func (g *GormLogger) Error(_ context.Context, msg string, args ...any) {
	g.log.Error(fmt.Sprintf(msg, args...))
}

func (g *GormLogger) Trace(_ context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	took := time.Since(begin)
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound)

	level, msg := LogLevelTrace, "sql statement"
	switch {
	case failed:
		level, msg = LogLevelWarn, "sql statement failed"
	case g.slow > 0 && took > g.slow:
		level, msg = LogLevelWarn, "slow sql statement"
	}

	sql, rows := fc()
	fields := []Field{String("sql", sql), Int64("rows", rows), Duration("took", took)}
	if failed {
		fields = append(fields, Error(err))
	}
	g.log.Log(level, msg, fields...)
}
