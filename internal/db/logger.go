package db

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gl "gorm.io/gorm/logger"
)

const slowQueryThreshold = 200 * time.Millisecond

// Logger routes gorm logs into zap. Record-not-found is expected by the
// repositories and is never logged as an error.
type Logger struct {
	log   *zap.Logger
	level gl.LogLevel
	slow  time.Duration
}

var _ gl.Interface = (*Logger)(nil)

// NewLogger creates a gorm logger at Warn level.
func NewLogger(log *zap.Logger) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Logger{log: log.Named("gorm"), level: gl.Warn, slow: slowQueryThreshold}
}

func (l *Logger) LogMode(level gl.LogLevel) gl.Interface {
	next := *l
	next.level = level
	return &next
}

func (l *Logger) Info(_ context.Context, msg string, data ...interface{}) {
	if l.level >= gl.Info {
		l.log.Sugar().Infof(msg, data...)
	}
}

func (l *Logger) Warn(_ context.Context, msg string, data ...interface{}) {
	if l.level >= gl.Warn {
		l.log.Sugar().Warnf(msg, data...)
	}
}

func (l *Logger) Error(_ context.Context, msg string, data ...interface{}) {
	if l.level >= gl.Error {
		l.log.Sugar().Errorf(msg, data...)
	}
}

func (l *Logger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gl.Silent {
		return
	}

	elapsed := time.Since(begin)
	switch {
	case err != nil && l.level >= gl.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		l.log.Error("query failed", zap.Error(err), zap.Duration("elapsed", elapsed), zap.Int64("rows", rows), zap.String("sql", sql))
	case l.slow != 0 && elapsed > l.slow && l.level >= gl.Warn:
		sql, rows := fc()
		l.log.Warn("slow query", zap.Duration("threshold", l.slow), zap.Duration("elapsed", elapsed), zap.Int64("rows", rows), zap.String("sql", sql))
	case l.level == gl.Info:
		sql, rows := fc()
		l.log.Debug("query", zap.Duration("elapsed", elapsed), zap.Int64("rows", rows), zap.String("sql", sql))
	}
}
