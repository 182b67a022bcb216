package audit

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm/logger"
)

// logrusLogger adapts a logrus.Logger to gorm's logger.Interface, so sqlite
// query activity lands in the same structured log as everything else.
type logrusLogger struct {
	log           *logrus.Entry
	level         logger.LogLevel
	slowThreshold time.Duration
}

func newLogrusLogger(log *logrus.Logger) *logrusLogger {
	return &logrusLogger{
		log:           log.WithField("module", "gorm"),
		level:         logger.LogLevel(log.Level),
		slowThreshold: 200 * time.Millisecond,
	}
}

func (l *logrusLogger) LogMode(level logger.LogLevel) logger.Interface {
	newLogger := *l
	newLogger.level = level
	return &newLogger
}

func (l *logrusLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Info {
		l.log.WithContext(ctx).Infof(msg, args...)
	}
}

func (l *logrusLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Warn {
		l.log.WithContext(ctx).Warnf(msg, args...)
	}
}

func (l *logrusLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Error {
		l.log.WithContext(ctx).Errorf(msg, args...)
	}
}

func (l *logrusLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.level <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()

	entry := l.log.WithContext(ctx).WithFields(logrus.Fields{
		"elapsed": elapsed,
		"rows":    rows,
		"sql":     sql,
	})

	switch {
	case err != nil && l.level >= logger.Error:
		entry.WithError(err).Error("gorm sql error")
	case l.slowThreshold != 0 && elapsed > l.slowThreshold && l.level >= logger.Warn:
		entry.Warn("gorm slow sql")
	case l.level >= logger.Info:
		entry.Info("gorm sql")
	}
}
