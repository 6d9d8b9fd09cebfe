package logger

import (
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// CronLogger adapts zap to the robfig/cron logging interface.
// Engine chatter (wake, run) is demoted to debug.
type CronLogger struct {
	log *zap.SugaredLogger
}

func NewCronLogger(base *zap.Logger) *CronLogger {
	if base == nil {
		base = zap.L()
	}
	return &CronLogger{log: base.Named("cron").Sugar()}
}

func (l *CronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw("cron."+msg, keysAndValues...)
}

func (l *CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw("cron."+msg, append(keysAndValues, "error", err)...)
}

var _ cron.Logger = (*CronLogger)(nil)
