package schedule

import (
	"go.temporal.io/sdk/log"
	"go.uber.org/zap"
)

// zapLogger routes Temporal SDK logs through zap.
type zapLogger struct {
	s *zap.SugaredLogger
}

// NewLogger adapts a zap logger to the Temporal logger interface.
func NewLogger(l *zap.Logger) log.Logger {
	return &zapLogger{s: l.Sugar()}
}

func (l *zapLogger) Debug(msg string, keyvals ...any) { l.s.Debugw(msg, keyvals...) }

func (l *zapLogger) Info(msg string, keyvals ...any) { l.s.Infow(msg, keyvals...) }

func (l *zapLogger) Warn(msg string, keyvals ...any) { l.s.Warnw(msg, keyvals...) }

func (l *zapLogger) Error(msg string, keyvals ...any) { l.s.Errorw(msg, keyvals...) }
