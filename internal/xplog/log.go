// Package xplog provides the SDK's structured logger: a thin wrapper over
// zap.SugaredLogger so every component logs structured fields instead of
// formatted strings. Wrap adapts any *zap.Logger; the orchestrator's
// Initialize always uses Default and takes no logger from the host.
package xplog

import (
	"sync"

	"go.uber.org/zap"
)

// Logger is the subset of zap.SugaredLogger the SDK relies on.
type Logger struct {
	s *zap.SugaredLogger
}

var (
	defaultOnce sync.Once
	defaultLog  *Logger
)

// Default returns a process-wide logger backed by a production zap config
// at info level, built lazily on first use.
func Default() *Logger {
	defaultOnce.Do(func() {
		base, err := zap.NewProduction()
		if err != nil {
			base = zap.NewNop()
		}
		defaultLog = Wrap(base)
	})
	return defaultLog
}

// Wrap adapts an existing *zap.Logger, e.g. one the host application
// already configured, for use by the SDK.
func Wrap(l *zap.Logger) *Logger {
	return &Logger{s: l.Sugar()}
}

// Nop returns a logger that discards everything, used in tests.
func Nop() *Logger {
	return Wrap(zap.NewNop())
}

func (l *Logger) Debugw(msg string, kv ...any) {
	if l == nil {
		return
	}
	l.s.Debugw(msg, kv...)
}

func (l *Logger) Infow(msg string, kv ...any) {
	if l == nil {
		return
	}
	l.s.Infow(msg, kv...)
}

func (l *Logger) Warnw(msg string, kv ...any) {
	if l == nil {
		return
	}
	l.s.Warnw(msg, kv...)
}

func (l *Logger) Errorw(msg string, kv ...any) {
	if l == nil {
		return
	}
	l.s.Errorw(msg, kv...)
}

// Sync flushes any buffered log entries. Call during shutdown.
func (l *Logger) Sync() {
	if l == nil {
		return
	}
	_ = l.s.Sync()
}
