package hooks

import (
	"log/slog"
	"strings"

	"github.com/go-logr/logr"

	"github.com/Skryldev/imagefetch/core"
)

// LogrLogger adapts a logr.Logger to core.Logger.  Debug maps to V(1); Warn
// has no logr level of its own and is logged at V(0) with a "level" field.
type LogrLogger struct {
	log logr.Logger
}

// NewLogrLogger creates a logger backed by logr.  A zero logr.Logger discards.
func NewLogrLogger(l logr.Logger) *LogrLogger {
	if l.GetSink() == nil {
		l = logr.Discard()
	}
	return &LogrLogger{log: l}
}

func (l *LogrLogger) Debug(msg string, fields ...interface{}) {
	l.log.V(1).Info(msg, fields...)
}
func (l *LogrLogger) Info(msg string, fields ...interface{}) {
	l.log.Info(msg, fields...)
}
func (l *LogrLogger) Warn(msg string, fields ...interface{}) {
	l.log.Info(msg, append([]interface{}{"level", "warn"}, fields...)...)
}
func (l *LogrLogger) Error(msg string, fields ...interface{}) {
	l.log.Error(nil, msg, fields...)
}

// ParseLevel maps a config log level name to a slog.Level.  Unknown names
// select Info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

var _ core.Logger = (*LogrLogger)(nil)
