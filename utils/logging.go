// Package utils provides the logging, validation, debugging and dataset helpers
// shared by the evaluation engine and the optimizers.
package utils

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

type LogLevel int

const (
	LogLevelOff LogLevel = iota
	LogLevelError
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
)

// Logger is the leveled, key/value logger every component accepts.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
	SetLevel(level LogLevel)
}

// DefaultLogger writes through log/slog. The level can be changed while
// evaluation workers are logging.
type DefaultLogger struct {
	logger *slog.Logger
	level  atomic.Int32
}

func slogLevel(level LogLevel) slog.Level {
	switch level {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelInfo:
		return slog.LevelInfo
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a text logger on stderr.
func NewLogger(level LogLevel) *DefaultLogger {
	return NewLoggerWithWriter(level, os.Stderr)
}

// NewLoggerWithWriter creates a text logger that writes to w.
func NewLoggerWithWriter(level LogLevel, w io.Writer) *DefaultLogger {
	// The handler accepts everything; filtering happens against the atomic level.
	opts := &slog.HandlerOptions{Level: slog.LevelDebug}
	l := &DefaultLogger{logger: slog.New(slog.NewTextHandler(w, opts))}
	l.level.Store(int32(level))
	return l
}

func (l *DefaultLogger) SetLevel(level LogLevel) {
	l.level.Store(int32(level))
}

func (l *DefaultLogger) enabled(level LogLevel) bool {
	return LogLevel(l.level.Load()) >= level
}

func (l *DefaultLogger) Debug(msg string, keysAndValues ...any) {
	if l.enabled(LogLevelDebug) {
		l.logger.Debug(msg, keysAndValues...)
	}
}

func (l *DefaultLogger) Info(msg string, keysAndValues ...any) {
	if l.enabled(LogLevelInfo) {
		l.logger.Info(msg, keysAndValues...)
	}
}

func (l *DefaultLogger) Warn(msg string, keysAndValues ...any) {
	if l.enabled(LogLevelWarn) {
		l.logger.Warn(msg, keysAndValues...)
	}
}

func (l *DefaultLogger) Error(msg string, keysAndValues ...any) {
	if l.enabled(LogLevelError) {
		l.logger.Error(msg, keysAndValues...)
	}
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}
func (NopLogger) SetLevel(LogLevel)    {}

func (l LogLevel) String() string {
	if l < LogLevelOff || l > LogLevelDebug {
		return fmt.Sprintf("LogLevel(%d)", int(l))
	}
	return [...]string{"OFF", "ERROR", "WARN", "INFO", "DEBUG"}[l]
}

func (l LogLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *LogLevel) UnmarshalText(text []byte) error {
	switch strings.ToUpper(strings.TrimSpace(string(text))) {
	case "OFF":
		*l = LogLevelOff
	case "ERROR":
		*l = LogLevelError
	case "WARN", "WARNING":
		*l = LogLevelWarn
	case "INFO":
		*l = LogLevelInfo
	case "DEBUG":
		*l = LogLevelDebug
	default:
		return fmt.Errorf("invalid log level: %s", string(text))
	}
	return nil
}
