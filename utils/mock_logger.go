package utils

import (
	"fmt"
	"strings"
	"sync"
)

// LogMessage is one entry captured by MockLogger.
type LogMessage struct {
	Level   string
	Message string
	Args    []any
}

// MockLogger records every message. It is safe for use from evaluation workers.
type MockLogger struct {
	mu       sync.Mutex
	messages []LogMessage
	level    LogLevel
}

func NewMockLogger() *MockLogger {
	return &MockLogger{level: LogLevelDebug}
}

func (m *MockLogger) record(level LogLevel, name, msg string, args []any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.level >= level {
		m.messages = append(m.messages, LogMessage{Level: name, Message: msg, Args: args})
	}
}

func (m *MockLogger) Debug(msg string, args ...any) { m.record(LogLevelDebug, "DEBUG", msg, args) }
func (m *MockLogger) Info(msg string, args ...any)  { m.record(LogLevelInfo, "INFO", msg, args) }
func (m *MockLogger) Warn(msg string, args ...any)  { m.record(LogLevelWarn, "WARN", msg, args) }
func (m *MockLogger) Error(msg string, args ...any) { m.record(LogLevelError, "ERROR", msg, args) }

func (m *MockLogger) SetLevel(level LogLevel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.level = level
}

// Messages returns a copy of all recorded messages.
func (m *MockLogger) Messages() []LogMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]LogMessage{}, m.messages...)
}

// Count returns how many messages were recorded at the given level name ("WARN", "INFO", ...).
func (m *MockLogger) Count(level string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, msg := range m.messages {
		if msg.Level == level {
			n++
		}
	}
	return n
}

// HasMessage checks if a message with the given text was logged
func (m *MockLogger) HasMessage(text string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages {
		if msg.Message == text {
			return true
		}
	}
	return false
}

func (m *MockLogger) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = nil
}

func (m *MockLogger) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var b strings.Builder
	for _, msg := range m.messages {
		fmt.Fprintf(&b, "[%s] %s %v\n", msg.Level, msg.Message, msg.Args)
	}
	return b.String()
}
