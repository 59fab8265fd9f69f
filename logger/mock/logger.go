package mocklogger

import (
	"github.com/erikmalm/streamworks/logger"
)

var _ logger.Logger = (*MockLogger)(nil)

type LogEntry struct {
	Level   logger.LogLevel
	Message string
	KV      []any
}

// MockLogger records every call, including those made through loggers
// returned by With(), into a single shared history.
type MockLogger struct {
	entries *[]LogEntry
	args    []any
}

func New() *MockLogger {
	return &MockLogger{entries: &[]LogEntry{}}
}

func (m *MockLogger) Log(level logger.LogLevel, msg string, kv ...any) {
	combined := make([]any, 0, len(m.args)+len(kv))
	combined = append(combined, m.args...)
	combined = append(combined, kv...)

	*m.entries = append(
		*m.entries, LogEntry{
			Level:   level,
			Message: msg,
			KV:      combined,
		},
	)
}

func (m *MockLogger) Level() logger.LogLevel {
	return logger.DebugLevel
}

func (m *MockLogger) With(kv ...any) logger.Logger {
	combined := make([]any, 0, len(m.args)+len(kv))
	combined = append(combined, m.args...)
	combined = append(combined, kv...)

	return &MockLogger{entries: m.entries, args: combined}
}

func (m *MockLogger) Debug(msg string, kv ...any) {
	m.Log(logger.DebugLevel, msg, kv...)
}

func (m *MockLogger) Info(msg string, kv ...any) {
	m.Log(logger.InfoLevel, msg, kv...)
}

func (m *MockLogger) Warn(msg string, kv ...any) {
	m.Log(logger.WarnLevel, msg, kv...)
}

func (m *MockLogger) Error(msg string, kv ...any) {
	m.Log(logger.ErrorLevel, msg, kv...)
}

// Entries returns the full call history recorded by this logger and any
// logger derived from it via With().
func (m *MockLogger) Entries() []LogEntry {
	return *m.entries
}
