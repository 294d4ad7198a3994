package testutil

import (
	"fmt"
	"sync"
)

// LogEntry is one call made to a RecordingLogger.
type LogEntry struct {
	Level string
	Msg   string
	Args  []any
}

// Attr returns the value logged under key, or nil.
func (e LogEntry) Attr(key string) any {
	for i := 0; i+1 < len(e.Args); i += 2 {
		if k, ok := e.Args[i].(string); ok && k == key {
			return e.Args[i+1]
		}
	}
	return nil
}

// RecordingLogger keeps every log call for later inspection.
type RecordingLogger struct {
	mu      sync.Mutex
	entries []LogEntry
}

func NewRecordingLogger() *RecordingLogger {
	return &RecordingLogger{}
}

func (l *RecordingLogger) Debug(msg string, args ...any) { l.add("DEBUG", msg, args) }
func (l *RecordingLogger) Info(msg string, args ...any)  { l.add("INFO", msg, args) }
func (l *RecordingLogger) Warn(msg string, args ...any)  { l.add("WARN", msg, args) }
func (l *RecordingLogger) Error(msg string, args ...any) { l.add("ERROR", msg, args) }

func (l *RecordingLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, LogEntry{Level: level, Msg: msg, Args: append([]any(nil), args...)})
}

// Entries returns the recorded calls at level, or all calls when level is empty.
func (l *RecordingLogger) Entries(level string) []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []LogEntry
	for _, e := range l.entries {
		if level == "" || e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

func (e LogEntry) String() string {
	return fmt.Sprintf("%s %s %v", e.Level, e.Msg, e.Args)
}
