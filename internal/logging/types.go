package logging

import "time"

type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

type LogEntry struct {
	Timestamp time.Time         `json:"timestamp"`
	Level     Level             `json:"level"`
	Message   string            `json:"message"`
	Context   map[string]string `json:"context,omitempty"`
}

// Category reports the qian.category field, or "" when absent.
func (entry LogEntry) Category() string {
	return entry.Context["qian.category"]
}

// FromFrontend reports whether the entry was posted by the UI.
func (entry LogEntry) FromFrontend() bool {
	return entry.Context["qian.source"] == "frontend"
}
