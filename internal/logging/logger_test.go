package logging

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"
)

func TestLoggerWritesToBuffer(t *testing.T) {
	buffer := NewLogBuffer(10)
	logger := NewLoggerWithOutput(buffer, LevelInfo, io.Discard)

	logger.Info("navigated", map[string]string{"path": "/tmp"})

	entries := buffer.List()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Level != LevelInfo {
		t.Fatalf("expected info level, got %q", entry.Level)
	}
	if entry.Message != "navigated" {
		t.Fatalf("expected message navigated, got %q", entry.Message)
	}
	if entry.Context["path"] != "/tmp" {
		t.Fatalf("expected context path=/tmp, got %v", entry.Context)
	}
}

func TestLoggerFiltersByLevel(t *testing.T) {
	buffer := NewLogBuffer(10)
	logger := NewLoggerWithOutput(buffer, LevelWarning, io.Discard)

	logger.Info("info", nil)
	logger.Warn("warn", nil)

	entries := buffer.List()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Level != LevelWarning {
		t.Fatalf("expected warning level, got %q", entries[0].Level)
	}
}

func TestLoggerWithMergesContext(t *testing.T) {
	buffer := NewLogBuffer(10)
	logger := NewLoggerWithOutput(buffer, LevelDebug, io.Discard).With(map[string]string{
		"qian.category": "watcher",
	})

	logger.Debug("watch added", map[string]string{"path": "/srv"})

	entries := buffer.List()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Context["qian.category"] != "watcher" || entries[0].Context["path"] != "/srv" {
		t.Fatalf("unexpected context %v", entries[0].Context)
	}
}

func TestLoggerEncodesJSONOutput(t *testing.T) {
	var output bytes.Buffer
	logger := NewLoggerWithOutput(NewLogBuffer(10), LevelInfo, &output)

	logger.Warn("watch unavailable", map[string]string{"path": "/gone"})
	_ = logger.Sync()

	line := strings.TrimSpace(output.String())
	var decoded map[string]any
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		t.Fatalf("decode output %q: %v", line, err)
	}
	if decoded["level"] != "warn" {
		t.Fatalf("expected level warn, got %v", decoded["level"])
	}
	if decoded["message"] != "watch unavailable" {
		t.Fatalf("expected message, got %v", decoded["message"])
	}
	if decoded["path"] != "/gone" {
		t.Fatalf("expected path field, got %v", decoded["path"])
	}
}

func TestLoggerStreamDeliversEntries(t *testing.T) {
	logger := NewLoggerWithOutput(NewLogBuffer(50), LevelInfo, io.Discard)
	output, cancel := logger.Subscribe("")
	defer cancel()

	const total = 50
	for i := 0; i < total; i++ {
		logger.Info("message", nil)
	}

	received := 0
	deadline := time.After(2 * time.Second)
	for received < total {
		select {
		case <-output:
			received++
		case <-deadline:
			t.Fatalf("timed out after receiving %d entries", received)
		}
	}
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		input string
		want  Level
		ok    bool
	}{
		{input: "debug", want: LevelDebug, ok: true},
		{input: " WARN ", want: LevelWarning, ok: true},
		{input: "error", want: LevelError, ok: true},
		{input: "loud", ok: false},
	}
	for _, tc := range cases {
		got, ok := ParseLevel(tc.input)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("ParseLevel(%q) = %q, %v; want %q, %v", tc.input, got, ok, tc.want, tc.ok)
		}
	}
}
