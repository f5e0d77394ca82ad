package logging

import (
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const DefaultBufferSize = 1000

// Format selects how entries are rendered on the output writer.
type Format string

const (
	FormatJSON    Format = "json"
	FormatConsole Format = "console"
)

type Logger struct {
	buffer      *LogBuffer
	output      *zap.Logger
	minLevel    Level
	baseContext map[string]string
	hub         *LogHub
}

func NewLogger(buffer *LogBuffer, minLevel Level) *Logger {
	return NewLoggerWithOutput(buffer, minLevel, os.Stdout)
}

func NewLoggerWithOutput(buffer *LogBuffer, minLevel Level, output io.Writer) *Logger {
	return NewLoggerWithFormat(buffer, minLevel, output, FormatJSON)
}

func NewLoggerWithFormat(buffer *LogBuffer, minLevel Level, output io.Writer, format Format) *Logger {
	if buffer == nil {
		buffer = NewLogBuffer(DefaultBufferSize)
	}
	var zapLogger *zap.Logger
	if output == nil || output == io.Discard {
		zapLogger = zap.NewNop()
	} else {
		core := zapcore.NewCore(newEncoder(format), zapcore.Lock(zapcore.AddSync(output)), zapcore.DebugLevel)
		zapLogger = zap.New(core)
	}
	return &Logger{
		buffer:   buffer,
		output:   zapLogger,
		minLevel: normalizeLevel(minLevel),
		hub:      NewLogHub(),
	}
}

func newEncoder(format Format) zapcore.Encoder {
	config := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		MessageKey:     "message",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	if format == FormatConsole {
		config.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(config)
	}
	return zapcore.NewJSONEncoder(config)
}

func (l *Logger) Buffer() *LogBuffer {
	if l == nil {
		return nil
	}
	return l.buffer
}

// Subscribe streams entries at or above minLevel as they are logged.
func (l *Logger) Subscribe(minLevel Level) (<-chan LogEntry, func()) {
	if l == nil || l.hub == nil {
		return nil, func() {}
	}
	return l.hub.Subscribe(minLevel, 0)
}

func (l *Logger) With(fields map[string]string) *Logger {
	if l == nil {
		return l
	}
	return &Logger{
		buffer:      l.buffer,
		output:      l.output,
		minLevel:    l.minLevel,
		baseContext: cloneFields(l.baseContext, fields),
		hub:         l.hub,
	}
}

func (l *Logger) Debug(message string, fields map[string]string) {
	l.log(LevelDebug, message, fields)
}

func (l *Logger) Info(message string, fields map[string]string) {
	l.log(LevelInfo, message, fields)
}

func (l *Logger) Warn(message string, fields map[string]string) {
	l.log(LevelWarning, message, fields)
}

func (l *Logger) Error(message string, fields map[string]string) {
	l.log(LevelError, message, fields)
}

func (l *Logger) Enabled(level Level) bool {
	if l == nil {
		return false
	}
	return levelRank(level) >= levelRank(l.minLevel)
}

// Sync flushes buffered output.
func (l *Logger) Sync() error {
	if l == nil || l.output == nil {
		return nil
	}
	return l.output.Sync()
}

func (l *Logger) log(level Level, message string, fields map[string]string) {
	if l == nil || !l.Enabled(level) {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
		Context:   cloneFields(l.baseContext, fields),
	}
	if l.buffer != nil {
		l.buffer.Add(entry)
	}
	if l.hub != nil {
		l.hub.Broadcast(entry)
	}
	if l.output != nil {
		if checked := l.output.Check(zapLevel(level), message); checked != nil {
			checked.Time = entry.Timestamp
			checked.Write(zapFields(entry.Context)...)
		}
	}
}

func normalizeLevel(level Level) Level {
	switch level {
	case LevelDebug, LevelInfo, LevelWarning, LevelError:
		return level
	default:
		return LevelInfo
	}
}

func levelRank(level Level) int {
	switch level {
	case LevelDebug:
		return 0
	case LevelInfo:
		return 1
	case LevelWarning:
		return 2
	case LevelError:
		return 3
	default:
		return 1
	}
}

func zapLevel(level Level) zapcore.Level {
	switch level {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarning:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func ParseLevel(value string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "warning", "warn":
		return LevelWarning, true
	case "error":
		return LevelError, true
	default:
		return "", false
	}
}

func cloneFields(base, extra map[string]string) map[string]string {
	if len(base) == 0 && len(extra) == 0 {
		return nil
	}
	combined := make(map[string]string, len(base)+len(extra))
	for key, value := range base {
		combined[key] = value
	}
	for key, value := range extra {
		combined[key] = value
	}
	return combined
}

func zapFields(context map[string]string) []zap.Field {
	if len(context) == 0 {
		return nil
	}
	keys := make([]string, 0, len(context))
	for key := range context {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	fields := make([]zap.Field, 0, len(keys))
	for _, key := range keys {
		fields = append(fields, zap.String(key, context[key]))
	}
	return fields
}

// LevelAtLeast reports whether level is at or above min.
func LevelAtLeast(level, min Level) bool {
	return levelRank(level) >= levelRank(min)
}
