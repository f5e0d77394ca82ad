package server

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"qian/internal/logging"
)

// NewLogger builds the process logger described by cfg.
func NewLogger(cfg Config, output io.Writer) *logging.Logger {
	return logging.NewLoggerWithFormat(logging.NewLogBuffer(logging.DefaultBufferSize), cfg.LogLevel, output, cfg.LogFormat)
}

// LogStartupFlags records the settings that did not come from defaults.
func LogStartupFlags(logger *logging.Logger, cfg Config) {
	if logger == nil || cfg.Sources == nil {
		return
	}
	values := map[string]string{
		"addr":            cfg.Addr,
		"start-dir":       cfg.StartDir,
		"config-dir":      cfg.ConfigDir,
		"token":           formatToken(cfg.AuthToken),
		"allowed-origins": strings.Join(cfg.AllowedOrigins, ","),
		"debounce":        cfg.Debounce.String(),
		"change-window":   cfg.ChangeWindow.String(),
		"max-watches":     fmt.Sprint(cfg.MaxWatches),
		"ws-rate":         fmt.Sprint(cfg.MessagesPerSecond),
		"ws-burst":        fmt.Sprint(cfg.MessageBurst),
		"log-level":       string(cfg.LogLevel),
		"log-format":      string(cfg.LogFormat),
		"runtime-metrics": fmt.Sprint(cfg.RuntimeMetrics),
	}

	keys := make([]string, 0, len(cfg.Sources))
	for key, source := range cfg.Sources {
		if source != sourceDefault {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return
	}
	sort.Strings(keys)

	var flags, env []string
	for _, key := range keys {
		entry := fmt.Sprintf("%s=%s", key, values[key])
		if cfg.Sources[key] == sourceFlag {
			flags = append(flags, entry)
		} else {
			env = append(env, entry)
		}
	}
	fields := map[string]string{
		"qian.category": "config",
		"qian.source":   "backend",
	}
	if len(flags) > 0 {
		fields["flags"] = strings.Join(flags, " ")
	}
	if len(env) > 0 {
		fields["env"] = strings.Join(env, " ")
	}
	logger.Debug("starting with overrides", fields)
}

func formatToken(token string) string {
	if token == "" {
		return ""
	}
	return "[set]"
}
