package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"qian/internal/config"
	"qian/internal/logging"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "QIAN"

type Config struct {
	Addr              string
	StartDir          string
	Home              string
	ConfigDir         string
	AuthToken         string
	AllowedOrigins    []string
	Debounce          time.Duration
	ChangeWindow      time.Duration
	MaxWatches        int
	MessagesPerSecond float64
	MessageBurst      int
	LogLevel          logging.Level
	LogFormat         logging.Format
	RuntimeMetrics    bool
	Sources           map[string]configSource
}

type configSource string

const (
	sourceDefault configSource = "default"
	sourceEnv     configSource = "env"
	sourceFlag    configSource = "flag"
)

// FlagValues holds command-line values. Only flags reported as changed
// override the environment.
type FlagValues struct {
	// EnvFile is a dotenv file loaded before QIAN_* variables are read.
	// Variables already set in the process environment win.
	EnvFile           string
	Addr              string
	StartDir          string
	ConfigDir         string
	Token             string
	AllowedOrigins    []string
	Debounce          time.Duration
	ChangeWindow      time.Duration
	MaxWatches        int
	MessagesPerSecond float64
	MessageBurst      int
	LogLevel          string
	LogFormat         string
	RuntimeMetrics    bool
	Verbose           bool
}

// envValues are decoded from QIAN_* variables. Nil fields were not set.
type envValues struct {
	Addr              *string        `envconfig:"ADDR"`
	StartDir          *string        `envconfig:"START_DIR"`
	ConfigDir         *string        `envconfig:"CONFIG_DIR"`
	Token             *string        `envconfig:"TOKEN"`
	AllowedOrigins    *[]string      `envconfig:"ALLOWED_ORIGINS"`
	Debounce          *time.Duration `envconfig:"DEBOUNCE"`
	ChangeWindow      *time.Duration `envconfig:"CHANGE_WINDOW"`
	MaxWatches        *int           `envconfig:"MAX_WATCHES"`
	MessagesPerSecond *float64       `envconfig:"WS_RATE"`
	MessageBurst      *int           `envconfig:"WS_BURST"`
	LogLevel          *string        `envconfig:"LOG_LEVEL"`
	LogFormat         *string        `envconfig:"LOG_FORMAT"`
	RuntimeMetrics    *bool          `envconfig:"RUNTIME_METRICS"`
}

func DefaultConfig(home string) Config {
	return Config{
		Addr:              "127.0.0.1:7410",
		StartDir:          home,
		Home:              home,
		ConfigDir:         filepath.Join(home, config.DefaultDirName),
		Debounce:          100 * time.Millisecond,
		ChangeWindow:      150 * time.Millisecond,
		MaxWatches:        16,
		MessagesPerSecond: 20,
		MessageBurst:      40,
		LogLevel:          logging.LevelInfo,
		LogFormat:         logging.FormatJSON,
	}
}

// LoadConfig layers defaults, QIAN_* environment variables and changed flags.
func LoadConfig(flags FlagValues, changed func(string) bool) (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, fmt.Errorf("resolve home directory: %w", err)
	}
	return loadConfig(home, flags, changed)
}

func loadConfig(home string, flags FlagValues, changed func(string) bool) (Config, error) {
	if changed == nil {
		changed = func(string) bool { return false }
	}
	if changed("env-file") && strings.TrimSpace(flags.EnvFile) != "" {
		if err := godotenv.Load(strings.TrimSpace(flags.EnvFile)); err != nil {
			return Config{}, fmt.Errorf("load env file %s: %w", flags.EnvFile, err)
		}
	}
	var env envValues
	if err := envconfig.Process(envPrefix, &env); err != nil {
		return Config{}, fmt.Errorf("read %s_* environment: %w", envPrefix, err)
	}

	cfg := DefaultConfig(home)
	cfg.Sources = make(map[string]configSource)

	layerString(&cfg, "addr", &cfg.Addr, env.Addr, flags.Addr, changed)
	layerString(&cfg, "start-dir", &cfg.StartDir, env.StartDir, flags.StartDir, changed)
	layerString(&cfg, "config-dir", &cfg.ConfigDir, env.ConfigDir, flags.ConfigDir, changed)
	layer(&cfg, "token", &cfg.AuthToken, env.Token, flags.Token, changed)
	layer(&cfg, "allowed-origins", &cfg.AllowedOrigins, env.AllowedOrigins, flags.AllowedOrigins, changed)
	layer(&cfg, "debounce", &cfg.Debounce, env.Debounce, flags.Debounce, changed)
	layer(&cfg, "change-window", &cfg.ChangeWindow, env.ChangeWindow, flags.ChangeWindow, changed)
	layer(&cfg, "max-watches", &cfg.MaxWatches, env.MaxWatches, flags.MaxWatches, changed)
	layer(&cfg, "ws-rate", &cfg.MessagesPerSecond, env.MessagesPerSecond, flags.MessagesPerSecond, changed)
	layer(&cfg, "ws-burst", &cfg.MessageBurst, env.MessageBurst, flags.MessageBurst, changed)
	layer(&cfg, "runtime-metrics", &cfg.RuntimeMetrics, env.RuntimeMetrics, flags.RuntimeMetrics, changed)

	var rawLevel string
	layer(&cfg, "log-level", &rawLevel, env.LogLevel, flags.LogLevel, changed)
	if changed("verbose") && flags.Verbose {
		rawLevel = string(logging.LevelDebug)
		cfg.Sources["log-level"] = sourceFlag
	}
	if rawLevel != "" {
		level, ok := logging.ParseLevel(rawLevel)
		if !ok {
			return Config{}, fmt.Errorf("invalid log level %q", rawLevel)
		}
		cfg.LogLevel = level
	}

	var rawFormat string
	layer(&cfg, "log-format", &rawFormat, env.LogFormat, flags.LogFormat, changed)
	switch strings.ToLower(strings.TrimSpace(rawFormat)) {
	case "":
	case string(logging.FormatJSON):
		cfg.LogFormat = logging.FormatJSON
	case string(logging.FormatConsole):
		cfg.LogFormat = logging.FormatConsole
	default:
		return Config{}, fmt.Errorf("invalid log format %q", rawFormat)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// PreferencesPath is the preferences file inside ConfigDir.
func (cfg Config) PreferencesPath() string {
	return filepath.Join(cfg.ConfigDir, config.DefaultFileName)
}

func (cfg Config) validate() error {
	if strings.TrimSpace(cfg.Addr) == "" {
		return fmt.Errorf("invalid addr: value cannot be empty")
	}
	if strings.TrimSpace(cfg.StartDir) == "" {
		return fmt.Errorf("invalid start-dir: value cannot be empty")
	}
	if strings.TrimSpace(cfg.ConfigDir) == "" {
		return fmt.Errorf("invalid config-dir: value cannot be empty")
	}
	if cfg.MaxWatches <= 0 {
		return fmt.Errorf("invalid max-watches: must be > 0")
	}
	if cfg.MessageBurst <= 0 {
		return fmt.Errorf("invalid ws-burst: must be > 0")
	}
	return nil
}

func layer[T any](cfg *Config, key string, target *T, env *T, flag T, changed func(string) bool) {
	cfg.Sources[key] = sourceDefault
	if env != nil {
		*target = *env
		cfg.Sources[key] = sourceEnv
	}
	if changed(key) {
		*target = flag
		cfg.Sources[key] = sourceFlag
	}
}

// layerString ignores blank values from either layer.
func layerString(cfg *Config, key string, target *string, env *string, flag string, changed func(string) bool) {
	cfg.Sources[key] = sourceDefault
	if env != nil && strings.TrimSpace(*env) != "" {
		*target = strings.TrimSpace(*env)
		cfg.Sources[key] = sourceEnv
	}
	if changed(key) && strings.TrimSpace(flag) != "" {
		*target = strings.TrimSpace(flag)
		cfg.Sources[key] = sourceFlag
	}
}
