package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"qian/internal/logging"

	"github.com/gofrs/flock"
)

const (
	DefaultDirName  = ".qian"
	DefaultFileName = "profil.json"

	defaultLockTimeout = 5 * time.Second
	lockRetryDelay     = 50 * time.Millisecond
)

var (
	ErrConfigIO    = errors.New("config io")
	ErrLockTimeout = errors.New("timeout acquiring preferences lock")
)

// Store persists Preferences as a JSON file. Reads take a shared lock and
// writes an exclusive one on a sidecar lock file; writes replace the file
// through a temp file and rename.
type Store struct {
	path        string
	lockTimeout time.Duration
	logger      *logging.Logger

	mutex   sync.Mutex
	current Preferences
	loaded  bool
}

type StoreOptions struct {
	LockTimeout time.Duration
	Logger      *logging.Logger
}

// DefaultPath returns ~/.qian/profil.json for home.
func DefaultPath(home string) string {
	return filepath.Join(home, DefaultDirName, DefaultFileName)
}

func NewStore(path string, options StoreOptions) *Store {
	timeout := options.LockTimeout
	if timeout <= 0 {
		timeout = defaultLockTimeout
	}
	return &Store{
		path:        filepath.Clean(path),
		lockTimeout: timeout,
		logger:      options.Logger,
	}
}

func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Load reads the preferences file, creating its directory and writing the
// defaults when it does not exist. Unreadable or malformed content falls back
// to the defaults; only the initial write can fail.
func (s *Store) Load(ctx context.Context) (Preferences, error) {
	if s == nil {
		return DefaultPreferences(), nil
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()

	prefs, err := s.read(ctx)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		prefs = DefaultPreferences()
		if writeErr := s.write(ctx, prefs); writeErr != nil {
			s.current = prefs
			s.loaded = true
			return prefs, writeErr
		}
		s.logInfo("preferences created", nil)
	default:
		s.logWarn("preferences read failed, using defaults", map[string]string{
			"error": err.Error(),
		})
		prefs = DefaultPreferences()
	}

	s.current = prefs
	s.loaded = true
	return prefs, nil
}

// Current returns the last loaded or saved preferences.
func (s *Store) Current() Preferences {
	if s == nil {
		return DefaultPreferences()
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if !s.loaded {
		return DefaultPreferences()
	}
	return s.current
}

// Save validates and rewrites the whole preferences file.
func (s *Store) Save(ctx context.Context, prefs Preferences) error {
	if s == nil {
		return fmt.Errorf("%w: no store", ErrConfigIO)
	}
	prefs.Terminal = strings.TrimSpace(prefs.Terminal)
	if err := prefs.Validate(); err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if err := s.write(ctx, prefs); err != nil {
		return err
	}
	s.current = prefs
	s.loaded = true
	s.logInfo("preferences saved", map[string]string{"terminal": prefs.Terminal})
	return nil
}

func (s *Store) read(ctx context.Context) (Preferences, error) {
	if _, err := os.Stat(s.path); err != nil {
		return Preferences{}, err
	}

	lock := flock.New(s.lockPath())
	if err := s.acquire(ctx, lock.TryRLockContext); err != nil {
		return Preferences{}, err
	}
	defer func() { _ = lock.Unlock() }()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return Preferences{}, err
	}
	var prefs Preferences
	if err := json.Unmarshal(data, &prefs); err != nil {
		return Preferences{}, fmt.Errorf("parse %s: %w", s.path, err)
	}
	return prefs.withDefaults(), nil
}

func (s *Store) write(ctx context.Context, prefs Preferences) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create directory: %w", ErrConfigIO, err)
	}

	lock := flock.New(s.lockPath())
	if err := s.acquire(ctx, lock.TryLockContext); err != nil {
		return fmt.Errorf("%w: %w", ErrConfigIO, err)
	}
	defer func() { _ = lock.Unlock() }()

	payload, err := json.MarshalIndent(prefs, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrConfigIO, err)
	}
	payload = append(payload, '\n')

	temp, err := os.CreateTemp(dir, DefaultFileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %w", ErrConfigIO, err)
	}
	tempPath := temp.Name()
	if _, err := temp.Write(payload); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("%w: write temp file: %w", ErrConfigIO, err)
	}
	_ = temp.Sync()
	if err := temp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("%w: close temp file: %w", ErrConfigIO, err)
	}
	if err := os.Rename(tempPath, s.path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("%w: replace %s: %w", ErrConfigIO, s.path, err)
	}
	return nil
}

func (s *Store) acquire(ctx context.Context, try func(context.Context, time.Duration) (bool, error)) error {
	if ctx == nil {
		ctx = context.Background()
	}
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	locked, err := try(lockCtx, lockRetryDelay)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrLockTimeout
		}
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return ErrLockTimeout
	}
	return nil
}

func (s *Store) lockPath() string {
	return s.path + ".lock"
}

func (s *Store) logInfo(message string, fields map[string]string) {
	if s.logger == nil {
		return
	}
	s.logger.Info(message, withConfigFields(s.path, fields))
}

func (s *Store) logWarn(message string, fields map[string]string) {
	if s.logger == nil {
		return
	}
	s.logger.Warn(message, withConfigFields(s.path, fields))
}

func withConfigFields(path string, fields map[string]string) map[string]string {
	merged := map[string]string{
		"qian.category": "config",
		"qian.source":   "backend",
		"path":          path,
	}
	for key, value := range fields {
		merged[key] = value
	}
	return merged
}
