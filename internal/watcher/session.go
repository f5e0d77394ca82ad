package watcher

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"qian/internal/logging"
)

var (
	ErrWatchUnavailable = errors.New("watch unavailable")
	ErrSessionActive    = errors.New("watch session already active")
)

// State is the lifecycle position of a Session.
type State string

const (
	StateIdle     State = "idle"
	StateWatching State = "watching"
)

// Session holds at most one live watch. Moving to another directory requires
// Stop before Start; Start on a watching session fails with ErrSessionActive.
type Session struct {
	watch  Watch
	logger *logging.Logger

	mutex  sync.Mutex
	state  State
	path   string
	handle Handle

	// generation tags callbacks so a stopped watch can never deliver.
	generation atomic.Uint64
	// delivery is read-held while a callback runs; Stop write-locks it to
	// wait for in-flight callbacks of the old generation.
	delivery sync.RWMutex
}

func NewSession(watch Watch, logger *logging.Logger) *Session {
	return &Session{
		watch:  watch,
		logger: logger,
		state:  StateIdle,
	}
}

// Start begins watching path. onEvent runs asynchronously on the watcher's
// goroutine and must not call Stop or Start on this session.
func (s *Session) Start(path string, onEvent func(Event)) error {
	if s == nil {
		return fmt.Errorf("%w: no session", ErrWatchUnavailable)
	}
	if onEvent == nil {
		return errors.New("event callback is required")
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.state == StateWatching {
		return fmt.Errorf("%w: %s", ErrSessionActive, s.path)
	}
	if s.watch == nil {
		return fmt.Errorf("%w: no watch subsystem", ErrWatchUnavailable)
	}

	generation := s.generation.Add(1)
	handle, err := s.watch.Watch(path, func(event Event) {
		s.delivery.RLock()
		defer s.delivery.RUnlock()
		if s.generation.Load() != generation {
			return
		}
		onEvent(event)
	})
	if err != nil {
		s.generation.Add(1)
		s.logWarn("watch start failed", map[string]string{
			"path":  path,
			"error": err.Error(),
		})
		return fmt.Errorf("%w: %s: %w", ErrWatchUnavailable, path, err)
	}

	s.state = StateWatching
	s.path = path
	s.handle = handle
	s.logDebug("watch session started", path)
	return nil
}

// Stop releases the live watch. It is safe to call on an idle session. When
// Stop returns no callback of the stopped watch is running or will run.
func (s *Session) Stop() error {
	if s == nil {
		return nil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.state == StateIdle {
		return nil
	}

	s.generation.Add(1)
	handle := s.handle
	path := s.path
	s.handle = nil
	s.path = ""
	s.state = StateIdle

	var closeErr error
	if handle != nil {
		closeErr = handle.Close()
	}
	s.delivery.Lock()
	s.delivery.Unlock()

	if closeErr != nil {
		s.logWarn("watch session close failed", map[string]string{
			"path":  path,
			"error": closeErr.Error(),
		})
		return closeErr
	}
	s.logDebug("watch session stopped", path)
	return nil
}

func (s *Session) State() State {
	if s == nil {
		return StateIdle
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.state
}

// Path returns the watched directory, or "" when idle.
func (s *Session) Path() string {
	if s == nil {
		return ""
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.path
}

func (s *Session) logWarn(message string, fields map[string]string) {
	if s.logger == nil {
		return
	}
	s.logger.Warn(message, withWatcherFields(fields))
}

func (s *Session) logDebug(message, path string) {
	if s.logger == nil {
		return
	}
	s.logger.Debug(message, withWatcherFields(map[string]string{
		"path": path,
	}))
}
