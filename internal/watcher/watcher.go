package watcher

import (
	"errors"
	"strconv"
	"sync/atomic"
	"time"

	"qian/internal/logging"

	"github.com/fsnotify/fsnotify"
)

const (
	defaultDebounce    = 100 * time.Millisecond
	defaultMaxWatches  = 16
	maxRestartAttempts = 3
	restartBaseDelay   = 200 * time.Millisecond
)

var (
	ErrMaxWatchesExceeded = errors.New("max watches exceeded")
	ErrWatcherClosed      = errors.New("watcher is closed")
)

// New creates a Watcher with default options.
func New() (*Watcher, error) {
	return NewWithOptions(Options{})
}

// NewWithOptions creates a Watcher with custom options.
func NewWithOptions(options Options) (*Watcher, error) {
	source, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	logger := options.Logger
	if logger == nil {
		logger = logging.NewLoggerWithOutput(logging.NewLogBuffer(logging.DefaultBufferSize), logging.LevelInfo, nil)
	}

	var debounce *debouncer
	switch {
	case options.Debounce == 0:
		debounce = newDebouncer(defaultDebounce)
	case options.Debounce > 0:
		debounce = newDebouncer(options.Debounce)
	}

	maxWatches := options.MaxWatches
	if maxWatches <= 0 {
		maxWatches = defaultMaxWatches
	}

	instance := &Watcher{
		watcher:      source,
		callbacks:    make(map[string][]callbackEntry),
		debouncer:    debounce,
		events:       make(chan fsnotify.Event, 16),
		errors:       make(chan error, 4),
		done:         make(chan struct{}),
		logger:       logger,
		maxWatches:   maxWatches,
		errorHandler: options.ErrorHandler,
	}

	instance.startForwarder(source)
	go instance.run()
	return instance, nil
}

// Close shuts down the watcher and stops event processing.
func (watcher *Watcher) Close() error {
	if watcher == nil {
		return nil
	}

	watcher.mutex.Lock()
	if watcher.closed {
		watcher.mutex.Unlock()
		return nil
	}
	watcher.closed = true
	if watcher.debouncer != nil {
		watcher.debouncer.stop()
		watcher.debouncer = nil
	}
	source := watcher.watcher
	watcher.mutex.Unlock()

	watcher.restartMutex.Lock()
	if watcher.restartTimer != nil {
		watcher.restartTimer.Stop()
		watcher.restartTimer = nil
	}
	watcher.restartMutex.Unlock()

	close(watcher.done)
	if source == nil {
		return nil
	}
	return source.Close()
}

func (watcher *Watcher) run() {
	for {
		select {
		case event := <-watcher.events:
			watcher.handleEvent(event)
		case err := <-watcher.errors:
			watcher.handleError(err)
		case <-watcher.done:
			return
		}
	}
}

func (watcher *Watcher) startForwarder(source *fsnotify.Watcher) {
	if source == nil {
		return
	}

	go func() {
		for {
			select {
			case event, ok := <-source.Events:
				if !ok {
					return
				}
				select {
				case watcher.events <- event:
				case <-watcher.done:
					return
				}
			case err, ok := <-source.Errors:
				if !ok {
					return
				}
				select {
				case watcher.errors <- err:
				case <-watcher.done:
					return
				}
			case <-watcher.done:
				return
			}
		}
	}()
}

// SetErrorHandler configures a callback for unrecoverable watcher failures.
func (watcher *Watcher) SetErrorHandler(handler func(error)) {
	if watcher == nil {
		return
	}
	watcher.restartMutex.Lock()
	watcher.errorHandler = handler
	watcher.restartMutex.Unlock()
}

// Metrics reports current watcher stats.
func (watcher *Watcher) Metrics() Metrics {
	if watcher == nil {
		return Metrics{}
	}
	watcher.mutex.Lock()
	active := watcher.activeWatches
	watcher.mutex.Unlock()
	watcher.restartMutex.Lock()
	restartAttempts := watcher.restartAttempts
	watcher.restartMutex.Unlock()
	return Metrics{
		ActiveWatches:   active,
		EventsDelivered: atomic.LoadUint64(&watcher.eventsDelivered),
		EventsCoalesced: atomic.LoadUint64(&watcher.eventsCoalesced),
		Errors:          atomic.LoadUint64(&watcher.errorCount),
		RestartAttempts: restartAttempts,
		Restarts:        atomic.LoadUint64(&watcher.restarts),
	}
}

func (watcher *Watcher) logWarn(message string, fields map[string]string) {
	if watcher == nil || watcher.logger == nil {
		return
	}
	watcher.logger.Warn(message, withWatcherFields(fields))
}

func (watcher *Watcher) logDebug(message, path string, activeCount int) {
	if watcher == nil || watcher.logger == nil {
		return
	}
	watcher.logger.Debug(message, withWatcherFields(map[string]string{
		"path":           path,
		"active_watches": strconv.Itoa(activeCount),
	}))
}

func withWatcherFields(fields map[string]string) map[string]string {
	merged := make(map[string]string, len(fields)+2)
	merged["qian.category"] = "watcher"
	merged["qian.source"] = "backend"
	for key, value := range fields {
		merged[key] = value
	}
	return merged
}
