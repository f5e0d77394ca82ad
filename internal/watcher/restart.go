package watcher

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// backoff doubles from restartBaseDelay for each consecutive failed attempt.
func backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return restartBaseDelay << attempt
}

func (watcher *Watcher) handleError(err error) {
	if err == nil {
		return
	}
	atomic.AddUint64(&watcher.errorCount, 1)
	watcher.logWarn("watch backend error", map[string]string{
		"error": err.Error(),
	})
	watcher.scheduleRestart(err)
}

func (watcher *Watcher) isClosed() bool {
	watcher.mutex.Lock()
	defer watcher.mutex.Unlock()
	return watcher.closed
}

// scheduleRestart arms one recovery timer. Once maxRestartAttempts recoveries
// have failed in a row the error handler is told and no timer is armed.
func (watcher *Watcher) scheduleRestart(cause error) {
	if watcher == nil || watcher.isClosed() {
		return
	}

	watcher.restartMutex.Lock()
	if watcher.restartTimer != nil {
		watcher.restartMutex.Unlock()
		return
	}
	attempt := watcher.restartAttempts
	if attempt >= maxRestartAttempts {
		handler := watcher.errorHandler
		watcher.restartMutex.Unlock()
		watcher.logWarn("watch backend gave up", map[string]string{
			"attempts": strconv.Itoa(attempt),
			"error":    cause.Error(),
		})
		if handler != nil {
			handler(cause)
		}
		return
	}
	watcher.restartAttempts++
	watcher.restartTimer = time.AfterFunc(backoff(attempt), watcher.recoverBackend)
	watcher.restartMutex.Unlock()
}

func (watcher *Watcher) recoverBackend() {
	if watcher == nil {
		return
	}
	paths, err := watcher.replaceBackend()

	watcher.restartMutex.Lock()
	watcher.restartTimer = nil
	if err == nil {
		watcher.restartAttempts = 0
	}
	watcher.restartMutex.Unlock()

	if err != nil {
		watcher.logWarn("watch backend restart failed", map[string]string{
			"error": err.Error(),
		})
		watcher.scheduleRestart(err)
		return
	}
	atomic.AddUint64(&watcher.restarts, 1)
	watcher.rescan(paths)
}

// replaceBackend swaps in a fresh fsnotify instance carrying every
// registered path and returns the paths it re-added. Watch and handle Close
// wait for the swap, so no registration lands on the discarded backend.
func (watcher *Watcher) replaceBackend() ([]string, error) {
	watcher.backendMutex.Lock()
	defer watcher.backendMutex.Unlock()

	watcher.mutex.Lock()
	if watcher.closed {
		watcher.mutex.Unlock()
		return nil, nil
	}
	registered := make([]string, 0, len(watcher.callbacks))
	for path := range watcher.callbacks {
		registered = append(registered, path)
	}
	watcher.mutex.Unlock()
	if watcher.afterSnapshot != nil {
		watcher.afterSnapshot()
	}

	replacement, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	added := registered[:0]
	for _, path := range registered {
		if err := replacement.Add(path); err != nil {
			watcher.logWarn("watch re-add failed", map[string]string{
				"path":  path,
				"error": err.Error(),
			})
			continue
		}
		added = append(added, path)
	}

	watcher.mutex.Lock()
	if watcher.closed {
		watcher.mutex.Unlock()
		_ = replacement.Close()
		return nil, nil
	}
	previous := watcher.watcher
	watcher.watcher = replacement
	watcher.mutex.Unlock()

	watcher.startForwarder(replacement)
	if previous != nil {
		_ = previous.Close()
	}
	return added, nil
}

// rescan tells every watcher of paths that events may have been lost.
func (watcher *Watcher) rescan(paths []string) {
	now := time.Now().UTC()
	for _, path := range paths {
		watcher.mutex.Lock()
		if watcher.closed {
			watcher.mutex.Unlock()
			return
		}
		callbacks := make([]func(Event), 0, len(watcher.callbacks[path]))
		for _, entry := range watcher.callbacks[path] {
			callbacks = append(callbacks, entry.callback)
		}
		watcher.mutex.Unlock()

		watcher.deliver(callbacks, Event{Path: path, Rescan: true, Timestamp: now})
	}
}
