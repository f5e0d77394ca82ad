package watcher

import (
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

type debounceEntry struct {
	timer *time.Timer
	event Event
}

type debouncer struct {
	duration time.Duration
	entries  map[string]debounceEntry
}

func newDebouncer(duration time.Duration) *debouncer {
	return &debouncer{
		duration: duration,
		entries:  make(map[string]debounceEntry),
	}
}

// schedule records event for path and reports whether it replaced a pending one.
func (debouncer *debouncer) schedule(path string, event Event, flush func(string)) bool {
	if debouncer == nil {
		return false
	}
	entry := debouncer.entries[path]
	coalesced := entry.timer != nil
	entry.event = event
	if entry.timer == nil {
		entry.timer = time.AfterFunc(debouncer.duration, func() {
			flush(path)
		})
	} else {
		entry.timer.Reset(debouncer.duration)
	}
	debouncer.entries[path] = entry
	return coalesced
}

func (debouncer *debouncer) pop(path string) (Event, bool) {
	if debouncer == nil {
		return Event{}, false
	}
	entry, ok := debouncer.entries[path]
	if !ok {
		return Event{}, false
	}
	delete(debouncer.entries, path)
	return entry.event, true
}

// cancelUnder discards pending events for root and its immediate children.
func (debouncer *debouncer) cancelUnder(root string) {
	if debouncer == nil {
		return
	}
	for path, entry := range debouncer.entries {
		if path != root && filepath.Dir(path) != root {
			continue
		}
		if entry.timer != nil {
			entry.timer.Stop()
		}
		delete(debouncer.entries, path)
	}
}

func (debouncer *debouncer) stop() {
	if debouncer == nil {
		return
	}
	for _, entry := range debouncer.entries {
		if entry.timer != nil {
			entry.timer.Stop()
		}
	}
	debouncer.entries = nil
}

func (watcher *Watcher) handleEvent(event fsnotify.Event) {
	path := filepath.Clean(event.Name)
	entry := Event{
		Path:      path,
		Op:        event.Op,
		Timestamp: time.Now().UTC(),
	}

	watcher.mutex.Lock()
	if watcher.closed || !watcher.hasCallbacksLocked(path) {
		watcher.mutex.Unlock()
		return
	}
	if watcher.debouncer != nil {
		if watcher.debouncer.schedule(path, entry, watcher.flush) {
			atomic.AddUint64(&watcher.eventsCoalesced, 1)
		}
		watcher.mutex.Unlock()
		return
	}
	callbacks := watcher.callbacksForPathLocked(path)
	watcher.mutex.Unlock()

	watcher.deliver(callbacks, entry)
}

func (watcher *Watcher) flush(path string) {
	watcher.mutex.Lock()
	if watcher.closed || watcher.debouncer == nil {
		watcher.mutex.Unlock()
		return
	}
	event, ok := watcher.debouncer.pop(path)
	if !ok {
		watcher.mutex.Unlock()
		return
	}
	callbacks := watcher.callbacksForPathLocked(path)
	watcher.mutex.Unlock()

	watcher.deliver(callbacks, event)
}

func (watcher *Watcher) deliver(callbacks []func(Event), event Event) {
	for _, callback := range callbacks {
		callback(event)
		atomic.AddUint64(&watcher.eventsDelivered, 1)
	}
}
