// Package notifier turns bursts of raw watch events into "directory changed"
// signals. A signal carries no description of the change: receivers re-list.
package notifier

import (
	"sync"
	"sync/atomic"
	"time"

	"qian/internal/watcher"
)

// Notifier coalesces raw events that arrive within one window into a single
// signal, emitted when the window that the first event opened closes. Events
// that keep arriving therefore delay a signal by at most one window.
type Notifier struct {
	window time.Duration
	emit   func()

	mutex   sync.Mutex
	timer   *time.Timer
	pending bool
	stopped bool

	// delivery is read-held while emit runs so Stop can wait it out.
	delivery sync.RWMutex

	received atomic.Uint64
	emitted  atomic.Uint64
}

// New returns a Notifier calling emit once per burst. A zero window emits
// synchronously for every event.
func New(window time.Duration, emit func()) *Notifier {
	if window < 0 {
		window = 0
	}
	return &Notifier{
		window: window,
		emit:   emit,
	}
}

// OnRawEvent accepts any watch event regardless of its kind.
func (n *Notifier) OnRawEvent(_ watcher.Event) {
	if n == nil {
		return
	}
	n.received.Add(1)

	n.mutex.Lock()
	if n.stopped {
		n.mutex.Unlock()
		return
	}
	if n.window == 0 {
		n.mutex.Unlock()
		n.fire(false)
		return
	}
	n.pending = true
	if n.timer == nil {
		n.timer = time.AfterFunc(n.window, func() {
			n.fire(true)
		})
	}
	n.mutex.Unlock()
}

// Flush emits a pending signal immediately.
func (n *Notifier) Flush() {
	if n == nil {
		return
	}
	n.mutex.Lock()
	if !n.pending || n.stopped {
		n.mutex.Unlock()
		return
	}
	if n.timer != nil {
		n.timer.Stop()
	}
	n.mutex.Unlock()
	n.fire(true)
}

// Stop discards any pending signal. Once Stop returns emit is not running and
// will not be called again.
func (n *Notifier) Stop() {
	if n == nil {
		return
	}
	n.mutex.Lock()
	n.stopped = true
	n.pending = false
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	n.mutex.Unlock()

	n.delivery.Lock()
	n.delivery.Unlock()
}

// Pending reports whether a signal is scheduled but not yet emitted.
func (n *Notifier) Pending() bool {
	if n == nil {
		return false
	}
	n.mutex.Lock()
	defer n.mutex.Unlock()
	return n.pending
}

// Received reports how many raw events were accepted.
func (n *Notifier) Received() uint64 {
	if n == nil {
		return 0
	}
	return n.received.Load()
}

// Emitted reports how many signals were emitted.
func (n *Notifier) Emitted() uint64 {
	if n == nil {
		return 0
	}
	return n.emitted.Load()
}

func (n *Notifier) fire(scheduled bool) {
	n.delivery.RLock()
	defer n.delivery.RUnlock()

	n.mutex.Lock()
	if n.stopped {
		n.mutex.Unlock()
		return
	}
	if scheduled {
		if !n.pending {
			n.mutex.Unlock()
			return
		}
		n.pending = false
		n.timer = nil
	}
	n.mutex.Unlock()

	n.emitted.Add(1)
	if n.emit != nil {
		n.emit()
	}
}
