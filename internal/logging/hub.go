package logging

import (
	"sync"
	"sync/atomic"
)

const defaultSubscriberBuffer = 100

type hubSubscriber struct {
	ch       chan LogEntry
	minLevel Level
}

// LogHub fans entries out to live subscribers, each with its own level floor.
// A subscriber whose buffer is full misses the entry and it is counted.
type LogHub struct {
	mu      sync.Mutex
	nextID  uint64
	subs    map[uint64]hubSubscriber
	closed  bool
	dropped atomic.Uint64
}

func NewLogHub() *LogHub {
	return &LogHub{
		subs: make(map[uint64]hubSubscriber),
	}
}

// Subscribe receives entries at or above minLevel. An empty minLevel
// receives everything.
func (h *LogHub) Subscribe(minLevel Level, buffer int) (<-chan LogEntry, func()) {
	if h == nil {
		return nil, func() {}
	}
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		ch := make(chan LogEntry)
		close(ch)
		return ch, func() {}
	}
	h.nextID++
	id := h.nextID
	sub := hubSubscriber{ch: make(chan LogEntry, buffer), minLevel: minLevel}
	h.subs[id] = sub
	return sub.ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if existing, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(existing.ch)
		}
	}
}

func (h *LogHub) Broadcast(entry LogEntry) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for _, sub := range h.subs {
		if sub.minLevel != "" && !LevelAtLeast(entry.Level, sub.minLevel) {
			continue
		}
		select {
		case sub.ch <- entry:
		default:
			h.dropped.Add(1)
		}
	}
}

// Dropped counts entries lost to full subscriber buffers.
func (h *LogHub) Dropped() uint64 {
	if h == nil {
		return 0
	}
	return h.dropped.Load()
}

func (h *LogHub) Subscribers() int {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *LogHub) Close() {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		delete(h.subs, id)
		close(sub.ch)
	}
}
