package logging

import "sync"

// LogBuffer keeps the most recent entries, oldest first.
type LogBuffer struct {
	mu      sync.Mutex
	entries []LogEntry
	start   int
	count   int
}

func NewLogBuffer(size int) *LogBuffer {
	if size <= 0 {
		size = 1
	}
	return &LogBuffer{
		entries: make([]LogEntry, size),
	}
}

func (b *LogBuffer) Add(entry LogEntry) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count < len(b.entries) {
		b.entries[(b.start+b.count)%len(b.entries)] = entry
		b.count++
		return
	}
	b.entries[b.start] = entry
	b.start = (b.start + 1) % len(b.entries)
}

func (b *LogBuffer) List() []LogEntry {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}
	out := make([]LogEntry, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.entries[(b.start+i)%len(b.entries)]
	}
	return out
}

// Len reports how many entries are held.
func (b *LogBuffer) Len() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}
