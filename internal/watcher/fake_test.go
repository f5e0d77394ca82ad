package watcher

import (
	"errors"
	"sync"
)

// fakeWatch records Watch/Close calls in order and lets tests fire callbacks
// for any registration, including closed ones.
type fakeWatch struct {
	mu        sync.Mutex
	log       []string
	callbacks map[string]func(Event)
	fail      map[string]error
}

func newFakeWatch() *fakeWatch {
	return &fakeWatch{
		callbacks: make(map[string]func(Event)),
		fail:      make(map[string]error),
	}
}

func (f *fakeWatch) Watch(path string, callback func(Event)) (Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[path]; err != nil {
		return nil, err
	}
	f.log = append(f.log, "start "+path)
	f.callbacks[path] = callback
	return &fakeHandle{watch: f, path: path}, nil
}

func (f *fakeWatch) fire(path string) error {
	f.mu.Lock()
	callback := f.callbacks[path]
	f.mu.Unlock()
	if callback == nil {
		return errors.New("no callback for " + path)
	}
	callback(Event{Path: path + "/child"})
	return nil
}

func (f *fakeWatch) entries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.log...)
}

type fakeHandle struct {
	watch  *fakeWatch
	path   string
	closed bool
}

func (h *fakeHandle) Close() error {
	h.watch.mu.Lock()
	defer h.watch.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	h.watch.log = append(h.watch.log, "stop "+h.path)
	return nil
}
