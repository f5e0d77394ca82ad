package bridge

import (
	"context"
	"errors"
	"sync"

	"qian/internal/config"
	"qian/internal/watcher"
)

// fakeWatch records registrations in order and tracks how many are live.
type fakeWatch struct {
	mu        sync.Mutex
	log       []string
	callbacks map[string]func(watcher.Event)
	fail      map[string]error
	live      int
	maxLive   int
}

func newFakeWatch() *fakeWatch {
	return &fakeWatch{
		callbacks: make(map[string]func(watcher.Event)),
		fail:      make(map[string]error),
	}
}

func (f *fakeWatch) Watch(path string, callback func(watcher.Event)) (watcher.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[path]; err != nil {
		return nil, err
	}
	f.log = append(f.log, "start "+path)
	f.callbacks[path] = callback
	f.live++
	if f.live > f.maxLive {
		f.maxLive = f.live
	}
	return &fakeHandle{watch: f, path: path}, nil
}

func (f *fakeWatch) fire(path string) error {
	f.mu.Lock()
	callback := f.callbacks[path]
	f.mu.Unlock()
	if callback == nil {
		return errors.New("no callback for " + path)
	}
	callback(watcher.Event{Path: path + "/child"})
	return nil
}

func (f *fakeWatch) entries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.log...)
}

func (f *fakeWatch) peakLive() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxLive
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
	h.watch.live--
	h.watch.log = append(h.watch.log, "stop "+h.path)
	return nil
}

type launchCall struct {
	action string
	app    string
	path   string
}

type stubLauncher struct {
	mu    sync.Mutex
	calls []launchCall
	err   error
}

func (s *stubLauncher) record(call launchCall) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
	return s.err
}

func (s *stubLauncher) Open(path string) error {
	return s.record(launchCall{action: "open", path: path})
}

func (s *stubLauncher) Reveal(path string) error {
	return s.record(launchCall{action: "reveal", path: path})
}

func (s *stubLauncher) OpenTerminal(app, dir string) error {
	return s.record(launchCall{action: "terminal", app: app, path: dir})
}

func (s *stubLauncher) last() launchCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[len(s.calls)-1]
}

type memoryStore struct {
	mu    sync.Mutex
	prefs config.Preferences
	err   error
}

func (m *memoryStore) Current() config.Preferences {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prefs
}

func (m *memoryStore) Save(_ context.Context, prefs config.Preferences) error {
	if err := prefs.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.prefs = prefs
	return nil
}
