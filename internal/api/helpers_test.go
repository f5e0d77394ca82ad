package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"qian/internal/bridge"
	"qian/internal/config"
	"qian/internal/event"
	"qian/internal/logging"
	"qian/internal/metrics"
	"qian/internal/watcher"
)

type recordingLauncher struct {
	mu    sync.Mutex
	calls []string
}

func (l *recordingLauncher) record(call string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
	return nil
}

func (l *recordingLauncher) Open(path string) error {
	return l.record("open " + path)
}

func (l *recordingLauncher) Reveal(path string) error {
	return l.record("reveal " + path)
}

func (l *recordingLauncher) OpenTerminal(app, dir string) error {
	return l.record("terminal " + app + " " + dir)
}

func (l *recordingLauncher) last() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.calls) == 0 {
		return ""
	}
	return l.calls[len(l.calls)-1]
}

type testEnv struct {
	home       string
	controller *bridge.Controller
	bus        *event.Bus[bridge.Signal]
	launcher   *recordingLauncher
	logger     *logging.Logger
	metrics    *metrics.Registry
	mux        *http.ServeMux
}

func newTestEnv(t *testing.T, token string) *testEnv {
	t.Helper()
	home := t.TempDir()
	logger := logging.NewLoggerWithOutput(logging.NewLogBuffer(100), logging.LevelDebug, nil)
	registry := metrics.New(false)

	source, err := watcher.NewWithOptions(watcher.Options{Logger: logger, Debounce: -1})
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	t.Cleanup(func() { _ = source.Close() })

	bus := event.NewBus[bridge.Signal](context.Background(), event.BusOptions{Name: "ui", Metrics: registry})
	t.Cleanup(bus.Close)

	store := config.NewStore(config.DefaultPath(home), config.StoreOptions{Logger: logger})
	if _, err := store.Load(context.Background()); err != nil {
		t.Fatalf("load preferences: %v", err)
	}

	launcher := &recordingLauncher{}
	controller, err := bridge.NewController(bridge.Options{
		Home:         home,
		Watch:        source,
		Launcher:     launcher,
		Store:        store,
		Bus:          bus,
		Logger:       logger,
		Metrics:      registry,
		ChangeWindow: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	t.Cleanup(func() { _ = controller.Close() })

	mux := http.NewServeMux()
	RegisterRoutes(mux, RouteConfig{
		Controller: controller,
		Bus:        bus,
		Logger:     logger,
		Metrics:    registry,
		AuthToken:  token,
		WatchStats: source.Metrics,
		StartedAt:  time.Now(),
		Version:    "test",
	})
	return &testEnv{
		home:       home,
		controller: controller,
		bus:        bus,
		launcher:   launcher,
		logger:     logger,
		metrics:    registry,
		mux:        mux,
	}
}

func (env *testEnv) serve(req *http.Request) *httptest.ResponseRecorder {
	res := httptest.NewRecorder()
	env.mux.ServeHTTP(res, req)
	return res
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func makeDir(t *testing.T, path string) string {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
	return path
}

func join(parts ...string) string {
	return filepath.Join(parts...)
}
