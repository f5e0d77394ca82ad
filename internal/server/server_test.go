package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"qian/internal/bridge"
	"qian/internal/logging"
)

func newTestApp(t *testing.T, startDir string) (*App, string) {
	t.Helper()
	home := t.TempDir()
	cfg := DefaultConfig(home)
	cfg.Addr = "127.0.0.1:0"
	if startDir != "" {
		cfg.StartDir = startDir
	}
	logger := logging.NewLoggerWithOutput(logging.NewLogBuffer(100), logging.LevelDebug, nil)
	app, err := New(context.Background(), cfg, logger, Options{Version: "test"})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return app, home
}

func TestAppServesAndShutsDown(t *testing.T) {
	app, home := newTestApp(t, "")
	if err := app.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- app.Run(ctx)
	}()

	res, err := http.Get("http://" + app.Addr() + "/api/session")
	if err != nil {
		cancel()
		t.Fatalf("get session: %v", err)
	}
	var info bridge.SessionInfo
	decodeErr := json.NewDecoder(res.Body).Decode(&info)
	_ = res.Body.Close()
	if decodeErr != nil {
		cancel()
		t.Fatalf("decode: %v", decodeErr)
	}
	if info.Current != home {
		cancel()
		t.Fatalf("expected current %q, got %q", home, info.Current)
	}
	if _, err := os.Stat(filepath.Join(home, ".qian", "profil.json")); err != nil {
		cancel()
		t.Fatalf("expected preferences file: %v", err)
	}
	if status := app.Controller().Status(); status.WatchPath != home {
		cancel()
		t.Fatalf("expected start directory watched, got %+v", status)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("app did not shut down")
	}
	if _, err := app.Controller().RequestTree(context.Background(), home); !errors.Is(err, bridge.ErrClosed) {
		t.Fatalf("expected closed bridge, got %v", err)
	}
}

func TestAppFallsBackToHome(t *testing.T) {
	app, home := newTestApp(t, "/definitely/not/here")
	defer func() { _ = app.Close() }()

	if got := app.Controller().Current(); got != home {
		t.Fatalf("expected fallback to home %q, got %q", home, got)
	}
}

func TestShutdownCoordinatorRunsOnceInOrder(t *testing.T) {
	coordinator := newShutdownCoordinator(nil)
	var order []string
	coordinator.Add("first", func(context.Context) error {
		order = append(order, "first")
		return nil
	})
	coordinator.Add("second", func(context.Context) error {
		order = append(order, "second")
		return errors.New("boom")
	})
	coordinator.Add("skipped", nil)

	if err := coordinator.Run(context.Background()); err == nil {
		t.Fatal("expected joined error")
	}
	if err := coordinator.Run(context.Background()); err != nil {
		t.Fatalf("expected second run to be a no-op, got %v", err)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("unexpected order %v", order)
	}
}
