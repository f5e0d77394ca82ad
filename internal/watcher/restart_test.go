package watcher

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestBackoffDoubles(t *testing.T) {
	if got := backoff(0); got != restartBaseDelay {
		t.Fatalf("expected base delay, got %s", got)
	}
	if got := backoff(2); got != 4*restartBaseDelay {
		t.Fatalf("expected 4x base delay, got %s", got)
	}
	if got := backoff(-1); got != restartBaseDelay {
		t.Fatalf("expected base delay for negative attempt, got %s", got)
	}
}

func TestRecoveryRescansWatchedDirectories(t *testing.T) {
	watcher, err := NewWithOptions(Options{Debounce: -1})
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	defer watcher.Close()

	dir := t.TempDir()
	events := make(chan Event, 8)
	handle, err := watcher.Watch(dir, func(event Event) {
		select {
		case events <- event:
		default:
		}
	})
	if err != nil {
		t.Fatalf("watch dir: %v", err)
	}
	defer handle.Close()

	watcher.handleError(errors.New("queue overflow"))

	select {
	case event := <-events:
		if !event.Rescan || event.Path != dir {
			t.Fatalf("expected rescan of %q, got %+v", dir, event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for rescan")
	}

	metrics := watcher.Metrics()
	if metrics.Errors != 1 || metrics.Restarts != 1 || metrics.RestartAttempts != 0 {
		t.Fatalf("unexpected metrics %+v", metrics)
	}
}

func TestRestartGivesUpAfterMaxAttempts(t *testing.T) {
	reported := make(chan error, 1)
	watcher, err := NewWithOptions(Options{
		Debounce: -1,
		ErrorHandler: func(err error) {
			reported <- err
		},
	})
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	defer watcher.Close()

	watcher.restartMutex.Lock()
	watcher.restartAttempts = maxRestartAttempts
	watcher.restartMutex.Unlock()

	cause := errors.New("backend lost")
	watcher.handleError(cause)

	select {
	case err := <-reported:
		if !errors.Is(err, cause) {
			t.Fatalf("expected cause, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("expected error handler call")
	}
}

func TestWatchDuringRecoveryLandsOnNewBackend(t *testing.T) {
	watcher, err := NewWithOptions(Options{Debounce: -1})
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	defer watcher.Close()

	first := t.TempDir()
	firstHandle, err := watcher.Watch(first, func(Event) {})
	if err != nil {
		t.Fatalf("watch first: %v", err)
	}
	defer firstHandle.Close()

	second := t.TempDir()
	events := make(chan Event, 8)
	registered := make(chan Handle, 1)
	watcher.afterSnapshot = func() {
		go func() {
			handle, err := watcher.Watch(second, func(event Event) {
				select {
				case events <- event:
				default:
				}
			})
			if err != nil {
				t.Errorf("watch second: %v", err)
			}
			registered <- handle
		}()
		// Give the concurrent Watch time to reach the backend.
		time.Sleep(50 * time.Millisecond)
	}

	if _, err := watcher.replaceBackend(); err != nil {
		t.Fatalf("replace backend: %v", err)
	}
	watcher.afterSnapshot = nil

	var handle Handle
	select {
	case handle = <-registered:
	case <-time.After(2 * time.Second):
		t.Fatal("watch registered during recovery never returned")
	}
	if handle == nil {
		t.Fatal("expected a handle")
	}
	defer handle.Close()

	child := filepath.Join(second, "after-restart.txt")
	if err := os.WriteFile(child, []byte("x"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	event, ok := waitForEvent(events)
	if !ok {
		t.Fatal("expected events from the watch registered during recovery")
	}
	if event.Path != child {
		t.Fatalf("expected %q, got %q", child, event.Path)
	}
}

func TestCloseDuringRecoveryLeavesNoOrphanWatch(t *testing.T) {
	watcher, err := NewWithOptions(Options{Debounce: -1})
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	defer watcher.Close()

	dir := t.TempDir()
	handle, err := watcher.Watch(dir, func(Event) {})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}

	closed := make(chan error, 1)
	watcher.afterSnapshot = func() {
		go func() {
			closed <- handle.Close()
		}()
		time.Sleep(50 * time.Millisecond)
	}
	if _, err := watcher.replaceBackend(); err != nil {
		t.Fatalf("replace backend: %v", err)
	}
	watcher.afterSnapshot = nil

	select {
	case err := <-closed:
		if err != nil {
			t.Fatalf("close: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("close during recovery never returned")
	}

	watcher.mutex.Lock()
	kernelWatches := watcher.watcher.WatchList()
	active := watcher.activeWatches
	watcher.mutex.Unlock()
	if len(kernelWatches) != 0 || active != 0 {
		t.Fatalf("expected no watches left, got %v (active %d)", kernelWatches, active)
	}
}
