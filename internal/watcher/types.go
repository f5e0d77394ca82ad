package watcher

import (
	"sync"
	"time"

	"qian/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// Event represents a single filesystem change. Rescan events carry no Op and
// follow a watcher recovery, when changes may have been missed.
type Event struct {
	Path      string
	Op        fsnotify.Op
	Rescan    bool
	Timestamp time.Time
}

// Handle releases watcher resources for a registration. Close is idempotent.
type Handle interface {
	Close() error
}

// Watch registers a callback for filesystem events on a path.
type Watch interface {
	Watch(path string, callback func(Event)) (Handle, error)
}

// Options controls watcher behavior.
type Options struct {
	Logger *logging.Logger
	// Debounce coalesces repeated events for one path. Zero selects the
	// default, a negative value delivers every event.
	Debounce     time.Duration
	MaxWatches   int
	ErrorHandler func(error)
}

// Metrics is a point-in-time view of watcher counters.
type Metrics struct {
	ActiveWatches   int    `json:"active_watches"`
	EventsDelivered uint64 `json:"events_delivered"`
	EventsCoalesced uint64 `json:"events_coalesced"`
	Errors          uint64 `json:"errors"`
	RestartAttempts int    `json:"restart_attempts"`
	Restarts        uint64 `json:"restarts"`
}

// Watcher is the concrete fsnotify-backed implementation.
type Watcher struct {
	watcher      *fsnotify.Watcher
	mutex        sync.Mutex
	callbacks    map[string][]callbackEntry
	debouncer    *debouncer
	events       chan fsnotify.Event
	errors       chan error
	done         chan struct{}
	closed       bool
	logger       *logging.Logger
	maxWatches   int
	errorHandler func(error)
	nextID       uint64

	activeWatches   int
	eventsDelivered uint64
	eventsCoalesced uint64
	errorCount      uint64
	restarts        uint64

	// backendMutex is read-held while a path is added to or removed from the
	// fsnotify backend and write-held while the backend is replaced.
	backendMutex sync.RWMutex
	// afterSnapshot runs in replaceBackend once the registered paths are
	// copied. Tests only.
	afterSnapshot func()

	restartMutex    sync.Mutex
	restartTimer    *time.Timer
	restartAttempts int
}
