// Package bridge keeps the browsed directory, its listing and its single live
// watch consistent, and relays change signals to the UI.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"qian/internal/config"
	"qian/internal/event"
	"qian/internal/fsutil"
	"qian/internal/logging"
	"qian/internal/metrics"
	"qian/internal/notifier"
	"qian/internal/snapshot"
	"qian/internal/watcher"
)

const DefaultChangeWindow = 150 * time.Millisecond

// Lister produces directory listings.
type Lister interface {
	List(absPath string) (snapshot.Snapshot, error)
}

// Launcher hands paths to OS collaborators.
type Launcher interface {
	Open(path string) error
	Reveal(path string) error
	OpenTerminal(app, dir string) error
}

// PreferenceStore persists user preferences.
type PreferenceStore interface {
	Current() config.Preferences
	Save(ctx context.Context, prefs config.Preferences) error
}

type Options struct {
	Home     string
	StartDir string
	Lister   Lister
	Watch    watcher.Watch
	Launcher Launcher
	Store    PreferenceStore
	Bus      *event.Bus[Signal]
	Logger   *logging.Logger
	Metrics  *metrics.Registry
	// ChangeWindow coalesces raw events into one tree_changed signal. A
	// negative value signals every event.
	ChangeWindow time.Duration
}

// SessionInfo is the start-up state handed to a UI client.
type SessionInfo struct {
	Current     string             `json:"current"`
	Home        string             `json:"home"`
	Root        string             `json:"root"`
	Preferences config.Preferences `json:"preferences"`
}

// Status reports the navigation and watch state.
type Status struct {
	Current       string        `json:"current"`
	WatchState    watcher.State `json:"watch_state"`
	WatchPath     string        `json:"watch_path,omitempty"`
	ChangePending bool          `json:"change_pending"`
}

// Controller serializes navigations. While a navigation runs no reader sees
// the browsed directory, the watch and the notifier out of step.
type Controller struct {
	home     string
	lister   Lister
	launcher Launcher
	store    PreferenceStore
	bus      *event.Bus[Signal]
	logger   *logging.Logger
	metrics  *metrics.Registry
	window   time.Duration

	mutex    sync.Mutex
	current  string
	session  *watcher.Session
	notifier *notifier.Notifier
	closed   bool
}

func NewController(options Options) (*Controller, error) {
	home := strings.TrimSpace(options.Home)
	if home == "" || !filepath.IsAbs(home) {
		return nil, fmt.Errorf("%w: home %q must be absolute", fsutil.ErrInvalidPath, options.Home)
	}
	home = filepath.Clean(home)

	start := home
	if strings.TrimSpace(options.StartDir) != "" {
		resolved, err := fsutil.NewResolver(home, home).Resolve(options.StartDir)
		if err != nil {
			return nil, err
		}
		start = resolved
	}

	lister := options.Lister
	if lister == nil {
		lister = snapshot.New(nil)
	}
	window := options.ChangeWindow
	switch {
	case window == 0:
		window = DefaultChangeWindow
	case window < 0:
		window = 0
	}

	return &Controller{
		home:     home,
		lister:   lister,
		launcher: options.Launcher,
		store:    options.Store,
		bus:      options.Bus,
		logger:   options.Logger,
		metrics:  options.Metrics,
		window:   window,
		current:  start,
		session:  watcher.NewSession(options.Watch, options.Logger),
	}, nil
}

// RequestTree navigates to raw. Resolution and listing failures leave the
// browsed directory and the live watch untouched. A watch that cannot be
// started is reported as an error signal; the navigation still succeeds.
func (c *Controller) RequestTree(ctx context.Context, raw string) (snapshot.Snapshot, error) {
	started := time.Now()
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return snapshot.Snapshot{}, err
		}
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed {
		return snapshot.Snapshot{}, ErrClosed
	}

	path, err := c.resolveLocked(raw)
	if err != nil {
		c.navigationFailed(raw, err)
		return snapshot.Snapshot{}, err
	}
	listing, err := c.lister.List(path)
	if err != nil {
		c.navigationFailed(path, err)
		return snapshot.Snapshot{}, err
	}

	c.current = path
	c.retireWatchLocked()
	c.startWatchLocked(path)

	c.publish(Signal{Type: SignalTreeSnapshot, Path: path, Snapshot: &listing})
	c.metrics.IncNavigation("ok")
	c.metrics.ObserveNavigation(time.Since(started).Seconds())
	c.logDebug("navigated", map[string]string{
		"path":    path,
		"entries": fmt.Sprint(len(listing.Entries)),
	})
	return listing, nil
}

// Current returns the browsed directory.
func (c *Controller) Current() string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.current
}

func (c *Controller) Home() string {
	return c.home
}

// Resolve normalizes raw against the browsed directory.
func (c *Controller) Resolve(raw string) (string, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.resolveLocked(raw)
}

func (c *Controller) OpenFile(raw string) error {
	path, err := c.Resolve(raw)
	if err != nil {
		return err
	}
	return c.withLauncher(func(launcher Launcher) error {
		return launcher.Open(path)
	})
}

func (c *Controller) Reveal(raw string) error {
	path, err := c.Resolve(raw)
	if err != nil {
		return err
	}
	return c.withLauncher(func(launcher Launcher) error {
		return launcher.Reveal(path)
	})
}

// OpenInTerminal starts app in raw. A blank app uses the preferred terminal.
func (c *Controller) OpenInTerminal(app, raw string) error {
	path, err := c.Resolve(raw)
	if err != nil {
		return err
	}
	if strings.TrimSpace(app) == "" {
		app = c.Preferences().Terminal
	}
	return c.withLauncher(func(launcher Launcher) error {
		return launcher.OpenTerminal(app, path)
	})
}

func (c *Controller) RevealCurrent() error {
	return c.Reveal(c.Current())
}

func (c *Controller) OpenCurrentInTerminal() error {
	return c.OpenInTerminal("", c.Current())
}

func (c *Controller) Preferences() config.Preferences {
	if c.store == nil {
		return config.DefaultPreferences()
	}
	return c.store.Current()
}

// UpdateTerminalPreference persists prefs and returns what was stored.
func (c *Controller) UpdateTerminalPreference(ctx context.Context, prefs config.Preferences) (config.Preferences, error) {
	if c.store == nil {
		return config.Preferences{}, fmt.Errorf("%w: no preferences store", config.ErrConfigIO)
	}
	prefs.Terminal = strings.TrimSpace(prefs.Terminal)
	if err := c.store.Save(ctx, prefs); err != nil {
		c.logWarn("preferences update failed", map[string]string{
			"error": err.Error(),
			"kind":  string(KindOf(err)),
		})
		return config.Preferences{}, err
	}
	return c.store.Current(), nil
}

func (c *Controller) Session() SessionInfo {
	return SessionInfo{
		Current:     c.Current(),
		Home:        c.home,
		Root:        rootOf(c.home),
		Preferences: c.Preferences(),
	}
}

func (c *Controller) Status() Status {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return Status{
		Current:       c.current,
		WatchState:    c.session.State(),
		WatchPath:     c.session.Path(),
		ChangePending: c.notifier.Pending(),
	}
}

// Close retires the live watch. Later navigations fail with ErrClosed.
func (c *Controller) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.retireWatchLocked()
	return nil
}

func (c *Controller) resolveLocked(raw string) (string, error) {
	return fsutil.NewResolver(c.current, c.home).Resolve(raw)
}

// retireWatchLocked stops the session before its notifier so no callback of
// the old directory can reach a signal once it returns.
func (c *Controller) retireWatchLocked() {
	if err := c.session.Stop(); err != nil {
		c.logWarn("watch stop failed", map[string]string{"error": err.Error()})
	}
	if c.notifier != nil {
		c.notifier.Stop()
		c.notifier = nil
	}
	c.metrics.SetWatchActive(false)
}

func (c *Controller) startWatchLocked(path string) {
	changes := notifier.New(c.window, func() {
		c.metrics.IncTreeChanged()
		c.publish(Signal{Type: SignalTreeChanged, Path: path})
	})
	err := c.session.Start(path, func(event watcher.Event) {
		c.metrics.IncRawEvent()
		if event.Rescan {
			c.logDebug("watch recovered, rescanning", map[string]string{"path": path})
		}
		changes.OnRawEvent(event)
	})
	if err != nil {
		changes.Stop()
		c.metrics.IncWatchUnavailable()
		c.logWarn("watch unavailable", map[string]string{
			"path":  path,
			"error": err.Error(),
		})
		if !errors.Is(err, watcher.ErrWatchUnavailable) {
			err = fmt.Errorf("%w: %w", watcher.ErrWatchUnavailable, err)
		}
		c.publish(Signal{Type: SignalError, Path: path, Error: NewFailure(err)})
		return
	}
	c.notifier = changes
	c.metrics.SetWatchActive(true)
}

func (c *Controller) withLauncher(run func(Launcher) error) error {
	if c.launcher == nil {
		return errors.New("no shell launcher configured")
	}
	return run(c.launcher)
}

func (c *Controller) navigationFailed(path string, err error) {
	kind := KindOf(err)
	c.metrics.IncNavigation(string(kind))
	c.logInfo("navigation rejected", map[string]string{
		"path":  path,
		"kind":  string(kind),
		"error": err.Error(),
	})
}

func (c *Controller) publish(signal Signal) {
	if c.bus == nil {
		return
	}
	if signal.At.IsZero() {
		signal.At = time.Now().UTC()
	}
	c.bus.Publish(signal)
}

func (c *Controller) logDebug(message string, fields map[string]string) {
	if c.logger == nil {
		return
	}
	c.logger.Debug(message, withBridgeFields(fields))
}

func (c *Controller) logInfo(message string, fields map[string]string) {
	if c.logger == nil {
		return
	}
	c.logger.Info(message, withBridgeFields(fields))
}

func (c *Controller) logWarn(message string, fields map[string]string) {
	if c.logger == nil {
		return
	}
	c.logger.Warn(message, withBridgeFields(fields))
}

func withBridgeFields(fields map[string]string) map[string]string {
	merged := make(map[string]string, len(fields)+2)
	merged["qian.category"] = "bridge"
	merged["qian.source"] = "backend"
	for key, value := range fields {
		merged[key] = value
	}
	return merged
}

func rootOf(path string) string {
	return filepath.VolumeName(path) + string(filepath.Separator)
}
