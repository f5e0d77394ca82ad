package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"qian/internal/api"
	"qian/internal/bridge"
	"qian/internal/config"
	"qian/internal/event"
	"qian/internal/logging"
	"qian/internal/metrics"
	"qian/internal/shell"
	"qian/internal/watcher"
)

const httpServerShutdownTimeout = 5 * time.Second

// App owns every long-lived component of one bridge process.
type App struct {
	cfg        Config
	logger     *logging.Logger
	metrics    *metrics.Registry
	watcher    *watcher.Watcher
	bus        *event.Bus[bridge.Signal]
	store      *config.Store
	launcher   *shell.Launcher
	controller *bridge.Controller
	httpServer *http.Server
	listener   net.Listener
	shutdown   *shutdownCoordinator
}

type Options struct {
	Version string
	// Runner replaces the OS command runner of the shell launcher.
	Runner shell.Runner
}

// New wires the bridge. A missing watch subsystem or unreadable preferences
// degrade the bridge instead of failing start-up.
func New(ctx context.Context, cfg Config, logger *logging.Logger, options Options) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	registry := metrics.New(cfg.RuntimeMetrics)

	app := &App{
		cfg:      cfg,
		logger:   logger,
		metrics:  registry,
		shutdown: newShutdownCoordinator(logger),
	}

	var watch watcher.Watch
	source, err := watcher.NewWithOptions(watcher.Options{
		Logger:     logger,
		Debounce:   cfg.Debounce,
		MaxWatches: cfg.MaxWatches,
		ErrorHandler: func(err error) {
			logger.Error("watcher stopped", map[string]string{
				"qian.category": "watcher",
				"qian.source":   "backend",
				"error":         err.Error(),
			})
		},
	})
	if err != nil {
		logger.Warn("watch subsystem unavailable", map[string]string{
			"error": err.Error(),
		})
	} else {
		app.watcher = source
		watch = source
	}

	app.bus = event.NewBus[bridge.Signal](ctx, event.BusOptions{Name: "ui", Metrics: registry, Logger: logger})
	app.store = config.NewStore(cfg.PreferencesPath(), config.StoreOptions{Logger: logger})
	if _, err := app.store.Load(ctx); err != nil {
		logger.Warn("preferences not persisted", map[string]string{
			"path":  app.store.Path(),
			"error": err.Error(),
		})
	}
	app.launcher = shell.NewLauncher(shell.Options{Runner: options.Runner, Logger: logger, Metrics: registry})

	controller, err := bridge.NewController(bridge.Options{
		Home:         cfg.Home,
		StartDir:     cfg.StartDir,
		Watch:        watch,
		Launcher:     app.launcher,
		Store:        app.store,
		Bus:          app.bus,
		Logger:       logger,
		Metrics:      registry,
		ChangeWindow: cfg.ChangeWindow,
	})
	if err != nil {
		app.closeWatcher()
		app.bus.Close()
		return nil, fmt.Errorf("create bridge: %w", err)
	}
	app.controller = controller
	app.openStartDirectory(ctx)

	mux := http.NewServeMux()
	routes := api.RouteConfig{
		Controller:        controller,
		Bus:               app.bus,
		Logger:            logger,
		Metrics:           registry,
		AuthToken:         cfg.AuthToken,
		AllowedOrigins:    cfg.AllowedOrigins,
		Launched:          app.launcher.Running,
		Version:           options.Version,
		StartedAt:         time.Now(),
		MessagesPerSecond: cfg.MessagesPerSecond,
		MessageBurst:      cfg.MessageBurst,
	}
	if app.watcher != nil {
		routes.WatchStats = app.watcher.Metrics
	}
	api.RegisterRoutes(mux, routes)
	app.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	app.shutdown.Add("http", func(ctx context.Context) error {
		return app.httpServer.Shutdown(ctx)
	})
	app.shutdown.Add("bridge", func(context.Context) error {
		return app.controller.Close()
	})
	app.shutdown.Add("bus", func(context.Context) error {
		app.bus.Close()
		return nil
	})
	app.shutdown.Add("watcher", func(context.Context) error {
		return app.closeWatcher()
	})
	return app, nil
}

// Controller exposes the bridge for embedding callers.
func (app *App) Controller() *bridge.Controller {
	return app.controller
}

// Listen binds the configured address.
func (app *App) Listen() error {
	if app.listener != nil {
		return nil
	}
	listener, err := net.Listen("tcp", app.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", app.cfg.Addr, err)
	}
	app.listener = listener
	return nil
}

// Addr reports the bound address once Listen has succeeded.
func (app *App) Addr() string {
	if app.listener == nil {
		return ""
	}
	return app.listener.Addr().String()
}

// Run serves until ctx is done or the server fails, then shuts down every
// component.
func (app *App) Run(ctx context.Context) error {
	if err := app.Listen(); err != nil {
		_ = app.Close()
		return err
	}
	app.logger.Info("qian listening", map[string]string{
		"addr":  app.Addr(),
		"start": app.controller.Current(),
	})

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- app.httpServer.Serve(app.listener)
	}()

	var runErr error
	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr = err
			app.logger.Error("http server stopped", map[string]string{
				"error": err.Error(),
			})
		}
	case <-ctx.Done():
	}

	if err := app.Close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// Close runs the shutdown phases once.
func (app *App) Close() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpServerShutdownTimeout)
	defer cancel()
	err := app.shutdown.Run(shutdownCtx)
	_ = app.logger.Sync()
	return err
}

// openStartDirectory lists and watches the start directory, falling back to
// home when it cannot be opened.
func (app *App) openStartDirectory(ctx context.Context) {
	start := app.controller.Current()
	_, err := app.controller.RequestTree(ctx, start)
	if err == nil {
		return
	}
	app.logger.Warn("start directory unavailable", map[string]string{
		"path":  start,
		"kind":  string(bridge.KindOf(err)),
		"error": err.Error(),
	})
	if start == app.controller.Home() {
		return
	}
	if _, err := app.controller.RequestTree(ctx, app.controller.Home()); err != nil {
		app.logger.Warn("home directory unavailable", map[string]string{
			"path":  app.controller.Home(),
			"error": err.Error(),
		})
	}
}

func (app *App) closeWatcher() error {
	if app.watcher == nil {
		return nil
	}
	return app.watcher.Close()
}
