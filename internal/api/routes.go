package api

import (
	"net/http"
	"time"

	"qian/internal/bridge"
	"qian/internal/event"
	"qian/internal/logging"
	"qian/internal/metrics"
	"qian/internal/shell"
	"qian/internal/watcher"
)

type RouteConfig struct {
	Controller     Controller
	Bus            *event.Bus[bridge.Signal]
	Logger         *logging.Logger
	Metrics        *metrics.Registry
	AuthToken      string
	AllowedOrigins []string
	WatchStats     func() watcher.Metrics
	Launched       func() []shell.Launched
	Version        string
	StartedAt      time.Time
	// MessagesPerSecond and MessageBurst bound inbound websocket messages.
	MessagesPerSecond float64
	MessageBurst      int
}

func RegisterRoutes(mux *http.ServeMux, config RouteConfig) {
	rest := &RestHandler{
		Controller: config.Controller,
		Logger:     config.Logger,
		WatchStats: config.WatchStats,
		Launched:   config.Launched,
		StartedAt:  config.StartedAt,
		Version:    config.Version,
	}
	wrap := func(handler http.Handler) http.Handler {
		return loggingMiddleware(config.Logger, handler)
	}

	mux.Handle("/ws", wrap(securityHeadersMiddleware(cacheControlNoStore, &BridgeHandler{
		Controller:        config.Controller,
		Bus:               config.Bus,
		Logger:            config.Logger,
		Metrics:           config.Metrics,
		AuthToken:         config.AuthToken,
		AllowedOrigins:    config.AllowedOrigins,
		MessagesPerSecond: config.MessagesPerSecond,
		MessageBurst:      config.MessageBurst,
	})))
	mux.Handle("/ws/logs", wrap(securityHeadersMiddleware(cacheControlNoStore, &LogsHandler{
		Logger:         config.Logger,
		AuthToken:      config.AuthToken,
		AllowedOrigins: config.AllowedOrigins,
	})))
	mux.Handle("/api/session", wrap(restHandler(config.AuthToken, config.AllowedOrigins, rest.handleSession)))
	mux.Handle("/api/tree", wrap(restHandler(config.AuthToken, config.AllowedOrigins, rest.handleTree)))
	mux.Handle("/api/open", wrap(restHandler(config.AuthToken, config.AllowedOrigins, rest.handleOpen)))
	mux.Handle("/api/reveal", wrap(restHandler(config.AuthToken, config.AllowedOrigins, rest.handleReveal)))
	mux.Handle("/api/terminal", wrap(restHandler(config.AuthToken, config.AllowedOrigins, rest.handleTerminal)))
	mux.Handle("/api/preferences", wrap(restHandler(config.AuthToken, config.AllowedOrigins, rest.handlePreferences)))
	mux.Handle("/api/status", wrap(restHandler(config.AuthToken, config.AllowedOrigins, rest.handleStatus)))
	mux.Handle("/api/logs", wrap(restHandler(config.AuthToken, config.AllowedOrigins, rest.handleLogs)))
	if config.Metrics != nil {
		mux.Handle("/metrics", authHandler(config.AuthToken, config.Metrics.Handler()))
	}
}
