// Package metrics exposes Prometheus collectors for the bridge.
package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "qian"

// Registry groups the collectors registered on one prometheus.Registry.
type Registry struct {
	registry *prometheus.Registry

	Navigations     *prometheus.CounterVec
	NavigationTime  prometheus.Histogram
	WatchSessions   prometheus.Gauge
	WatchFailures   prometheus.Counter
	RawEvents       prometheus.Counter
	TreeChanged     prometheus.Counter
	EventsPublished *prometheus.CounterVec
	EventsDropped   *prometheus.CounterVec
	Subscribers     *prometheus.GaugeVec
	ShellCommands   *prometheus.CounterVec
	WSConnections   prometheus.Gauge
	WSMessages      *prometheus.CounterVec
}

// New builds a Registry. Process and Go runtime collectors are included when
// withRuntime is true.
func New(withRuntime bool) *Registry {
	registry := prometheus.NewRegistry()
	if withRuntime {
		registry.MustRegister(
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			collectors.NewGoCollector(),
		)
	}

	r := &Registry{
		registry: registry,
		Navigations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "navigations_total",
			Help:      "Directory navigation requests by outcome.",
		}, []string{"result"}),
		NavigationTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "navigation_duration_seconds",
			Help:      "Time spent resolving, listing and re-watching a directory.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		}),
		WatchSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "watch_sessions_active",
			Help:      "Directory watches currently held by the bridge.",
		}),
		WatchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watch_unavailable_total",
			Help:      "Navigations that completed without a live watch.",
		}),
		RawEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watch_events_total",
			Help:      "Raw filesystem events received for the browsed directory.",
		}),
		TreeChanged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tree_changed_signals_total",
			Help:      "Coalesced change signals sent to the UI.",
		}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_events_published_total",
			Help:      "Events published on an event bus.",
		}, []string{"bus", "type"}),
		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_events_dropped_total",
			Help:      "Events dropped because a subscriber buffer was full.",
		}, []string{"bus", "type"}),
		Subscribers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bus_subscribers",
			Help:      "Current subscribers of an event bus.",
		}, []string{"bus"}),
		ShellCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shell_commands_total",
			Help:      "OS integration commands by action and outcome.",
		}, []string{"action", "result"}),
		WSConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Connected UI websocket clients.",
		}),
		WSMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "Websocket messages by direction and type.",
		}, []string{"direction", "type"}),
	}

	registry.MustRegister(
		r.Navigations,
		r.NavigationTime,
		r.WatchSessions,
		r.WatchFailures,
		r.RawEvents,
		r.TreeChanged,
		r.EventsPublished,
		r.EventsDropped,
		r.Subscribers,
		r.ShellCommands,
		r.WSConnections,
		r.WSMessages,
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry for tests and custom exporters.
func (r *Registry) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.registry
}

func (r *Registry) IncNavigation(result string) {
	if r == nil {
		return
	}
	r.Navigations.WithLabelValues(normalizeLabel(result)).Inc()
}

func (r *Registry) ObserveNavigation(seconds float64) {
	if r == nil {
		return
	}
	r.NavigationTime.Observe(seconds)
}

func (r *Registry) SetWatchActive(active bool) {
	if r == nil {
		return
	}
	if active {
		r.WatchSessions.Set(1)
		return
	}
	r.WatchSessions.Set(0)
}

func (r *Registry) IncWatchUnavailable() {
	if r == nil {
		return
	}
	r.WatchFailures.Inc()
}

func (r *Registry) IncRawEvent() {
	if r == nil {
		return
	}
	r.RawEvents.Inc()
}

func (r *Registry) IncTreeChanged() {
	if r == nil {
		return
	}
	r.TreeChanged.Inc()
}

func (r *Registry) IncEventPublished(bus, eventType string) {
	if r == nil {
		return
	}
	r.EventsPublished.WithLabelValues(normalizeLabel(bus), normalizeLabel(eventType)).Inc()
}

func (r *Registry) IncEventDropped(bus, eventType string) {
	if r == nil {
		return
	}
	r.EventsDropped.WithLabelValues(normalizeLabel(bus), normalizeLabel(eventType)).Inc()
}

func (r *Registry) SetSubscribers(bus string, count int) {
	if r == nil {
		return
	}
	r.Subscribers.WithLabelValues(normalizeLabel(bus)).Set(float64(count))
}

func (r *Registry) IncShellCommand(action string, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.ShellCommands.WithLabelValues(normalizeLabel(action), result).Inc()
}

func (r *Registry) AddWSConnection(delta int) {
	if r == nil {
		return
	}
	r.WSConnections.Add(float64(delta))
}

func (r *Registry) IncWSMessage(direction, messageType string) {
	if r == nil {
		return
	}
	r.WSMessages.WithLabelValues(normalizeLabel(direction), normalizeLabel(messageType)).Inc()
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return value
}
