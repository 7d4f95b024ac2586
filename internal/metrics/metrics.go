// Package metrics provides Prometheus instrumentation for the realtime client.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects counters and gauges for the realtime subsystem.
//
// Tracked series:
//   - connection state and reconnect attempts
//   - push events dispatched by type
//   - poll ticks and swallowed poll errors by key
//   - notification store size and unread count
type Metrics struct {
	// Connected reports 1 while the realtime connection is up.
	Connected prometheus.Gauge

	// Reconnects counts reconnect attempts since process start.
	Reconnects prometheus.Counter

	// EventsDispatched counts push events delivered to listeners.
	// Labels: event
	EventsDispatched *prometheus.CounterVec

	// ListenerPanics counts recovered listener panics.
	// Labels: event
	ListenerPanics *prometheus.CounterVec

	// PollTicks counts poll loop ticks.
	// Labels: key
	PollTicks *prometheus.CounterVec

	// PollErrors counts poll failures swallowed by the silent-retry policy.
	// Labels: key
	PollErrors *prometheus.CounterVec

	// ActivePolls is the number of live polling keys.
	ActivePolls prometheus.Gauge

	// Notifications counts stored notifications by ingest path.
	// Labels: source (push|poll)
	Notifications *prometheus.CounterVec

	// UnreadCount is the current unread notification count.
	UnreadCount prometheus.Gauge

	// OnlineUsers is the current size of the push-maintained online set.
	OnlineUsers prometheus.Gauge
}

// New creates Metrics registered against the given registerer. Passing nil
// registers against the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		Connected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "realtime_connected",
			Help: "Whether the realtime connection is currently up (1) or down (0).",
		}),
		Reconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "realtime_reconnect_attempts_total",
			Help: "Reconnect attempts made by the connection client.",
		}),
		EventsDispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_events_dispatched_total",
			Help: "Push events delivered to listeners.",
		}, []string{"event"}),
		ListenerPanics: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_listener_panics_total",
			Help: "Listener panics recovered during event dispatch.",
		}, []string{"event"}),
		PollTicks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_poll_ticks_total",
			Help: "Poll loop ticks by key.",
		}, []string{"key"}),
		PollErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_poll_errors_total",
			Help: "Poll failures swallowed by the retry-on-next-tick policy.",
		}, []string{"key"}),
		ActivePolls: factory.NewGauge(prometheus.GaugeOpts{
			Name: "realtime_active_polls",
			Help: "Number of live polling keys.",
		}),
		Notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_notifications_total",
			Help: "Notifications ingested into the store by source path.",
		}, []string{"source"}),
		UnreadCount: factory.NewGauge(prometheus.GaugeOpts{
			Name: "realtime_notifications_unread",
			Help: "Current unread notification count.",
		}),
		OnlineUsers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "realtime_online_users",
			Help: "Current size of the push-maintained online user set.",
		}),
	}
}

// Nop returns metrics backed by a throwaway registry, for tests and callers
// that do not export metrics.
func Nop() *Metrics {
	return New(prometheus.NewRegistry())
}
