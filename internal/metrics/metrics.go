// Package metrics defines the Prometheus collectors of the chat backend.
//
// Collectors are registered on the Registerer given to New, so tests can
// use a fresh prometheus.NewRegistry() each.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "desacordo"

type Metrics struct {
	// Sessions is the number of identified websocket sessions.
	Sessions prometheus.Gauge
	// OnlineUsers is the number of users with at least one live session.
	OnlineUsers prometheus.Gauge

	// EventsTotal counts inbound events by kind.
	EventsTotal *prometheus.CounterVec
	// EventErrorsTotal counts rejected inbound events.
	// Labels:
	//   - kind: the inbound event kind, or "frame" when it could not be decoded
	//   - error_kind: authorization, not_found, validation or internal
	EventErrorsTotal *prometheus.CounterVec
	// EventDuration measures router handling time per event kind.
	EventDuration *prometheus.HistogramVec

	FramesDelivered prometheus.Counter
	// FramesDropped counts frames that never reached a socket.
	// Label:
	//   - reason: "closed" (session already gone) or "overflow" (send queue full)
	FramesDropped *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Sessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Current number of identified websocket sessions.",
		}),
		OnlineUsers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_users",
			Help:      "Current number of users with at least one live session.",
		}),
		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Total number of inbound events, by kind.",
		}, []string{"kind"}),
		EventErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_errors_total",
			Help:      "Total number of inbound events that were rejected.",
		}, []string{"kind", "error_kind"}),
		EventDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_duration_seconds",
			Help:      "Time spent handling one inbound event.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		FramesDelivered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_delivered_total",
			Help:      "Total number of outbound frames queued to a live session.",
		}),
		FramesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Total number of outbound frames that were dropped.",
		}, []string{"reason"}),
	}
}
