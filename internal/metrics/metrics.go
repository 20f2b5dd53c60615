package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "transync_connections_active",
			Help: "Current number of registered websocket connections",
		},
	)

	ConnectionsByRole = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "transync_connections_by_role",
			Help: "Current number of registered connections by role",
		},
		[]string{"role"},
	)

	NotificationsDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "transync_notifications_delivered_total",
			Help: "Total notifications successfully routed to at least one connection",
		},
	)

	NotificationsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "transync_notifications_dropped_total",
			Help: "Total notifications dropped after the retry budget was exhausted",
		},
	)

	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "transync_dispatch_queue_depth",
			Help: "Current depth of the notification dispatch queue",
		},
	)

	CacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "transync_cache_hits_total",
			Help: "Total cache lookups served from a live entry",
		},
	)

	CacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "transync_cache_misses_total",
			Help: "Total cache lookups that invoked the compute callback",
		},
	)

	EventsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transync_events_emitted_total",
			Help: "Total events emitted on the internal bus by type",
		},
		[]string{"type"},
	)

	RulesFired = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transync_rules_fired_total",
			Help: "Total rule firings by rule id",
		},
		[]string{"rule"},
	)
)

var registerOnce sync.Once

// Register installs all collectors on the default registry. Safe to call
// more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			ConnectionsActive,
			ConnectionsByRole,
			NotificationsDelivered,
			NotificationsDropped,
			QueueDepth,
			CacheHits,
			CacheMisses,
			EventsEmitted,
			RulesFired,
		)
	})
}

// Handler returns the HTTP handler serving the prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
