package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatroom_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatroom_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatroom_messages_sent_total",
			Help: "Total messages sent",
		},
	)

	ModerationActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatroom_moderation_actions_total",
			Help: "Total moderation actions",
		},
		[]string{"action"},
	)

	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatroom_events_published_total",
			Help: "Room events accepted for fan-out",
		},
		[]string{"type"},
	)

	EventsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatroom_events_dropped_total",
			Help: "Room events or deliveries dropped",
		},
		[]string{"reason"},
	)

	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatroom_websocket_connections",
			Help: "Open websocket connections",
		},
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatroom_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"bucket"},
	)

	RelayLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chatroom_relay_publish_seconds",
			Help:    "Redis relay publish latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		},
	)
)

// Running totals persisted by Service snapshots.
var (
	HTTPRequests      int64
	HTTPBytesOut      int64
	WebSocketMessages int64
	WebSocketBytesOut int64
	EventsPublished   int64
	EventsDropped     int64
)

func RecordHTTP(bytesOut int64) {
	atomic.AddInt64(&HTTPRequests, 1)
	atomic.AddInt64(&HTTPBytesOut, bytesOut)
}

func RecordWebSocketWrite(bytes int) {
	atomic.AddInt64(&WebSocketMessages, 1)
	atomic.AddInt64(&WebSocketBytesOut, int64(bytes))
}

func RecordEventPublished(eventType string) {
	atomic.AddInt64(&EventsPublished, 1)
	EventsPublishedTotal.WithLabelValues(eventType).Inc()
}

func RecordEventDropped(reason string) {
	atomic.AddInt64(&EventsDropped, 1)
	EventsDroppedTotal.WithLabelValues(reason).Inc()
}
