package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "courier_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	UsersRegistered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "courier_users_registered_total",
			Help: "Total users registered",
		},
	)

	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "courier_messages_sent_total",
			Help: "Total messages accepted for delivery",
		},
	)

	QueuePushFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "courier_queue_push_failures_total",
			Help: "Best-effort queue pushes that failed after the durable write",
		},
	)

	QueueEntriesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "courier_queue_entries_skipped_total",
			Help: "Queue entries dropped because they failed to decode",
		},
	)

	PollRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_poll_requests_total",
			Help: "Poll requests by outcome",
		},
		[]string{"outcome"}, // "ok", "empty" or "unavailable"
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	BlockedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_blocked_requests_total",
			Help: "Total blocked requests",
		},
		[]string{"reason"},
	)

	// Infrastructure metrics
	RedisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "courier_redis_latency_seconds",
			Help:    "Redis operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		},
	)

	DurableWriteLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "courier_durable_write_latency_seconds",
			Help:    "Durable log append latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1},
		},
	)
)
