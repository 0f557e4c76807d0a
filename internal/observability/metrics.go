package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tripmatch"

var (
	TripsCreated     = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "trips_created_total", Help: "Total number of trips posted"})
	MatchesSuggested = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "matches_suggested_total", Help: "Total number of matches persisted as suggestions"})
	MatchesExpired   = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "matches_expired_total", Help: "Total number of matches expired by the sweeper"})
	MatchTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "match_transitions_total", Help: "Match status transitions"},
		[]string{"to"},
	)

	Evaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "evaluations_total", Help: "Trip pair evaluations by outcome"},
		[]string{"outcome"},
	)
	MatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "match_latency_seconds", Help: "Time to find matches for one trip"})

	DirectionsFallbacks = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "directions_fallbacks_total", Help: "Route lookups answered by the straight-line fallback"})
	Notifications       = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "notifications_total", Help: "Match notifications by result"},
		[]string{"result"},
	)

	EventsConsumed = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "consumer_messages_consumed_total", Help: "Total trip event messages consumed"})
	EventsInvalid  = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "consumer_messages_invalid_total", Help: "Total invalid messages received"})
	EventErrors    = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "consumer_handler_errors_total", Help: "Total events whose handling failed after retries"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
