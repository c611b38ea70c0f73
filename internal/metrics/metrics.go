package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestCounter counts HTTP requests by status code, method, and path
	RequestCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raceroom_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"status", "method", "path"},
	)

	// RequestDuration measures HTTP request duration
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "raceroom_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status", "method", "path"},
	)

	// RaceActions counts race room actions by action tag and outcome
	RaceActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raceroom_race_actions_total",
			Help: "Total number of race room actions",
		},
		[]string{"action", "outcome"},
	)

	// ChatMessages counts chat messages posted
	ChatMessages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "raceroom_chat_messages_total",
			Help: "Total number of chat messages posted",
		},
	)

	// SnapshotCacheHits counts snapshot cache hits
	SnapshotCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "raceroom_snapshot_cache_hits_total",
			Help: "Total number of snapshot cache hits",
		},
	)

	// SnapshotCacheMisses counts snapshot cache misses
	SnapshotCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "raceroom_snapshot_cache_misses_total",
			Help: "Total number of snapshot cache misses",
		},
	)
)
