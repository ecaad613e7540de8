// Package metrics defines the Prometheus instrumentation for playlist-sync.
// All metrics are prefixed with "playlist_sync_" and registered on the
// default registry at init.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playlist_sync_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "playlist_sync_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Sync metrics
var (
	SyncDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playlist_sync_decisions_total",
			Help: "Conflict resolver decisions by kind",
		},
		[]string{"kind"},
	)

	PushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playlist_sync_pushes_total",
			Help: "Pushes to the remote store by resource and result",
		},
		[]string{"resource", "result"},
	)

	CompareDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "playlist_sync_compare_duration_seconds",
			Help:    "Snapshot comparison duration in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		},
	)

	TruncatedPlaylistsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "playlist_sync_truncated_playlists_total",
			Help: "Playlists dropped because the playlist limit was exceeded",
		},
	)

	ConflictsPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "playlist_sync_conflicts_pending",
			Help: "1 while a conflict is waiting for the user to choose",
		},
	)
)

// Store metrics
var (
	StoreQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "playlist_sync_store_query_duration_seconds",
			Help:    "Row store operation duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"driver", "operation"},
	)
)

// ObserveCompare records one comparison duration. Its signature matches
// playlist.WithDurationObserver.
func ObserveCompare(d time.Duration) {
	CompareDuration.Observe(d.Seconds())
}

// AddTruncated records playlists dropped by the bound. Its signature
// matches playlist.WithDropObserver.
func AddTruncated(n int) {
	TruncatedPlaylistsTotal.Add(float64(n))
}
