// Package metrics exposes prometheus collectors for the command executor,
// the persistence layer and the connection handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "duskdb_commands_total",
		Help: "Commands executed, partitioned by command name and outcome.",
	}, []string{"command", "status"})

	CommandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "duskdb_command_duration_seconds",
		Help:    "Command execution latency.",
		Buckets: prometheus.ExponentialBuckets(0.000001, 4, 12),
	}, []string{"command"})

	KeysLive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "duskdb_keys_live",
		Help: "Live keys currently held in memory.",
	})

	KeysExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duskdb_keys_expired_total",
		Help: "Keys removed because their expiration passed.",
	})

	WALAppendsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duskdb_wal_appends_total",
		Help: "Records appended to the write-ahead log.",
	})

	WALFlushErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duskdb_wal_flush_errors_total",
		Help: "Background WAL fsync failures.",
	})

	WALSizeBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "duskdb_wal_size_bytes",
		Help: "Total size of the write-ahead log on disk.",
	})

	SnapshotsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "duskdb_snapshots_total",
		Help: "Snapshots written, partitioned by trigger.",
	}, []string{"trigger"})

	SnapshotDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "duskdb_snapshot_duration_seconds",
		Help:    "Time spent writing a snapshot to disk.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	})

	ConnectionsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "duskdb_connections_open",
		Help: "Client connections currently open.",
	})
)

// Handler returns the HTTP handler serving the prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
