package db

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	compactionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "logrange_db_compaction_duration_seconds",
			Help:    "Duration of database compactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	compactionErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logrange_db_compaction_errors_total",
			Help: "Total number of failed database compactions",
		},
	)

	walCheckpoints = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logrange_db_wal_checkpoints_total",
			Help: "Total number of WAL checkpoint operations",
		},
	)

	dbSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "logrange_db_size_bytes",
			Help: "Database size in bytes including WAL files",
		},
	)
)

func CompactionDurationLog(duration time.Duration) {
	compactionDuration.Observe(duration.Seconds())
}

func CompactionErrorInc() {
	compactionErrors.Inc()
}

func WALCheckpointInc() {
	walCheckpoints.Inc()
}

func DBSizeLog(sizeBytes int64) {
	dbSize.Set(float64(sizeBytes))
}
