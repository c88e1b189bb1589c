package fetcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	windowsFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logrange_fetcher_windows_total",
			Help: "Total number of block windows fetched successfully",
		},
	)

	logsFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logrange_fetcher_logs_total",
			Help: "Total number of logs fetched",
		},
	)

	timeoutRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logrange_fetcher_timeout_retries_total",
			Help: "Total number of windows repeated after a timeout",
		},
	)

	bisections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logrange_fetcher_bisections_total",
			Help: "Total number of windows split in half after a provider error",
		},
	)

	abandonedWindows = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logrange_fetcher_abandoned_windows_total",
			Help: "Total number of windows given up on after exhausting retries",
		},
	)

	windowSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "logrange_fetcher_window_size_blocks",
			Help:    "Size of successfully fetched windows in blocks",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10), //nolint:mnd
		},
	)

	lastBlockReached = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "logrange_fetcher_last_block_reached",
			Help: "Last block reached by the most recent fetch",
		},
	)
)

func WindowFetchedLog(size uint64, logs int) {
	windowsFetched.Inc()
	logsFetched.Add(float64(logs))
	windowSize.Observe(float64(size))
}

func TimeoutRetryInc() {
	timeoutRetries.Inc()
}

func BisectionInc() {
	bisections.Inc()
}

func AbandonedWindowInc() {
	abandonedWindows.Inc()
}

func LastBlockReachedSet(block uint64) {
	lastBlockReached.Set(float64(block))
}
