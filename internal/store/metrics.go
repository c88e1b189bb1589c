package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	logsStored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logrange_store_logs_total",
			Help: "Total number of logs written to the log store by outcome",
		},
		[]string{"outcome"},
	)

	runsRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logrange_store_runs_total",
			Help: "Total number of fetch runs recorded",
		},
	)
)

func LogsStoredAdd(stored, duplicates int) {
	logsStored.WithLabelValues("stored").Add(float64(stored))
	logsStored.WithLabelValues("duplicate").Add(float64(duplicates))
}

func RunRecordedInc() {
	runsRecorded.Inc()
}
