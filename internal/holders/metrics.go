package holders

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transfersDecoded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logrange_holders_transfers_total",
			Help: "Total number of logs seen by the holders collector by outcome",
		},
		[]string{"outcome"},
	)

	holdersCollected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "logrange_holders_collected",
			Help: "Number of unique holders collected",
		},
	)
)

func TransferDecodedInc(outcome string) {
	transfersDecoded.WithLabelValues(outcome).Inc()
}

func HoldersCollectedSet(n int) {
	holdersCollected.Set(float64(n))
}
