package relay

import "github.com/prometheus/client_golang/prometheus"

var (
	sentCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Help:      "Number of announcements sent to peers",
			Name:      "relay_sent_total",
			Namespace: "ledgerpool",
		},
		[]string{"result"},
	)
	droppedCount = prometheus.NewCounter(
		prometheus.CounterOpts{
			Help:      "Number of announcements dropped because of a full peer queue",
			Name:      "relay_dropped_total",
			Namespace: "ledgerpool",
		},
	)
	receivedCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Help:      "Number of transactions received from peers",
			Name:      "relay_received_total",
			Namespace: "ledgerpool",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		sentCount,
		droppedCount,
		receivedCount,
	)
}
