package maintenance

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics for monitoring service.
var (
	// removedCount prometheus metric.
	removedCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Help:      "Number of transactions removed by maintenance tasks",
			Name:      "maintenance_removed_tx_total",
			Namespace: "ledgerpool",
		},
		[]string{"reason"},
	)
	// rebroadcastCount prometheus metric.
	rebroadcastCount = prometheus.NewCounter(
		prometheus.CounterOpts{
			Help:      "Number of transactions announced again",
			Name:      "rebroadcast_tx_total",
			Namespace: "ledgerpool",
		},
	)
	// tickFailures prometheus metric.
	tickFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Help:      "Number of aborted maintenance ticks",
			Name:      "maintenance_failed_ticks_total",
			Namespace: "ledgerpool",
		},
		[]string{"task"},
	)
	// entryFailures prometheus metric.
	entryFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Help:      "Number of pooled transactions skipped by maintenance tasks due to errors",
			Name:      "maintenance_failed_entries_total",
			Namespace: "ledgerpool",
		},
		[]string{"task"},
	)
	// deferredCount prometheus metric.
	deferredCount = prometheus.NewCounter(
		prometheus.CounterOpts{
			Help:      "Number of transactions kept until the next re-validation",
			Name:      "maintenance_deferred_tx_total",
			Namespace: "ledgerpool",
		},
	)
)

func init() {
	prometheus.MustRegister(
		removedCount,
		rebroadcastCount,
		tickFailures,
		entryFailures,
		deferredCount,
	)
}
