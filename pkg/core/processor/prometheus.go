package processor

import (
	"errors"

	"github.com/nspcc-dev/ledgerpool/pkg/core/mempool"
	"github.com/nspcc-dev/ledgerpool/pkg/core/transaction"
	"github.com/prometheus/client_golang/prometheus"
)

// Admission results.
const (
	accepted          = "accepted"
	malformed         = "malformed"
	duplicate         = "duplicate"
	invalid           = "invalid"
	notCurrent        = "not_current"
	poolFull          = "pool_full"
	insufficientFunds = "insufficient_funds"
	internalErr       = "internal"
)

// Transaction sources.
const (
	sourceLocal   = "local"
	sourcePeer    = "peer"
	sourceRestore = "restore"
)

// Metrics for monitoring service.
var (
	// admissionCount prometheus metric.
	admissionCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Help:      "Number of transactions passed through the admission pipeline",
			Name:      "admitted_tx_total",
			Namespace: "ledgerpool",
		},
		[]string{"source", "result"},
	)
	// mempoolUnsortedTx prometheus metric.
	mempoolUnsortedTx = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Help:      "Mempool unsorted transactions",
			Name:      "mempool_unsorted_tx",
			Namespace: "ledgerpool",
		},
	)
	// evictedCount prometheus metric.
	evictedCount = prometheus.NewCounter(
		prometheus.CounterOpts{
			Help:      "Number of transactions evicted from the full pool",
			Name:      "evicted_tx_total",
			Namespace: "ledgerpool",
		},
	)
)

func init() {
	prometheus.MustRegister(
		admissionCount,
		mempoolUnsortedTx,
		evictedCount,
	)
}

// UpdatePoolMetrics updates the pool size metric, it's suitable for
// mempool.WithMetricsCallback.
func UpdatePoolMetrics(unsortedTxnLen int) {
	mempoolUnsortedTx.Set(float64(unsortedTxnLen))
}

func admissionResult(err error) string {
	switch {
	case err == nil:
		return accepted
	case errors.Is(err, transaction.ErrMalformed):
		return malformed
	case errors.Is(err, mempool.ErrDup):
		return duplicate
	case errors.Is(err, mempool.ErrOOM):
		return poolFull
	case errors.Is(err, mempool.ErrInsufficientFunds), errors.Is(err, mempool.ErrConflict):
		return insufficientFunds
	case transaction.IsPermanent(err):
		return invalid
	case transaction.IsTransient(err):
		return notCurrent
	default:
		return internalErr
	}
}

func updateAdmissionMetrics(source string, err error) {
	admissionCount.WithLabelValues(source, admissionResult(err)).Inc()
}
