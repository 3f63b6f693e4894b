package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// ledgerOps counts ledger operations by op and result.
	// result is one of: ok, already_parked, blocked, invalid, transient, error.
	ledgerOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parking_ledger_operations_total",
			Help: "Ledger operations by operation and result.",
		},
		[]string{"op", "result"},
	)

	// feeCharged records fees of closed sessions in PLN.
	feeCharged = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "parking_fee_pln",
			Help:    "Fee charged per closed session in PLN.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 5000, 10000, 50000},
		},
	)

	// plateReads counts recognition attempts by result (ok, invalid_format,
	// or a ReadError code).
	plateReads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parking_plate_reads_total",
			Help: "Plate recognition attempts by result.",
		},
		[]string{"result"},
	)

	// ocrFallbacks counts second recognition passes on the raw crop.
	ocrFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "parking_ocr_fallback_total",
			Help: "Recognition fallbacks to the unprocessed crop.",
		},
	)
)

func init() {
	prometheus.MustRegister(ledgerOps, feeCharged, plateReads, ocrFallbacks)
}
