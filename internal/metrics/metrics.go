package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"transferdesk/internal/errors"
)

var (
	// Submitter
	SubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "transferdesk",
		Subsystem: "submitter",
		Name:      "submissions_total",
		Help:      "Total submissions by outcome",
	}, []string{"outcome"})

	ConfirmationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "transferdesk",
		Subsystem: "submitter",
		Name:      "confirmation_duration_seconds",
		Help:      "Time spent waiting for the record transaction to be mined",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 15, 30, 60, 120, 300},
	})

	Loading = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "transferdesk",
		Subsystem: "submitter",
		Name:      "loading",
		Help:      "1 while waiting for a confirmation",
	})

	// Ledger
	LedgerRefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "transferdesk",
		Subsystem: "ledger",
		Name:      "refreshes_total",
		Help:      "Total ledger refreshes by outcome",
	}, []string{"outcome"})

	LedgerSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "transferdesk",
		Subsystem: "ledger",
		Name:      "transactions",
		Help:      "Number of records in the last successful fetch",
	})

	// Counter
	TransactionCount = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "transferdesk",
		Subsystem: "counter",
		Name:      "transaction_count",
		Help:      "Last stored on-chain record count",
	})

	// Errors
	ErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "transferdesk",
		Subsystem: "errors",
		Name:      "total",
		Help:      "Total handled errors by kind and component",
	}, []string{"kind", "component"})
)

// Outcome labels
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeBusy    = "busy"
)

// ObserveErrors 将处理过的错误计入 ErrorsTotal
func ObserveErrors(h *errors.ErrorHandler) {
	h.AddCallback(func(err *errors.TransferError) {
		ErrorsTotal.WithLabelValues(err.Kind.String(), err.Component).Inc()
	})
}
