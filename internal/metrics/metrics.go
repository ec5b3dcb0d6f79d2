// Package metrics holds the Prometheus collectors for ledger activity.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var CreditsMoved = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "credit_ledger",
	Subsystem: "ledger",
	Name:      "credits_moved_total",
	Help:      "Credits moved through the ledger by category and direction.",
}, []string{"category", "direction"})

var EntriesWritten = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "credit_ledger",
	Subsystem: "ledger",
	Name:      "entries_written_total",
	Help:      "Ledger entries written by transaction type.",
}, []string{"transaction_type"})

var IntegrityViolations = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "credit_ledger",
	Subsystem: "ledger",
	Name:      "integrity_violations_total",
	Help:      "Mutations aborted because an account failed its conservation check.",
})

var TxRetries = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "credit_ledger",
	Subsystem: "ledger",
	Name:      "tx_retries_total",
	Help:      "Ledger transactions retried after a lock timeout or deadlock.",
})

var InsufficientBalance = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "credit_ledger",
	Subsystem: "credit",
	Name:      "insufficient_balance_total",
	Help:      "Consume requests rejected for insufficient credits.",
})

var InconsistentAccounts = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "credit_ledger",
	Subsystem: "reconcile",
	Name:      "inconsistent_accounts",
	Help:      "Accounts found inconsistent by the last reconciliation run.",
})

var ReconcileRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "credit_ledger",
	Subsystem: "reconcile",
	Name:      "job_runs_total",
	Help:      "Scheduled job runs by job and outcome.",
}, []string{"job", "outcome"})

var Repairs = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "credit_ledger",
	Subsystem: "reconcile",
	Name:      "repairs_total",
	Help:      "Applied (non dry-run) account repairs.",
})

var WithdrawalDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "credit_ledger",
	Subsystem: "withdrawal",
	Name:      "decisions_total",
	Help:      "Withdrawal outcomes by status or policy reason.",
}, []string{"outcome"})

// RecordMovement counts a single category movement.
func RecordMovement(category, transactionType string, amount int64) {
	direction := "in"
	if amount < 0 {
		direction = "out"
		amount = -amount
	}
	CreditsMoved.WithLabelValues(category, direction).Add(float64(amount))
	EntriesWritten.WithLabelValues(transactionType).Inc()
}

var HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "credit_ledger",
	Subsystem: "http",
	Name:      "request_duration_seconds",
	Help:      "HTTP request latency by route pattern and status class",
	Buckets:   prometheus.DefBuckets,
}, []string{"route", "status"})
