package ddl

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for OperationsTotal.
const (
	OutcomeCommitted  = "committed"
	OutcomeRolledBack = "rolled_back"
	OutcomeRejected   = "rejected"
	OutcomeBusy       = "busy"
	OutcomeNoop       = "noop"
)

var (
	// OperationsTotal counts emulated DDL operations by kind and outcome.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpkgsql_ddl_operations_total",
			Help: "Total number of emulated DDL operations",
		},
		[]string{"kind", "outcome"},
	)
	// OperationDuration is the wall time of emulated DDL operations.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gpkgsql_ddl_duration_seconds",
			Help:    "Emulated DDL latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
)
