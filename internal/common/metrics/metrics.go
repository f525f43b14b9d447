// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	LedgerOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_ledger_operations_total",
			Help: "Ledger debits and refunds by result",
		},
		[]string{"operation", "result"},
	)

	// LedgerInconsistencies counts compensating refunds that could not be
	// written. Every increment needs manual reconciliation.
	LedgerInconsistencies = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notify_ledger_inconsistencies_total",
			Help: "Refunds that failed after a debited send failed",
		},
	)

	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_deliveries_total",
			Help: "Per-recipient delivery outcomes",
		},
		[]string{"channel", "status"},
	)

	DeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notify_delivery_duration_seconds",
			Help:    "Time spent delivering to one recipient",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"channel"},
	)

	BulkInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "notify_bulk_in_flight",
			Help: "Recipients currently being dispatched by bulk sends",
		},
	)

	MilestoneRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_milestone_runs_total",
			Help: "Scheduler runs by outcome",
		},
		[]string{"outcome"},
	)

	MilestoneEvaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_milestone_evaluations_total",
			Help: "Due milestones by table and outcome",
		},
		[]string{"table", "outcome"},
	)
)
