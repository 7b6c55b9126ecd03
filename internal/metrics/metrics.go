package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsTotal tracks completed bulk operations per action and outcome
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bulkops_operations_total",
			Help: "Total number of bulk operations executed",
		},
		[]string{"action", "status"},
	)

	// RecordsProcessed tracks per-record outcomes within bulk operations
	RecordsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bulkops_records_processed_total",
			Help: "Total number of records processed by bulk operations",
		},
		[]string{"action", "outcome"},
	)

	// OperationDuration tracks end-to-end bulk operation latency
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bulkops_operation_duration_seconds",
			Help:    "Bulk operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)

	// BatchDuration tracks the latency of individual batches
	BatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bulkops_batch_duration_seconds",
			Help:    "Batch execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)

	// RecoveriesTotal tracks recovery actions applied after failures
	RecoveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bulkops_recoveries_total",
			Help: "Total number of recovery actions applied",
		},
		[]string{"recovery"},
	)

	// AuditLogSize tracks the current number of audit entries
	AuditLogSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bulkops_audit_log_entries",
			Help: "Current number of entries in the audit log",
		},
	)

	// NotificationsTotal tracks recall notifications by delivery outcome
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bulkops_notifications_total",
			Help: "Total number of recall notifications sent",
		},
		[]string{"outcome"},
	)

	// DBConnectionPoolUsage tracks database pool utilization percentage
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bulkops_db_connection_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)
)
