package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mcp_sql_db_build_info",
			Help: "Build information of the MCP SQL server",
		},
		[]string{"version", "commit", "date", "engine"},
	)

	OperationCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcp_sql_db_operation_calls_total",
			Help: "Total number of dispatched operations by outcome",
		},
		[]string{"operation", "status"},
	)

	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mcp_sql_db_operation_duration_seconds",
			Help:    "Duration of dispatched operations",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		},
		[]string{"operation"},
	)

	BlockedStatementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcp_sql_db_blocked_statements_total",
			Help: "Total number of statements rejected by the blocked-command policy",
		},
		[]string{"keyword"},
	)

	ResourceReadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcp_sql_db_resource_reads_total",
			Help: "Total number of schema resource reads by outcome",
		},
		[]string{"status"},
	)
)
