package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "collab_active_sessions",
		Help: "Number of live collaboration sessions.",
	})

	metricOperationsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collab_operations_applied_total",
		Help: "Total operations applied to session documents.",
	})

	metricOperationConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collab_operation_conflicts_total",
		Help: "Total operations whose transform differed from the original.",
	})

	metricBroadcastFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collab_broadcast_failures_total",
		Help: "Total per-recipient delivery failures swallowed during fan-out.",
	})

	metricSessionTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collab_session_timeouts_total",
		Help: "Total sessions torn down because a reconnection grace period elapsed.",
	})
)
