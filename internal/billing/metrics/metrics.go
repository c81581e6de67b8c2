package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookRequestsTotal counts webhook deliveries by normalized event and outcome.
	WebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "billow",
		Subsystem: "billing",
		Name:      "webhook_requests_total",
		Help:      "Total payment webhook requests by event and status.",
	}, []string{"event", "status"})

	// WebhookDuration tracks webhook processing latency.
	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "billow",
		Subsystem: "billing",
		Name:      "webhook_duration_seconds",
		Help:      "Payment webhook processing duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event"})

	// OperationErrors counts failed billing operations by the side that failed.
	OperationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "billow",
		Subsystem: "billing",
		Name:      "operation_errors_total",
		Help:      "Failed billing operations by operation and source (vendor or store).",
	}, []string{"operation", "source"})

	// SyncChanges counts catalog changes applied by plan sync.
	SyncChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "billow",
		Subsystem: "billing",
		Name:      "sync_changes_total",
		Help:      "Plan catalog changes applied by sync, by kind.",
	}, []string{"kind"})

	// QuotaDenials counts requests refused for lack of plan quota.
	QuotaDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "billow",
		Subsystem: "billing",
		Name:      "quota_denials_total",
		Help:      "Requests refused because the plan's quota or feature did not allow them.",
	}, []string{"feature"})
)
