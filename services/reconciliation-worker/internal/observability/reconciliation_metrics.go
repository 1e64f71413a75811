package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reconciliation_worker",
			Name:      "messages_received_total",
			Help:      "Order events pulled by the worker",
		},
		[]string{"topic"},
	)

	EventsHandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reconciliation_worker",
			Name:      "events_handled_total",
			Help:      "Order events handled, by event type and outcome",
		},
		[]string{"type", "outcome"},
	)

	ChargesRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reconciliation_worker",
			Name:      "charges_recorded_total",
			Help:      "Unreconciled charges stored for refund; duplicate=true for redeliveries",
		},
		[]string{"duplicate"},
	)

	StoreRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "reconciliation_worker",
			Name:      "store_retries_total",
			Help:      "Retries of transient store failures",
		},
	)

	DLQPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reconciliation_worker",
			Name:      "dlq_total",
			Help:      "Messages sent to DLQ by reason",
		},
		[]string{"reason"},
	)

	ProcessLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "reconciliation_worker",
			Name:      "process_duration_seconds",
			Help:      "End-to-end processing latency per message",
			Buckets:   prometheus.DefBuckets,
		},
	)

	InflightJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "reconciliation_worker",
			Name:      "inflight_jobs",
			Help:      "Number of messages currently being processed (semaphore depth)",
		},
	)
)
