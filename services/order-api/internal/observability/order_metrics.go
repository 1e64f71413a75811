package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "order_api",
			Name:      "orders_created_total",
			Help:      "Orders persisted, by status",
		},
		[]string{"status"},
	)

	OrdersFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "order_api",
			Name:      "orders_failed_total",
			Help:      "Checkouts aborted before an order was persisted, by reason",
		},
		[]string{"reason"},
	)

	ChargesUnreconciled = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "order_api",
			Name:      "charges_unreconciled_total",
			Help:      "Successful charges whose order could not be persisted",
		},
	)

	NotificationsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "order_api",
			Name:      "notifications_sent_total",
			Help:      "Notifications accepted by the notification service",
		},
	)

	NotificationsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "order_api",
			Name:      "notifications_dropped_total",
			Help:      "Notifications given up on, by reason",
		},
		[]string{"reason"},
	)

	NotificationQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "order_api",
			Name:      "notification_queue_depth",
			Help:      "Notifications waiting for a dispatcher worker",
		},
	)

	CollaboratorLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "order_api",
			Name:      "collaborator_request_duration_seconds",
			Help:      "Latency of calls to cart, catalog, payment and notification services",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"collaborator", "outcome"},
	)
)
