package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of orders that reached a failed terminal state",
	}, []string{"reason"})

	OrdersPaidTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_paid_total",
		Help: "Total number of orders successfully paid",
	})

	OrdersRefundedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_refunded_total",
		Help: "Total number of orders refunded",
	})

	InventoryRestocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_restocks_total",
		Help: "Total number of stock restores by kind (stale, orphan, payment_failed)",
	}, []string{"kind"})

	InventoryReservationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_reservations_failed_total",
		Help: "Total number of failed inventory reservations",
	}, []string{"reason"})

	EventsIngestedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "provider_events_ingested_total",
		Help: "Total number of webhook events ingested by provider and outcome",
	}, []string{"provider", "outcome"})

	EventsClaimedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "provider_events_claimed_total",
		Help: "Total number of provider events claimed by workers",
	})

	EventsAppliedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "provider_events_applied_total",
		Help: "Total number of provider events completed by result",
	}, []string{"result"})

	EventApplyLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "provider_event_apply_latency_seconds",
		Help:    "Latency of applying a claimed provider event",
		Buckets: prometheus.DefBuckets,
	})

	SweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stale_sweep_runs_total",
		Help: "Total number of stale order sweep invocations",
	})

	SweepRestockedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stale_sweep_restocked_total",
		Help: "Total number of stale orders restocked by kind (stale, orphan)",
	}, []string{"kind"})

	WebhookRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_rejected_total",
		Help: "Total number of rejected webhook deliveries by provider and reason",
	}, []string{"provider", "reason"})

	PaymentAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_attempts_total",
		Help: "Total number of payment attempts created by provider",
	}, []string{"provider"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
