// Package metrics holds the Prometheus collectors shared by the HTTP server
// and the queue worker. Collectors register with the default registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventhub_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "route", "status"})

	HTTPLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "eventhub_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5},
	}, []string{"method", "route"})

	// Purchases counts purchase attempts by outcome
	// (reserved, replayed, duplicate, not_available, invalid, error).
	Purchases = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventhub_purchases_total",
		Help: "Ticket purchase attempts by outcome",
	}, []string{"outcome"})

	TicketsReserved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eventhub_tickets_reserved_total",
		Help: "Tickets moved to RESERVED",
	})

	// InventoryLockWait measures how long a purchase waited for the
	// ticket type row lock.
	InventoryLockWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "eventhub_inventory_lock_wait_seconds",
		Help:    "Time spent acquiring the ticket type row lock",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	IdempotencyOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventhub_idempotency_outcomes_total",
		Help: "Idempotency gate decisions",
	}, []string{"command_type", "outcome"})

	Payments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventhub_payments_total",
		Help: "Payment and refund results",
	}, []string{"operation", "result"})

	QueueMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventhub_queue_messages_total",
		Help: "Messages handled by the bus",
	}, []string{"transport", "type", "result"})

	DispatchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventhub_dispatch_errors_total",
		Help: "Post-commit dispatch failures",
	}, []string{"type"})
)
