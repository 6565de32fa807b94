// Package metrics exposes Prometheus collectors for the exchange engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the collector set shared across the service.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration prometheus.Histogram

	// Engine sweeps
	SweepsTotal      *prometheus.CounterVec
	SweepErrorsTotal *prometheus.CounterVec

	// Allocation
	AllocationsTotal          prometheus.Counter
	AllocationsAbandonedTotal prometheus.Counter

	// State machines
	OrdersCreatedTotal       prometheus.Counter
	OrderTransitionsTotal    *prometheus.CounterVec
	RequestTransitionsTotal  *prometheus.CounterVec
	NotificationsQueuedTotal prometheus.Counter
}

// New creates and registers the collector set.
func New(serviceName string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "exchange",
			Subsystem: serviceName,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"method", "status"}),
		HTTPRequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "exchange",
			Subsystem: serviceName,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		SweepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "exchange",
			Subsystem: serviceName,
			Name:      "sweeps_total",
			Help:      "Completed engine sweeps per job",
		}, []string{"job"}),
		SweepErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "exchange",
			Subsystem: serviceName,
			Name:      "sweep_errors_total",
			Help:      "Engine sweeps that ended with an error per job",
		}, []string{"job"}),
		AllocationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "exchange",
			Subsystem: serviceName,
			Name:      "allocations_total",
			Help:      "Successful requisite allocation passes",
		}),
		AllocationsAbandonedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "exchange",
			Subsystem: serviceName,
			Name:      "allocations_abandoned_total",
			Help:      "Allocation passes abandoned with unmet need",
		}),
		OrdersCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "exchange",
			Subsystem: serviceName,
			Name:      "orders_created_total",
			Help:      "Orders created by the order factory",
		}),
		OrderTransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "exchange",
			Subsystem: serviceName,
			Name:      "order_transitions_total",
			Help:      "Order state transitions",
		}, []string{"state"}),
		RequestTransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "exchange",
			Subsystem: serviceName,
			Name:      "request_transitions_total",
			Help:      "Request state transitions",
		}, []string{"state"}),
		NotificationsQueuedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "exchange",
			Subsystem: serviceName,
			Name:      "notifications_queued_total",
			Help:      "Notification events written to the outbox",
		}),
	}

	m.registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.SweepsTotal,
		m.SweepErrorsTotal,
		m.AllocationsTotal,
		m.AllocationsAbandonedTotal,
		m.OrdersCreatedTotal,
		m.OrderTransitionsTotal,
		m.RequestTransitionsTotal,
		m.NotificationsQueuedTotal,
	)

	return m
}

// Handler returns an http.Handler serving this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
