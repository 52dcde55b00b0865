package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics records order placement, reconciliation, and cancellation
// outcomes.
type CheckoutMetrics struct {
	duration        *prometheus.HistogramVec
	ordersPlaced    *prometheus.CounterVec
	orderFailures   *prometheus.CounterVec
	reconciliations *prometheus.CounterVec
	cancellations   prometheus.Counter
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkout_operation_duration_seconds",
		Help:    "Duration of checkout operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	ordersPlaced := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_placed_total",
		Help: "Orders placed, by payment method.",
	}, []string{"method"})
	orderFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_failures_total",
		Help: "Order placements rejected, by reason.",
	}, []string{"reason"})
	reconciliations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_reconciliations_total",
		Help: "Payment reconciliation attempts, by outcome.",
	}, []string{"outcome"})
	cancellations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "order_cancellations_total",
		Help: "Orders cancelled with stock restored.",
	})
	reg.MustRegister(duration, ordersPlaced, orderFailures, reconciliations, cancellations)
	return &CheckoutMetrics{
		duration:        duration,
		ordersPlaced:    ordersPlaced,
		orderFailures:   orderFailures,
		reconciliations: reconciliations,
		cancellations:   cancellations,
	}
}

// ObserveDuration records the duration for the named operation.
func (m *CheckoutMetrics) ObserveDuration(operation string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(operation)).Observe(duration.Seconds())
}

// IncOrderPlaced increments the placement counter for the payment method.
func (m *CheckoutMetrics) IncOrderPlaced(method string) {
	if m == nil || m.ordersPlaced == nil {
		return
	}
	m.ordersPlaced.WithLabelValues(normalizeLabel(method)).Inc()
}

// IncOrderFailure increments the failure counter for the given reason.
func (m *CheckoutMetrics) IncOrderFailure(reason string) {
	if m == nil || m.orderFailures == nil {
		return
	}
	m.orderFailures.WithLabelValues(normalizeLabel(reason)).Inc()
}

// IncReconciliation increments the reconciliation counter for the outcome.
func (m *CheckoutMetrics) IncReconciliation(outcome string) {
	if m == nil || m.reconciliations == nil {
		return
	}
	m.reconciliations.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncCancellation increments the cancellation counter.
func (m *CheckoutMetrics) IncCancellation() {
	if m == nil || m.cancellations == nil {
		return
	}
	m.cancellations.Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
