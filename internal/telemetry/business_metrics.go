package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BusinessMetrics holds Prometheus metrics for business-level observability
// of the entitlement engine.
type BusinessMetrics struct {
	// Webhook ingestion
	WebhookReceived  *prometheus.CounterVec
	WebhookProcessed *prometheus.CounterVec
	WebhookFailed    *prometheus.CounterVec
	WebhookLatency   *prometheus.HistogramVec

	// Entitlements
	BookingsCreated   prometheus.Counter
	EntitlementDenied *prometheus.CounterVec

	// Billing sessions
	CheckoutSessions prometheus.Counter
	PortalSessions   prometheus.Counter

	// Reconciliation
	ReconcileSweeps    prometheus.Counter
	ReconcileCorrected prometheus.Counter
}

// Business is the global metrics instance, set by Init in main. Handlers
// nil-check it so tests run without a registry.
var Business *BusinessMetrics

// Init registers the business metrics on the default registry.
func Init(namespace string) {
	Business = NewBusinessMetrics(namespace)
}

// NewBusinessMetrics creates and registers all business metrics.
func NewBusinessMetrics(namespace string) *BusinessMetrics {
	if namespace == "" {
		namespace = "skal"
	}

	subsystem := "business"

	return &BusinessMetrics{
		WebhookReceived: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_received_total",
				Help:      "Total provider webhook events received",
			},
			[]string{"event_type"},
		),
		WebhookProcessed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_processed_total",
				Help:      "Total webhook events processed, by apply outcome",
			},
			[]string{"event_type", "outcome"}, // outcome: applied, duplicate, stale, ignored
		),
		WebhookFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_failed_total",
				Help:      "Total webhook events rejected or failed",
			},
			[]string{"event_type", "reason"}, // reason: invalid_signature, invalid_payload, persistence
		),
		WebhookLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_duration_seconds",
				Help:      "Webhook processing time",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"event_type"},
		),
		BookingsCreated: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "bookings_created_total",
				Help:      "Total bookings created",
			},
		),
		EntitlementDenied: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "entitlement_denied_total",
				Help:      "Total creation attempts denied by the entitlement gate",
			},
			[]string{"reason"}, // reason: at_limit, subscription_required, account_not_found
		),
		CheckoutSessions: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "checkout_sessions_total",
				Help:      "Total checkout sessions created",
			},
		),
		PortalSessions: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "portal_sessions_total",
				Help:      "Total billing portal sessions created",
			},
		),
		ReconcileSweeps: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "reconcile_sweeps_total",
				Help:      "Total reconciliation sweeps run",
			},
		),
		ReconcileCorrected: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "reconcile_corrected_total",
				Help:      "Total accounts whose tier the reconciliation sweep corrected",
			},
		),
	}
}
