package webhook

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/skal/internal/billing"
	"github.com/dukerupert/skal/internal/domain"
	"github.com/dukerupert/skal/internal/handler"
	"github.com/dukerupert/skal/internal/service"
	"github.com/dukerupert/skal/internal/telemetry"
)

// StripeHandler handles Stripe webhook events for the entitlement engine.
type StripeHandler struct {
	provider      billing.Provider
	subscriptions service.SubscriptionService
	config        StripeWebhookConfig
	logger        *slog.Logger
}

// StripeWebhookConfig contains configuration for Stripe webhook handling
type StripeWebhookConfig struct {
	// WebhookSecret is the webhook signing secret from the Stripe dashboard
	WebhookSecret string
}

// NewStripeHandler creates a new Stripe webhook handler
func NewStripeHandler(provider billing.Provider, subscriptions service.SubscriptionService, config StripeWebhookConfig, logger *slog.Logger) *StripeHandler {
	return &StripeHandler{
		provider:      provider,
		subscriptions: subscriptions,
		config:        config,
		logger:        logger,
	}
}

// HandleWebhook processes incoming Stripe webhook events.
//
// Stripe CLI testing:
//
//	stripe listen --forward-to localhost:3000/webhooks/stripe
//	stripe trigger customer.subscription.created
func (h *StripeHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Error("webhook: failed to read payload", "error", err)
		handler.ErrorResponse(w, r, domain.Errorf(domain.EINVALID, "", "Error reading request body"))
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		h.logger.Warn("webhook: missing signature header",
			"remote_addr", r.RemoteAddr)
		h.countFailure("unknown", "invalid_signature")
		handler.ErrorResponse(w, r, domain.Errorf(domain.EINVALID, "", "Missing signature"))
		return
	}

	// Nothing in the payload may be trusted before this passes.
	if err := h.provider.VerifyWebhookSignature(payload, signature, h.config.WebhookSecret); err != nil {
		h.logger.Warn("webhook: signature verification failed",
			"remote_addr", r.RemoteAddr,
			"error", err)
		h.countFailure("unknown", "invalid_signature")
		handler.ErrorResponse(w, r, domain.Errorf(domain.EUNAUTHORIZED, "", "Invalid signature"))
		return
	}

	n, err := ClassifyEvent(payload)
	if err != nil {
		h.logger.Error("webhook: malformed event payload", "error", err)
		h.countFailure("unknown", "invalid_payload")
		handler.ErrorResponse(w, r, domain.Errorf(domain.EINVALID, "", "Invalid JSON"))
		return
	}

	eventType := string(n.Type)
	if telemetry.Business != nil {
		telemetry.Business.WebhookReceived.WithLabelValues(eventType).Inc()
	}
	defer func() {
		if telemetry.Business != nil {
			telemetry.Business.WebhookLatency.WithLabelValues(eventType).Observe(time.Since(startTime).Seconds())
		}
	}()

	outcome, err := h.subscriptions.ApplyNotification(r.Context(), n)
	if err != nil {
		// Not acknowledged: Stripe will redeliver.
		h.logger.Error("webhook: failed to apply notification",
			"notification_id", n.ID,
			"type", eventType,
			"error", err)
		telemetry.CaptureError(err, map[string]interface{}{
			"notification_id": n.ID,
			"event_type":      eventType,
		})
		h.countFailure(eventType, "persistence")
		handler.ErrorResponse(w, r, err)
		return
	}

	switch outcome {
	case service.IngestApplied:
		h.logger.Info("webhook: notification applied",
			"notification_id", n.ID,
			"type", eventType)
	default:
		h.logger.Debug("webhook: notification acknowledged without state change",
			"notification_id", n.ID,
			"type", eventType,
			"outcome", string(outcome))
	}

	if telemetry.Business != nil {
		telemetry.Business.WebhookProcessed.WithLabelValues(eventType, string(outcome)).Inc()
	}

	handler.JSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *StripeHandler) countFailure(eventType, reason string) {
	if telemetry.Business != nil {
		telemetry.Business.WebhookFailed.WithLabelValues(eventType, reason).Inc()
	}
}
