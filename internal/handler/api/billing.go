package api

import (
	"encoding/json"
	"net/http"

	"github.com/dukerupert/skal/internal/domain"
	"github.com/dukerupert/skal/internal/handler"
	"github.com/dukerupert/skal/internal/service"
	"github.com/dukerupert/skal/internal/telemetry"
)

// BillingHandler serves checkout and portal session creation. Neither
// endpoint ever touches tier state; the tier only moves when the provider's
// notifications come back through the webhook.
type BillingHandler struct {
	subscriptions service.SubscriptionService
}

// NewBillingHandler creates the billing handler.
func NewBillingHandler(subscriptions service.SubscriptionService) *BillingHandler {
	return &BillingHandler{subscriptions: subscriptions}
}

type checkoutRequest struct {
	PlanRef string `json:"plan_ref"`
}

// HandleStartCheckout returns a hosted checkout session URL.
//
//	POST /api/billing/checkout
func (h *BillingHandler) HandleStartCheckout(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.ErrorResponse(w, r, domain.Invalid("billing.checkout", "invalid JSON body"))
		return
	}

	url, err := h.subscriptions.StartCheckout(r.Context(), id, req.PlanRef)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	if telemetry.Business != nil {
		telemetry.Business.CheckoutSessions.Inc()
	}
	handler.JSON(w, http.StatusOK, map[string]string{"url": url})
}

// HandleStartPortal returns a billing portal session URL.
//
//	POST /api/billing/portal
func (h *BillingHandler) HandleStartPortal(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	url, err := h.subscriptions.StartPortal(r.Context(), id)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	if telemetry.Business != nil {
		telemetry.Business.PortalSessions.Inc()
	}
	handler.JSON(w, http.StatusOK, map[string]string{"url": url})
}
