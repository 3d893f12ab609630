package routes

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dukerupert/skal/internal/handler/api"
	"github.com/dukerupert/skal/internal/handler/webhook"
	"github.com/dukerupert/skal/internal/router"
)

// Deps holds the handlers the route table wires up.
type Deps struct {
	Webhook     *webhook.StripeHandler
	Entitlement *api.EntitlementHandler
	Booking     *api.BookingHandler
	Billing     *api.BillingHandler
}

// Register mounts all routes on the router. apiMiddleware wraps only the
// account-scoped API: provider callbacks and operational endpoints stay
// outside the group so rate limiting never throttles Stripe redeliveries
// or health probes.
func Register(r *router.Router, deps Deps, apiMiddleware ...router.Middleware) {
	// Provider callbacks. Signature-verified inside the handler, never
	// behind account authentication.
	r.Post("/webhooks/stripe", deps.Webhook.HandleWebhook)

	// Account-scoped API.
	api := r.Group(apiMiddleware...)
	api.Get("/api/entitlement", deps.Entitlement.HandleGetEntitlement)
	api.Post("/api/bookings", deps.Booking.HandleCreateBooking)
	api.Post("/api/bookings/bulk", deps.Booking.HandleCreateBookingsBulk)
	api.Post("/api/billing/checkout", deps.Billing.HandleStartCheckout)
	api.Post("/api/billing/portal", deps.Billing.HandleStartPortal)

	// Operational endpoints.
	r.Get("/health", handleHealth)
	r.Handle(http.MethodGet, "/metrics", promhttp.Handler())
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
