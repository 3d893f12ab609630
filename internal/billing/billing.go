package billing

import (
	"context"
	"time"
)

// Provider defines the interface for the payment provider.
// Services depend on this interface rather than the Stripe SDK so they can
// be tested with the mock provider and so SDK churn stays in one package.
type Provider interface {
	// VerifyWebhookSignature verifies that a webhook request is authentic.
	// Must be called before any payload field is trusted.
	VerifyWebhookSignature(payload []byte, signature string, secret string) error

	// CreateCustomer creates a customer record in the billing provider.
	// Called lazily on first checkout for an account.
	CreateCustomer(ctx context.Context, params CreateCustomerParams) (*Customer, error)

	// GetSubscription retrieves a subscription's current authoritative state.
	// Used to enrich invoice notifications (which embed no subscription
	// status) and by the reconciliation sweep.
	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)

	// CreateCheckoutSession creates a hosted checkout session in
	// subscription mode. Returns the URL to redirect the customer to.
	CreateCheckoutSession(ctx context.Context, params CreateCheckoutSessionParams) (*CheckoutSession, error)

	// CreatePortalSession creates a billing portal session where the
	// customer manages payment methods and cancellation.
	CreatePortalSession(ctx context.Context, params CreatePortalSessionParams) (*PortalSession, error)
}

// CreateCustomerParams contains parameters for creating a customer.
type CreateCustomerParams struct {
	Email string
	Name  string

	// Metadata should always include account_id so webhook events can be
	// routed back to the account.
	Metadata map[string]string
}

// Customer represents a billing customer.
type Customer struct {
	ID        string
	Email     string
	Name      string
	CreatedAt time.Time
}

// Subscription is the provider's view of a subscription.
type Subscription struct {
	ID         string
	CustomerID string

	// Status is the provider's status string ("active", "past_due",
	// "canceled", ...), passed through untranslated. Tier mapping is the
	// resolver's job.
	Status string

	// PlanRef is the price ID of the first subscription item.
	PlanRef string

	CurrentPeriodEnd  time.Time
	CancelAtPeriodEnd bool
	Metadata          map[string]string
}

// CreateCheckoutSessionParams contains parameters for a subscription
// checkout session.
type CreateCheckoutSessionParams struct {
	// CustomerID is required: the customer is created and persisted before
	// the session so a repeated checkout reuses it.
	CustomerID string

	// PriceID is the provider price to subscribe to.
	PriceID string

	SuccessURL string
	CancelURL  string

	// Metadata is attached to the resulting subscription (not just the
	// session) so every later webhook event carries it.
	Metadata map[string]string
}

// CheckoutSession represents a hosted checkout session.
type CheckoutSession struct {
	ID  string
	URL string
}

// CreatePortalSessionParams contains parameters for a billing portal session.
type CreatePortalSessionParams struct {
	CustomerID string
	ReturnURL  string
}

// PortalSession represents a billing portal session.
type PortalSession struct {
	ID  string
	URL string
}
