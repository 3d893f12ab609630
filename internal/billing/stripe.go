package billing

import (
	"context"
	"errors"
	"time"

	"github.com/stripe/stripe-go/v83"
	portalsession "github.com/stripe/stripe-go/v83/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v83/checkout/session"
	stripecustomer "github.com/stripe/stripe-go/v83/customer"
	stripesubscription "github.com/stripe/stripe-go/v83/subscription"
	"github.com/stripe/stripe-go/v83/webhook"
)

// StripeProvider implements Provider using the Stripe Go SDK.
type StripeProvider struct {
	config StripeConfig
}

// NewStripeProvider creates a new Stripe billing provider and sets the
// package-level API key the SDK's package functions use.
func NewStripeProvider(config StripeConfig) (*StripeProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	stripe.Key = config.APIKey

	return &StripeProvider{config: config}, nil
}

// VerifyWebhookSignature verifies a Stripe webhook signature.
func (p *StripeProvider) VerifyWebhookSignature(payload []byte, signature string, secret string) error {
	if _, err := webhook.ConstructEvent(payload, signature, secret); err != nil {
		return errors.Join(ErrInvalidWebhookSignature, err)
	}
	return nil
}

// CreateCustomer creates a Stripe customer.
func (p *StripeProvider) CreateCustomer(ctx context.Context, params CreateCustomerParams) (*Customer, error) {
	custParams := &stripe.CustomerParams{}
	if params.Email != "" {
		custParams.Email = stripe.String(params.Email)
	}
	if params.Name != "" {
		custParams.Name = stripe.String(params.Name)
	}
	for k, v := range params.Metadata {
		custParams.AddMetadata(k, v)
	}

	cust, err := stripecustomer.New(custParams)
	if err != nil {
		return nil, wrapStripeError(err, "failed to create customer")
	}

	return &Customer{
		ID:        cust.ID,
		Email:     cust.Email,
		Name:      cust.Name,
		CreatedAt: time.Unix(cust.Created, 0).UTC(),
	}, nil
}

// GetSubscription retrieves a subscription from Stripe.
func (p *StripeProvider) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	sub, err := stripesubscription.Get(subscriptionID, nil)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return nil, ErrSubscriptionNotFound
		}
		return nil, wrapStripeError(err, "failed to get subscription")
	}

	result := &Subscription{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		Metadata:          sub.Metadata,
	}
	if sub.Customer != nil {
		result.CustomerID = sub.Customer.ID
	}
	// Period end lives on the subscription item since the 2025 API versions.
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.Price != nil {
			result.PlanRef = item.Price.ID
		}
		if item.CurrentPeriodEnd > 0 {
			result.CurrentPeriodEnd = time.Unix(item.CurrentPeriodEnd, 0).UTC()
		}
	}

	return result, nil
}

// CreateCheckoutSession creates a Stripe Checkout session in subscription mode.
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, params CreateCheckoutSessionParams) (*CheckoutSession, error) {
	checkoutParams := &stripe.CheckoutSessionParams{
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer: stripe.String(params.CustomerID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(params.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(params.SuccessURL),
		CancelURL:  stripe.String(params.CancelURL),
	}
	if len(params.Metadata) > 0 {
		checkoutParams.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: params.Metadata,
		}
	}

	sess, err := checkoutsession.New(checkoutParams)
	if err != nil {
		return nil, wrapStripeError(err, "failed to create checkout session")
	}

	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// CreatePortalSession creates a Stripe billing portal session.
func (p *StripeProvider) CreatePortalSession(ctx context.Context, params CreatePortalSessionParams) (*PortalSession, error) {
	sess, err := portalsession.New(&stripe.BillingPortalSessionParams{
		Customer:  stripe.String(params.CustomerID),
		ReturnURL: stripe.String(params.ReturnURL),
	})
	if err != nil {
		return nil, wrapStripeError(err, "failed to create portal session")
	}

	return &PortalSession{ID: sess.ID, URL: sess.URL}, nil
}

// wrapStripeError converts an SDK error into a StripeError with the fields
// worth logging.
func wrapStripeError(err error, message string) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return &StripeError{
			Message:       message,
			Code:          string(stripeErr.Code),
			RequestID:     stripeErr.RequestID,
			OriginalError: err,
		}
	}
	return &StripeError{Message: message, OriginalError: err}
}
