package webhook

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v83"

	"github.com/dukerupert/skal/internal/domain"
)

// ClassifyEvent turns a verified Stripe event payload into a
// domain.Notification. This is the only place in the codebase that reads
// Stripe event shapes; everything downstream works with the closed
// notification variant. Event types the engine does not act on classify as
// NotificationUnknown and are acknowledged without state change.
func ClassifyEvent(payload []byte) (domain.Notification, error) {
	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return domain.Notification{}, err
	}

	n := domain.Notification{
		ID:   event.ID,
		Type: domain.NotificationUnknown,
		// event.Created is the provider-side event time, the ordering
		// authority. Delivery time means nothing.
		OccurredAt: time.Unix(event.Created, 0).UTC(),
	}

	switch event.Type {
	case "customer.subscription.created":
		n.Type = domain.NotificationSubscriptionActivated
		fillFromSubscription(&n, event.Data.Raw)
	case "customer.subscription.updated":
		n.Type = domain.NotificationSubscriptionChanged
		fillFromSubscription(&n, event.Data.Raw)
	case "customer.subscription.deleted":
		n.Type = domain.NotificationSubscriptionEnded
		fillFromSubscription(&n, event.Data.Raw)
	case "invoice.payment_failed":
		n.Type = domain.NotificationPaymentFailed
		fillFromInvoice(&n, event.Data.Raw)
	case "invoice.paid":
		n.Type = domain.NotificationPaymentRecovered
		fillFromInvoice(&n, event.Data.Raw)
	}

	return n, nil
}

func fillFromSubscription(n *domain.Notification, raw json.RawMessage) {
	var sub stripe.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return
	}

	n.SubscriptionRef = sub.ID
	n.ProviderStatus = string(sub.Status)
	n.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
	if sub.Customer != nil {
		n.CustomerRef = sub.Customer.ID
	}
	n.AccountID = accountIDFromMetadata(sub.Metadata)

	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.Price != nil {
			n.PlanRef = item.Price.ID
		}
		if item.CurrentPeriodEnd > 0 {
			periodEnd := time.Unix(item.CurrentPeriodEnd, 0).UTC()
			n.PeriodEnd = &periodEnd
		}
	}
}

func fillFromInvoice(n *domain.Notification, raw json.RawMessage) {
	var invoice stripe.Invoice
	if err := json.Unmarshal(raw, &invoice); err != nil {
		return
	}

	if invoice.Customer != nil {
		n.CustomerRef = invoice.Customer.ID
	}

	// Invoices reference their subscription through the parent. The
	// embedded object is a stub: no status, no items.
	if invoice.Parent != nil && invoice.Parent.SubscriptionDetails != nil {
		details := invoice.Parent.SubscriptionDetails
		if details.Subscription != nil {
			n.SubscriptionRef = details.Subscription.ID
		}
		if n.AccountID == uuid.Nil {
			n.AccountID = accountIDFromMetadata(details.Metadata)
		}
	}
}

func accountIDFromMetadata(metadata map[string]string) uuid.UUID {
	raw, ok := metadata["account_id"]
	if !ok {
		return uuid.Nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil
	}
	return id
}
