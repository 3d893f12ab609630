package domain

import (
	"time"

	"github.com/google/uuid"
)

// NotificationType is the closed set of provider notification kinds the
// engine understands. Webhook classification happens once at the HTTP
// boundary; everything past it works with these values only.
type NotificationType string

const (
	NotificationSubscriptionActivated NotificationType = "subscription_activated"
	NotificationSubscriptionChanged   NotificationType = "subscription_changed"
	NotificationSubscriptionEnded     NotificationType = "subscription_ended"
	NotificationPaymentFailed         NotificationType = "payment_failed"
	NotificationPaymentRecovered      NotificationType = "payment_recovered"

	// NotificationUnknown is any provider event type the engine does not
	// act on. Acknowledged without state change.
	NotificationUnknown NotificationType = "unknown"
)

// Notification is a classified provider webhook event. OccurredAt is the
// provider-side creation time of the event, not delivery time; it is the
// only ordering authority, since delivery order carries no meaning.
type Notification struct {
	// ID is the provider's event ID, the idempotency key.
	ID string

	Type NotificationType

	// OccurredAt is the authoritative event time from the provider.
	OccurredAt time.Time

	// AccountID is taken from subscription metadata when present. Zero when
	// the account must be resolved through CustomerRef instead.
	AccountID uuid.UUID

	CustomerRef     string
	SubscriptionRef string
	PlanRef         string

	// ProviderStatus is the subscription status embedded in the event
	// (e.g. "active", "past_due", "canceled"). When present it is the
	// provider's authoritative view at OccurredAt and overrides whatever
	// transition the notification type alone would imply. Empty for
	// invoice events unless enriched by a subscription re-fetch.
	ProviderStatus string

	// CancelAtPeriodEnd marks a cancellation that keeps the subscription
	// running until PeriodEnd.
	CancelAtPeriodEnd bool

	PeriodEnd *time.Time
}
