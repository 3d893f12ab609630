package domain

import (
	"time"

	"github.com/google/uuid"
)

// TierStatus is the resolved subscription tier of an account. It is derived
// exclusively from payment provider notifications; no other code path may set
// a paid status.
type TierStatus string

const (
	// TierFree is the default tier. No subscription on record.
	TierFree TierStatus = "free"

	// TierActive is a paying subscription in good standing.
	TierActive TierStatus = "active"

	// TierPastDue is a subscription with a failed payment that the provider
	// is still retrying. Entitlements are retained while it lasts.
	TierPastDue TierStatus = "past_due"

	// TierGraceCancelled is a cancelled subscription that remains paid up
	// until the end of the current billing period.
	TierGraceCancelled TierStatus = "grace_cancelled"
)

// Valid reports whether s is a known tier status.
func (s TierStatus) Valid() bool {
	switch s {
	case TierFree, TierActive, TierPastDue, TierGraceCancelled:
		return true
	}
	return false
}

// IsPaid reports whether the tier carries paid entitlements. past_due and
// grace_cancelled both retain access: the first because the provider is
// still retrying payment, the second because the period is paid for.
func (s TierStatus) IsPaid() bool {
	return s == TierActive || s == TierPastDue || s == TierGraceCancelled
}

// UnlimitedBookings is the sentinel limit for paid tiers.
const UnlimitedBookings int64 = -1

// FreeTierBookingLimit is the number of bookings a free account may hold.
const FreeTierBookingLimit int64 = 1

// BookingLimit returns the booking limit for a tier. Unknown statuses get
// the free limit rather than unlimited access.
func BookingLimit(s TierStatus) int64 {
	if s.IsPaid() {
		return UnlimitedBookings
	}
	return FreeTierBookingLimit
}

// Account is the durable billing state of a restaurant account. Tier status
// and the provider references on it only change through notification
// application or reconciliation, never through request handlers.
type Account struct {
	ID uuid.UUID

	// TierStatus is the resolved tier. Invariant: TierFree exactly when
	// SubscriptionRef is empty.
	TierStatus TierStatus

	// CustomerRef is the provider's customer ID. Set once at first checkout
	// (or adopted from a notification) and kept across subscription churn.
	CustomerRef string

	// SubscriptionRef is the provider's subscription ID, empty when free.
	SubscriptionRef string

	// PlanRef identifies the purchased plan (provider price ID).
	PlanRef string

	// PeriodEnd is the end of the current billing period, when known.
	PeriodEnd *time.Time

	// LastEventAt is the provider-side timestamp of the last applied
	// notification. Notifications older than this are stale and discarded.
	// It survives subscription end so late events for a dead subscription
	// stay no-ops.
	LastEventAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasSubscription reports whether a subscription is on record.
func (a Account) HasSubscription() bool {
	return a.SubscriptionRef != ""
}
