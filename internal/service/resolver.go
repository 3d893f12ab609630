package service

import (
	"github.com/dukerupert/skal/internal/domain"
)

// ResolveTier derives the next account state from a classified provider
// notification. It is a pure function: no I/O, no clock, no randomness. The
// store runs it inside the account transaction, so whatever it returns is
// what gets persisted.
//
// Delivery order carries no meaning, so three rules make every delivery
// permutation converge on the same final state:
//
//  1. Watermark: a notification older than the last applied one
//     (account.LastEventAt) is discarded.
//  2. Embedded status wins: when the notification carries the provider's
//     own subscription status, that status is mapped directly instead of
//     inferring a transition from the notification type.
//  3. Type-implied transitions are the fallback and are guarded: they only
//     act on the subscription currently on record.
//
// The second return is false when the notification was discarded.
func ResolveTier(current domain.Account, n domain.Notification) (domain.Account, bool) {
	if n.Type == domain.NotificationUnknown || n.SubscriptionRef == "" {
		return current, false
	}

	// Stale: something newer has already been applied. Equal timestamps
	// pass so the later arrival settles on the provider's embedded truth.
	if current.LastEventAt != nil && n.OccurredAt.Before(*current.LastEventAt) {
		return current, false
	}

	sameRef := current.SubscriptionRef != "" && current.SubscriptionRef == n.SubscriptionRef

	// Payment events only ever concern the subscription on record. A
	// failure or recovery for a subscription the account does not track
	// (typically one that already ended) must stay a no-op.
	if !sameRef && (n.Type == domain.NotificationPaymentFailed || n.Type == domain.NotificationPaymentRecovered) {
		// Unless the account is entirely fresh and the event carries the
		// provider's status: then the account simply missed the activation
		// and adopting the provider's view is the converging move.
		fresh := current.SubscriptionRef == "" && current.LastEventAt == nil
		if !fresh || n.ProviderStatus == "" {
			return current, false
		}
	}

	// Ending a subscription other than the recorded one is meaningless.
	if !sameRef && current.SubscriptionRef != "" && n.Type == domain.NotificationSubscriptionEnded {
		return current, false
	}

	if status, ok := mapProviderStatus(n.ProviderStatus, n.CancelAtPeriodEnd); ok {
		if status == tierEnded {
			return endSubscription(current, n), true
		}
		return adoptSubscription(current, n, status), true
	}

	// No usable embedded status: fall back to what the type alone implies.
	switch n.Type {
	case domain.NotificationSubscriptionActivated:
		tier := domain.TierActive
		if n.CancelAtPeriodEnd {
			tier = domain.TierGraceCancelled
		}
		return adoptSubscription(current, n, tier), true

	case domain.NotificationSubscriptionChanged:
		if !sameRef {
			return current, false
		}
		tier := current.TierStatus
		if n.CancelAtPeriodEnd && tier == domain.TierActive {
			tier = domain.TierGraceCancelled
		}
		return adoptSubscription(current, n, tier), true

	case domain.NotificationSubscriptionEnded:
		return endSubscription(current, n), true

	case domain.NotificationPaymentFailed:
		if current.TierStatus != domain.TierActive {
			return current, false
		}
		return adoptSubscription(current, n, domain.TierPastDue), true

	case domain.NotificationPaymentRecovered:
		if current.TierStatus != domain.TierPastDue {
			return current, false
		}
		return adoptSubscription(current, n, domain.TierActive), true
	}

	return current, false
}

// tierEnded is an internal marker for provider statuses that terminate the
// subscription. Never persisted.
const tierEnded domain.TierStatus = "ended"

// mapProviderStatus translates the provider's subscription status into a
// tier. Returns false for statuses the engine takes no position on
// (incomplete, paused, ...), which drops resolution back to the
// type-implied path.
func mapProviderStatus(status string, cancelAtPeriodEnd bool) (domain.TierStatus, bool) {
	switch status {
	case "active", "trialing":
		if cancelAtPeriodEnd {
			return domain.TierGraceCancelled, true
		}
		return domain.TierActive, true
	case "past_due", "unpaid":
		return domain.TierPastDue, true
	case "canceled", "incomplete_expired":
		return tierEnded, true
	}
	return "", false
}

// adoptSubscription records the notification's subscription under the given
// tier and advances the watermark.
func adoptSubscription(current domain.Account, n domain.Notification, tier domain.TierStatus) domain.Account {
	next := current
	next.TierStatus = tier
	next.SubscriptionRef = n.SubscriptionRef
	if n.PlanRef != "" {
		next.PlanRef = n.PlanRef
	}
	if n.PeriodEnd != nil {
		next.PeriodEnd = n.PeriodEnd
	}
	if next.CustomerRef == "" && n.CustomerRef != "" {
		next.CustomerRef = n.CustomerRef
	}
	occurred := n.OccurredAt
	next.LastEventAt = &occurred
	return next
}

// endSubscription returns the account to the free tier. The customer ref
// and the watermark survive: the customer may resubscribe, and late events
// for the dead subscription must still read as stale.
func endSubscription(current domain.Account, n domain.Notification) domain.Account {
	next := current
	next.TierStatus = domain.TierFree
	next.SubscriptionRef = ""
	next.PlanRef = ""
	next.PeriodEnd = nil
	if next.CustomerRef == "" && n.CustomerRef != "" {
		next.CustomerRef = n.CustomerRef
	}
	occurred := n.OccurredAt
	next.LastEventAt = &occurred
	return next
}
