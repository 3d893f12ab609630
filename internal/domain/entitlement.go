package domain

// DenyReason says why an entitlement check refused a creation attempt. The
// reasons are distinct because each prompts a different user action.
type DenyReason string

const (
	// DenyAtLimit: the account's booking count has reached its tier limit.
	// Fixed by upgrading or deleting a booking.
	DenyAtLimit DenyReason = "at_limit"

	// DenySubscriptionRequired: the operation itself is paid-only.
	// Fixed by subscribing.
	DenySubscriptionRequired DenyReason = "subscription_required"

	// DenyAccountNotFound: no such account. Prompts re-authentication.
	DenyAccountNotFound DenyReason = "account_not_found"
)

// Decision is the outcome of an entitlement check.
type Decision struct {
	Allowed bool
	Reason  DenyReason
}

// Allow returns a permitting decision.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny returns a refusing decision with its reason.
func Deny(reason DenyReason) Decision {
	return Decision{Reason: reason}
}

// Entitlement is the read-only view served to clients so the UI can show
// limits without a failed create. It is advisory: the creation path
// re-checks under a lock.
type Entitlement struct {
	TierStatus   TierStatus `json:"tier_status"`
	Limit        int64      `json:"limit"`
	CurrentCount int64      `json:"current_count"`
	MayCreate    bool       `json:"may_create"`
}
