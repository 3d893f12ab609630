package service

import (
	"github.com/dukerupert/skal/internal/domain"
)

// Service-level sentinel errors. Handlers map these through the domain
// error codes they carry.
var (
	// ErrAccountNotFound means the caller referenced an account that does
	// not exist. Clients should re-authenticate.
	ErrAccountNotFound = domain.Errorf(domain.ENOTFOUND, "", "Account not found")

	// ErrAtLimit means the account's booking count has reached its tier
	// limit. Lifted by upgrading or removing a booking.
	ErrAtLimit = domain.Errorf(domain.EPAYMENT, "", "Booking limit reached for the current plan")

	// ErrSubscriptionRequired means the operation is only available to
	// paid accounts.
	ErrSubscriptionRequired = domain.Errorf(domain.EPAYMENT, "", "An active subscription is required for this operation")

	// ErrNoBillingAccount means the account has never gone through
	// checkout, so there is no billing customer to open a portal for.
	ErrNoBillingAccount = domain.Errorf(domain.EPAYMENT, "", "No billing account exists for this account yet")
)
