package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/skal/internal/domain"
)

var (
	// ErrAccountNotFound is returned when an account does not exist.
	ErrAccountNotFound = errors.New("store: account not found")

	// ErrBookingLimit is returned when a creation would exceed the tier limit.
	ErrBookingLimit = errors.New("store: booking limit reached")
)

// ApplyFunc maps the current account state to the next one. The second
// return reports whether the notification changed state; false means it was
// stale or irrelevant, and the account row is left untouched. The function
// must be pure: it runs inside a transaction holding the account row lock.
type ApplyFunc func(current domain.Account) (next domain.Account, applied bool)

// ApplyResult is the outcome of ApplyNotification.
type ApplyResult struct {
	Account domain.Account

	// Applied is true when the account state was updated.
	Applied bool

	// Duplicate is true when the notification ID had already been
	// processed; the apply function was not invoked.
	Duplicate bool
}

// CreateBookingParams contains parameters for creating a booking.
type CreateBookingParams struct {
	AccountID uuid.UUID
	Name      string
	PartySize int32
	StartsAt  time.Time
}

// AccountStore is the persistence boundary of the entitlement engine.
// Implementations must make ApplyNotification and CreateBooking atomic per
// account: concurrent callers serialize on the account.
type AccountStore interface {
	// CreateAccount creates a free-tier account with the given ID.
	CreateAccount(ctx context.Context, id uuid.UUID) (domain.Account, error)

	// GetAccount returns the account or ErrAccountNotFound.
	GetAccount(ctx context.Context, id uuid.UUID) (domain.Account, error)

	// GetAccountByCustomerRef resolves an account by its provider customer
	// reference, or ErrAccountNotFound.
	GetAccountByCustomerRef(ctx context.Context, customerRef string) (domain.Account, error)

	// SetCustomerRef records the customer reference if the account has none
	// yet and returns the persisted value. A retried checkout therefore
	// reuses the first customer instead of minting another.
	SetCustomerRef(ctx context.Context, id uuid.UUID, customerRef string) (string, error)

	// ApplyNotification runs apply against the current account state and
	// persists the result together with the processed-notification record,
	// all in one transaction. A notification ID seen before short-circuits
	// to a duplicate without invoking apply. Returns ErrAccountNotFound if
	// the account does not exist.
	ApplyNotification(ctx context.Context, accountID uuid.UUID, notificationID string, apply ApplyFunc) (ApplyResult, error)

	// CountBookings returns the account's booking count.
	CountBookings(ctx context.Context, accountID uuid.UUID) (int64, error)

	// CreateBooking atomically checks the count against the account's tier
	// limit and inserts. The limit is derived from the tier as persisted,
	// read under the account lock, so a concurrent downgrade cannot race
	// an insert through. Returns ErrBookingLimit when full and
	// ErrAccountNotFound for a missing account.
	CreateBooking(ctx context.Context, params CreateBookingParams) (*domain.Booking, error)

	// ListQuietPaidAccounts returns paid-tier accounts whose last applied
	// notification is older than cutoff (or that never had one). Input for
	// the reconciliation sweep.
	ListQuietPaidAccounts(ctx context.Context, cutoff time.Time) ([]domain.Account, error)
}
