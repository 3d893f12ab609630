package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/skal/internal/domain"
	"github.com/dukerupert/skal/internal/store"
)

// EntitlementService answers "may this account create a booking" and owns
// the single creation path that enforces the answer atomically.
type EntitlementService interface {
	// Entitlement returns the account's tier, limit, count, and an
	// advisory may-create flag for display purposes.
	Entitlement(ctx context.Context, accountID uuid.UUID) (domain.Entitlement, error)

	// MayCreate is the advisory pre-check. The creation path re-checks
	// under the account lock, so a positive answer can still lose a race.
	MayCreate(ctx context.Context, accountID uuid.UUID) (domain.Decision, error)

	// CreateBooking is the only way a booking comes into existence. The
	// limit check and the insert are atomic per account.
	CreateBooking(ctx context.Context, params CreateBookingParams) (*domain.Booking, error)

	// RequirePaid gates paid-only operations.
	RequirePaid(ctx context.Context, accountID uuid.UUID) (domain.Decision, error)
}

// CreateBookingParams contains parameters for creating a booking.
type CreateBookingParams struct {
	AccountID uuid.UUID
	Name      string
	PartySize int32
	StartsAt  time.Time
}

type entitlementService struct {
	store store.AccountStore
}

// NewEntitlementService creates the entitlement service.
func NewEntitlementService(accounts store.AccountStore) EntitlementService {
	return &entitlementService{store: accounts}
}

// Entitlement returns the entitlement document for an account.
func (s *entitlementService) Entitlement(ctx context.Context, accountID uuid.UUID) (domain.Entitlement, error) {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return domain.Entitlement{}, ErrAccountNotFound
		}
		return domain.Entitlement{}, domain.Internal(err, "entitlement.get", "failed to load account")
	}

	count, err := s.store.CountBookings(ctx, accountID)
	if err != nil {
		return domain.Entitlement{}, domain.Internal(err, "entitlement.get", "failed to count bookings")
	}

	limit := domain.BookingLimit(account.TierStatus)
	return domain.Entitlement{
		TierStatus:   account.TierStatus,
		Limit:        limit,
		CurrentCount: count,
		MayCreate:    limit < 0 || count < limit,
	}, nil
}

// MayCreate returns the advisory creation decision.
func (s *entitlementService) MayCreate(ctx context.Context, accountID uuid.UUID) (domain.Decision, error) {
	entitlement, err := s.Entitlement(ctx, accountID)
	if err != nil {
		if domain.IsCode(err, domain.ENOTFOUND) {
			return domain.Deny(domain.DenyAccountNotFound), nil
		}
		return domain.Decision{}, err
	}

	if !entitlement.MayCreate {
		return domain.Deny(domain.DenyAtLimit), nil
	}
	return domain.Allow(), nil
}

// CreateBooking validates and delegates the atomic check-and-create to the
// store. The store derives the limit from the tier it reads under the
// account lock, so no state read here can go stale before the insert.
func (s *entitlementService) CreateBooking(ctx context.Context, params CreateBookingParams) (*domain.Booking, error) {
	if params.Name == "" {
		return nil, domain.Invalid("booking.create", "name is required")
	}
	if params.PartySize <= 0 {
		return nil, domain.Invalid("booking.create", "party size must be positive")
	}

	booking, err := s.store.CreateBooking(ctx, store.CreateBookingParams{
		AccountID: params.AccountID,
		Name:      params.Name,
		PartySize: params.PartySize,
		StartsAt:  params.StartsAt,
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrBookingLimit):
			return nil, ErrAtLimit
		case errors.Is(err, store.ErrAccountNotFound):
			return nil, ErrAccountNotFound
		default:
			return nil, domain.Internal(err, "booking.create", "failed to create booking")
		}
	}

	return booking, nil
}

// RequirePaid denies unless the account holds a paid tier. past_due and
// grace_cancelled pass: both are still entitled periods.
func (s *entitlementService) RequirePaid(ctx context.Context, accountID uuid.UUID) (domain.Decision, error) {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return domain.Deny(domain.DenyAccountNotFound), nil
		}
		return domain.Decision{}, domain.Internal(err, "entitlement.require_paid", "failed to load account")
	}

	if !account.TierStatus.IsPaid() {
		return domain.Deny(domain.DenySubscriptionRequired), nil
	}
	return domain.Allow(), nil
}
