package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/skal/internal/domain"
)

// Memory implements AccountStore in process memory. Used in tests and for
// local development without a database. One mutex guards everything, which
// gives the same per-account atomicity the Postgres row lock does.
type Memory struct {
	mu        sync.Mutex
	accounts  map[uuid.UUID]domain.Account
	bookings  map[uuid.UUID][]domain.Booking
	processed map[string]uuid.UUID
	now       func() time.Time
}

// NewMemory creates an empty in-memory account store.
func NewMemory() *Memory {
	return &Memory{
		accounts:  make(map[uuid.UUID]domain.Account),
		bookings:  make(map[uuid.UUID][]domain.Booking),
		processed: make(map[string]uuid.UUID),
		now:       time.Now,
	}
}

// CreateAccount creates a free-tier account.
func (s *Memory) CreateAccount(ctx context.Context, id uuid.UUID) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	account := domain.Account{
		ID:         id,
		TierStatus: domain.TierFree,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.accounts[id] = account
	return account, nil
}

// GetAccount returns the account or ErrAccountNotFound.
func (s *Memory) GetAccount(ctx context.Context, id uuid.UUID) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return domain.Account{}, ErrAccountNotFound
	}
	return account, nil
}

// GetAccountByCustomerRef resolves an account by provider customer reference.
func (s *Memory) GetAccountByCustomerRef(ctx context.Context, customerRef string) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if customerRef != "" {
		for _, account := range s.accounts {
			if account.CustomerRef == customerRef {
				return account, nil
			}
		}
	}
	return domain.Account{}, ErrAccountNotFound
}

// SetCustomerRef records the customer reference if absent and returns the
// persisted value.
func (s *Memory) SetCustomerRef(ctx context.Context, id uuid.UUID, customerRef string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return "", ErrAccountNotFound
	}
	if account.CustomerRef == "" {
		account.CustomerRef = customerRef
		account.UpdatedAt = s.now()
		s.accounts[id] = account
	}
	return account.CustomerRef, nil
}

// ApplyNotification applies a notification atomically.
func (s *Memory) ApplyNotification(ctx context.Context, accountID uuid.UUID, notificationID string, apply ApplyFunc) (ApplyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.accounts[accountID]
	if !ok {
		return ApplyResult{}, ErrAccountNotFound
	}

	if _, seen := s.processed[notificationID]; seen {
		return ApplyResult{Account: current, Duplicate: true}, nil
	}
	s.processed[notificationID] = accountID

	next, applied := apply(current)
	if applied {
		next.UpdatedAt = s.now()
		s.accounts[accountID] = next
	} else {
		next = current
	}

	return ApplyResult{Account: next, Applied: applied}, nil
}

// CountBookings returns the account's booking count.
func (s *Memory) CountBookings(ctx context.Context, accountID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return int64(len(s.bookings[accountID])), nil
}

// CreateBooking checks the limit and inserts under the store lock. The
// limit comes from the account's tier as held right now, matching the
// Postgres re-read under the row lock.
func (s *Memory) CreateBooking(ctx context.Context, params CreateBookingParams) (*domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[params.AccountID]
	if !ok {
		return nil, ErrAccountNotFound
	}

	limit := domain.BookingLimit(account.TierStatus)
	if limit >= 0 && int64(len(s.bookings[params.AccountID])) >= limit {
		return nil, ErrBookingLimit
	}

	booking := domain.Booking{
		ID:        uuid.New(),
		AccountID: params.AccountID,
		Name:      params.Name,
		PartySize: params.PartySize,
		StartsAt:  params.StartsAt,
		CreatedAt: s.now(),
	}
	s.bookings[params.AccountID] = append(s.bookings[params.AccountID], booking)

	return &booking, nil
}

// ListQuietPaidAccounts returns paid accounts with no applied notification
// since cutoff.
func (s *Memory) ListQuietPaidAccounts(ctx context.Context, cutoff time.Time) ([]domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var accounts []domain.Account
	for _, account := range s.accounts {
		if !account.TierStatus.IsPaid() {
			continue
		}
		if account.LastEventAt == nil || account.LastEventAt.Before(cutoff) {
			accounts = append(accounts, account)
		}
	}
	return accounts, nil
}
