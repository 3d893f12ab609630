package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dukerupert/skal/internal/domain"
)

// Postgres implements AccountStore on a pgx connection pool. Per-account
// serialization comes from SELECT ... FOR UPDATE on the account row: both
// notification application and booking creation take the row lock first, so
// the two paths cannot interleave for the same account.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres-backed account store.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const accountColumns = `id, tier_status, customer_ref, subscription_ref, plan_ref, period_end, last_event_at, created_at, updated_at`

func scanAccount(row pgx.Row) (domain.Account, error) {
	var (
		a               domain.Account
		tierStatus      string
		customerRef     pgtype.Text
		subscriptionRef pgtype.Text
		planRef         pgtype.Text
		periodEnd       pgtype.Timestamptz
		lastEventAt     pgtype.Timestamptz
	)

	err := row.Scan(&a.ID, &tierStatus, &customerRef, &subscriptionRef, &planRef, &periodEnd, &lastEventAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return domain.Account{}, err
	}

	a.TierStatus = domain.TierStatus(tierStatus)
	a.CustomerRef = customerRef.String
	a.SubscriptionRef = subscriptionRef.String
	a.PlanRef = planRef.String
	if periodEnd.Valid {
		t := periodEnd.Time
		a.PeriodEnd = &t
	}
	if lastEventAt.Valid {
		t := lastEventAt.Time
		a.LastEventAt = &t
	}

	return a, nil
}

func textOrNull(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func timestamptzOrNull(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}

// CreateAccount creates a free-tier account.
func (s *Postgres) CreateAccount(ctx context.Context, id uuid.UUID) (domain.Account, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO accounts (id, tier_status)
		VALUES ($1, 'free')
		RETURNING `+accountColumns, id)

	account, err := scanAccount(row)
	if err != nil {
		return domain.Account{}, fmt.Errorf("create account: %w", err)
	}
	return account, nil
}

// GetAccount returns the account or ErrAccountNotFound.
func (s *Postgres) GetAccount(ctx context.Context, id uuid.UUID) (domain.Account, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)

	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, ErrAccountNotFound
		}
		return domain.Account{}, fmt.Errorf("get account: %w", err)
	}
	return account, nil
}

// GetAccountByCustomerRef resolves an account by provider customer reference.
func (s *Postgres) GetAccountByCustomerRef(ctx context.Context, customerRef string) (domain.Account, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE customer_ref = $1`, customerRef)

	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, ErrAccountNotFound
		}
		return domain.Account{}, fmt.Errorf("get account by customer ref: %w", err)
	}
	return account, nil
}

// SetCustomerRef records the customer reference if absent and returns the
// persisted value. COALESCE keeps the first writer's value.
func (s *Postgres) SetCustomerRef(ctx context.Context, id uuid.UUID, customerRef string) (string, error) {
	var persisted pgtype.Text
	err := s.pool.QueryRow(ctx, `
		UPDATE accounts
		SET customer_ref = COALESCE(customer_ref, $2), updated_at = now()
		WHERE id = $1
		RETURNING customer_ref`, id, textOrNull(customerRef)).Scan(&persisted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrAccountNotFound
		}
		return "", fmt.Errorf("set customer ref: %w", err)
	}
	return persisted.String, nil
}

// ApplyNotification applies a notification in one transaction: row lock,
// processed-record insert, resolver callback, account update. The processed
// record and the state change commit or roll back together, so a crash
// between them cannot strand a notification marked done but unapplied.
func (s *Postgres) ApplyNotification(ctx context.Context, accountID uuid.UUID, notificationID string, apply ApplyFunc) (ApplyResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return ApplyResult{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, accountID)
	current, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ApplyResult{}, ErrAccountNotFound
		}
		return ApplyResult{}, fmt.Errorf("lock account: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO processed_notifications (notification_id, account_id)
		VALUES ($1, $2)
		ON CONFLICT (notification_id) DO NOTHING`, notificationID, accountID)
	if err != nil {
		return ApplyResult{}, fmt.Errorf("record notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Already processed. Commit to release the lock promptly.
		if err := tx.Commit(ctx); err != nil {
			return ApplyResult{}, fmt.Errorf("commit: %w", err)
		}
		return ApplyResult{Account: current, Duplicate: true}, nil
	}

	next, applied := apply(current)
	if applied {
		_, err = tx.Exec(ctx, `
			UPDATE accounts
			SET tier_status = $2,
			    customer_ref = $3,
			    subscription_ref = $4,
			    plan_ref = $5,
			    period_end = $6,
			    last_event_at = $7,
			    updated_at = now()
			WHERE id = $1`,
			accountID,
			string(next.TierStatus),
			textOrNull(next.CustomerRef),
			textOrNull(next.SubscriptionRef),
			textOrNull(next.PlanRef),
			timestamptzOrNull(next.PeriodEnd),
			timestamptzOrNull(next.LastEventAt),
		)
		if err != nil {
			return ApplyResult{}, fmt.Errorf("update account: %w", err)
		}
	} else {
		next = current
	}

	if err := tx.Commit(ctx); err != nil {
		return ApplyResult{}, fmt.Errorf("commit: %w", err)
	}

	return ApplyResult{Account: next, Applied: applied}, nil
}

// CountBookings returns the account's booking count.
func (s *Postgres) CountBookings(ctx context.Context, accountID uuid.UUID) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM bookings WHERE account_id = $1`, accountID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count bookings: %w", err)
	}
	return count, nil
}

// CreateBooking checks the limit and inserts under the account row lock.
// The tier is re-read inside the lock so the limit reflects any downgrade
// that committed after the caller last looked at the account.
func (s *Postgres) CreateBooking(ctx context.Context, params CreateBookingParams) (*domain.Booking, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var tierStatus string
	err = tx.QueryRow(ctx, `SELECT tier_status FROM accounts WHERE id = $1 FOR UPDATE`, params.AccountID).Scan(&tierStatus)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("lock account: %w", err)
	}

	if limit := domain.BookingLimit(domain.TierStatus(tierStatus)); limit >= 0 {
		var count int64
		if err := tx.QueryRow(ctx, `SELECT count(*) FROM bookings WHERE account_id = $1`, params.AccountID).Scan(&count); err != nil {
			return nil, fmt.Errorf("count bookings: %w", err)
		}
		if count >= limit {
			return nil, ErrBookingLimit
		}
	}

	booking := domain.Booking{
		ID:        uuid.New(),
		AccountID: params.AccountID,
		Name:      params.Name,
		PartySize: params.PartySize,
		StartsAt:  params.StartsAt,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO bookings (id, account_id, name, party_size, starts_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		booking.ID, booking.AccountID, booking.Name, booking.PartySize, booking.StartsAt,
	).Scan(&booking.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert booking: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return &booking, nil
}

// ListQuietPaidAccounts returns paid accounts with no applied notification
// since cutoff.
func (s *Postgres) ListQuietPaidAccounts(ctx context.Context, cutoff time.Time) ([]domain.Account, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE tier_status IN ('active', 'past_due', 'grace_cancelled')
		  AND (last_event_at IS NULL OR last_event_at < $1)
		ORDER BY last_event_at NULLS FIRST`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list quiet paid accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list quiet paid accounts: %w", err)
	}

	return accounts, nil
}
