package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/skal/internal/billing"
	"github.com/dukerupert/skal/internal/domain"
	"github.com/dukerupert/skal/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSubscriptionService(t *testing.T) (SubscriptionService, *store.Memory, *billing.MockProvider, uuid.UUID) {
	t.Helper()

	accounts := store.NewMemory()
	provider := billing.NewMockProvider()
	svc := NewSubscriptionService(accounts, provider, SubscriptionConfig{BaseURL: "http://localhost:3000"}, testLogger())

	accountID := uuid.New()
	_, err := accounts.CreateAccount(context.Background(), accountID)
	require.NoError(t, err)

	return svc, accounts, provider, accountID
}

func TestApplyNotification_Applied(t *testing.T) {
	svc, accounts, _, accountID := newTestSubscriptionService(t)
	ctx := context.Background()

	outcome, err := svc.ApplyNotification(ctx, domain.Notification{
		ID:              "evt_1",
		Type:            domain.NotificationSubscriptionActivated,
		OccurredAt:      time.Now(),
		AccountID:       accountID,
		CustomerRef:     "cus_1",
		SubscriptionRef: "sub_1",
		PlanRef:         "price_monthly",
		ProviderStatus:  "active",
	})
	require.NoError(t, err)
	assert.Equal(t, IngestApplied, outcome)

	account, err := accounts.GetAccount(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, domain.TierActive, account.TierStatus)
	assert.Equal(t, "sub_1", account.SubscriptionRef)
	assert.Equal(t, "cus_1", account.CustomerRef)
}

// Replaying the same notification ID must change nothing, however often.
func TestApplyNotification_Idempotent(t *testing.T) {
	svc, accounts, _, accountID := newTestSubscriptionService(t)
	ctx := context.Background()

	n := domain.Notification{
		ID:              "evt_once",
		Type:            domain.NotificationSubscriptionActivated,
		OccurredAt:      time.Now(),
		AccountID:       accountID,
		SubscriptionRef: "sub_1",
		ProviderStatus:  "active",
	}

	outcome, err := svc.ApplyNotification(ctx, n)
	require.NoError(t, err)
	require.Equal(t, IngestApplied, outcome)

	first, err := accounts.GetAccount(ctx, accountID)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		outcome, err = svc.ApplyNotification(ctx, n)
		require.NoError(t, err)
		assert.Equal(t, IngestDuplicate, outcome)
	}

	after, err := accounts.GetAccount(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, first, after)
}

func TestApplyNotification_Stale(t *testing.T) {
	svc, _, _, accountID := newTestSubscriptionService(t)
	ctx := context.Background()
	now := time.Now()

	outcome, err := svc.ApplyNotification(ctx, domain.Notification{
		ID:              "evt_new",
		Type:            domain.NotificationSubscriptionChanged,
		OccurredAt:      now,
		AccountID:       accountID,
		SubscriptionRef: "sub_1",
		ProviderStatus:  "active",
	})
	require.NoError(t, err)
	require.Equal(t, IngestApplied, outcome)

	outcome, err = svc.ApplyNotification(ctx, domain.Notification{
		ID:              "evt_old",
		Type:            domain.NotificationSubscriptionActivated,
		OccurredAt:      now.Add(-time.Hour),
		AccountID:       accountID,
		SubscriptionRef: "sub_1",
		ProviderStatus:  "active",
	})
	require.NoError(t, err)
	assert.Equal(t, IngestStale, outcome)
}

func TestApplyNotification_IgnoredOutcomes(t *testing.T) {
	svc, _, _, _ := newTestSubscriptionService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		n    domain.Notification
	}{
		{
			name: "unknown type",
			n:    domain.Notification{ID: "evt_u", Type: domain.NotificationUnknown},
		},
		{
			name: "unresolvable account",
			n: domain.Notification{
				ID:              "evt_n",
				Type:            domain.NotificationSubscriptionActivated,
				OccurredAt:      time.Now(),
				CustomerRef:     "cus_unknown",
				SubscriptionRef: "sub_1",
				ProviderStatus:  "active",
			},
		},
		{
			name: "no account reference at all",
			n: domain.Notification{
				ID:              "evt_e",
				Type:            domain.NotificationSubscriptionActivated,
				OccurredAt:      time.Now(),
				SubscriptionRef: "sub_1",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, err := svc.ApplyNotification(ctx, tt.n)
			require.NoError(t, err)
			assert.Equal(t, IngestIgnored, outcome)
		})
	}
}

// Invoice notifications carry no subscription status; the service must
// fetch it so the resolver can use the provider's authoritative view.
func TestApplyNotification_EnrichesPaymentEvents(t *testing.T) {
	svc, accounts, provider, accountID := newTestSubscriptionService(t)
	ctx := context.Background()

	provider.Subscriptions["sub_1"] = &billing.Subscription{
		ID:      "sub_1",
		Status:  "past_due",
		PlanRef: "price_monthly",
	}

	outcome, err := svc.ApplyNotification(ctx, domain.Notification{
		ID:              "evt_inv",
		Type:            domain.NotificationPaymentFailed,
		OccurredAt:      time.Now(),
		AccountID:       accountID,
		SubscriptionRef: "sub_1",
	})
	require.NoError(t, err)
	assert.Equal(t, IngestApplied, outcome)
	assert.Contains(t, provider.CallLog, "GetSubscription(sub_1)")

	account, err := accounts.GetAccount(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, domain.TierPastDue, account.TierStatus)
	assert.Equal(t, "price_monthly", account.PlanRef)
}

// A transient re-fetch failure is not acknowledged: the notification ID
// stays unrecorded, so the provider's redelivery retries the enrichment
// and applies the authoritative status once the provider recovers.
func TestApplyNotification_EnrichmentFailureRetries(t *testing.T) {
	svc, accounts, provider, accountID := newTestSubscriptionService(t)
	ctx := context.Background()
	now := time.Now()

	_, err := svc.ApplyNotification(ctx, domain.Notification{
		ID:              "evt_act",
		Type:            domain.NotificationSubscriptionActivated,
		OccurredAt:      now.Add(-time.Minute),
		AccountID:       accountID,
		SubscriptionRef: "sub_1",
		ProviderStatus:  "active",
	})
	require.NoError(t, err)

	provider.GetSubscriptionFunc = func(ctx context.Context, subscriptionID string) (*billing.Subscription, error) {
		return nil, errors.New("stripe is down")
	}

	failed := domain.Notification{
		ID:              "evt_fail",
		Type:            domain.NotificationPaymentFailed,
		OccurredAt:      now,
		AccountID:       accountID,
		SubscriptionRef: "sub_1",
	}
	_, err = svc.ApplyNotification(ctx, failed)
	require.Error(t, err)
	assert.Equal(t, domain.EINTERNAL, domain.ErrorCode(err))

	account, err := accounts.GetAccount(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, domain.TierActive, account.TierStatus, "state untouched until the retry")

	// Redelivery of the same ID once the provider is back.
	provider.GetSubscriptionFunc = nil
	provider.Subscriptions["sub_1"] = &billing.Subscription{ID: "sub_1", Status: "past_due"}

	outcome, err := svc.ApplyNotification(ctx, failed)
	require.NoError(t, err)
	assert.Equal(t, IngestApplied, outcome)

	account, err = accounts.GetAccount(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, domain.TierPastDue, account.TierStatus)
}

// A subscription the provider no longer knows is a definitive answer, so
// the guarded type transition applies instead of retrying forever.
func TestApplyNotification_EnrichmentMissingSubscriptionFallsBack(t *testing.T) {
	svc, accounts, _, accountID := newTestSubscriptionService(t)
	ctx := context.Background()
	now := time.Now()

	_, err := svc.ApplyNotification(ctx, domain.Notification{
		ID:              "evt_act",
		Type:            domain.NotificationSubscriptionActivated,
		OccurredAt:      now.Add(-time.Minute),
		AccountID:       accountID,
		SubscriptionRef: "sub_1",
		ProviderStatus:  "active",
	})
	require.NoError(t, err)

	outcome, err := svc.ApplyNotification(ctx, domain.Notification{
		ID:              "evt_fail",
		Type:            domain.NotificationPaymentFailed,
		OccurredAt:      now,
		AccountID:       accountID,
		SubscriptionRef: "sub_1",
	})
	require.NoError(t, err)
	assert.Equal(t, IngestApplied, outcome)

	account, err := accounts.GetAccount(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, domain.TierPastDue, account.TierStatus)
}

type failingStore struct {
	*store.Memory
}

func (f *failingStore) ApplyNotification(ctx context.Context, accountID uuid.UUID, notificationID string, apply store.ApplyFunc) (store.ApplyResult, error) {
	return store.ApplyResult{}, errors.New("connection reset")
}

// A persistence failure must surface as an error so the webhook handler
// answers 5xx and the provider redelivers.
func TestApplyNotification_PersistenceFailure(t *testing.T) {
	accounts := store.NewMemory()
	accountID := uuid.New()
	_, err := accounts.CreateAccount(context.Background(), accountID)
	require.NoError(t, err)

	svc := NewSubscriptionService(&failingStore{accounts}, billing.NewMockProvider(), SubscriptionConfig{}, testLogger())

	_, err = svc.ApplyNotification(context.Background(), domain.Notification{
		ID:              "evt_1",
		Type:            domain.NotificationSubscriptionActivated,
		OccurredAt:      time.Now(),
		AccountID:       accountID,
		SubscriptionRef: "sub_1",
		ProviderStatus:  "active",
	})
	require.Error(t, err)
	assert.Equal(t, domain.EINTERNAL, domain.ErrorCode(err))
}

func TestStartCheckout_CreatesAndPersistsCustomer(t *testing.T) {
	svc, accounts, provider, accountID := newTestSubscriptionService(t)
	ctx := context.Background()

	url, err := svc.StartCheckout(ctx, accountID, "price_monthly")
	require.NoError(t, err)
	assert.NotEmpty(t, url)

	account, err := accounts.GetAccount(ctx, accountID)
	require.NoError(t, err)
	assert.NotEmpty(t, account.CustomerRef, "customer ref persisted before the session")
	assert.Equal(t, domain.TierFree, account.TierStatus, "checkout never changes tier")

	// A second checkout reuses the persisted customer.
	created := len(provider.Customers)
	_, err = svc.StartCheckout(ctx, accountID, "price_monthly")
	require.NoError(t, err)
	assert.Len(t, provider.Customers, created)
}

func TestStartCheckout_Validation(t *testing.T) {
	svc, _, _, accountID := newTestSubscriptionService(t)
	ctx := context.Background()

	_, err := svc.StartCheckout(ctx, accountID, "")
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))

	_, err = svc.StartCheckout(ctx, uuid.New(), "price_monthly")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestStartPortal(t *testing.T) {
	svc, accounts, _, accountID := newTestSubscriptionService(t)
	ctx := context.Background()

	// Without a billing customer there is nothing to open.
	_, err := svc.StartPortal(ctx, accountID)
	assert.ErrorIs(t, err, ErrNoBillingAccount)

	_, err = accounts.SetCustomerRef(ctx, accountID, "cus_1")
	require.NoError(t, err)

	url, err := svc.StartPortal(ctx, accountID)
	require.NoError(t, err)
	assert.NotEmpty(t, url)
}
