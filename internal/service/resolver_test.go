package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/skal/internal/domain"
)

var resolverBase = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func notification(id string, typ domain.NotificationType, at time.Time, subRef, status string) domain.Notification {
	return domain.Notification{
		ID:              id,
		Type:            typ,
		OccurredAt:      at,
		CustomerRef:     "cus_123",
		SubscriptionRef: subRef,
		PlanRef:         "price_monthly",
		ProviderStatus:  status,
	}
}

func applyAll(t *testing.T, account domain.Account, notifications []domain.Notification) domain.Account {
	t.Helper()
	for _, n := range notifications {
		account, _ = ResolveTier(account, n)
	}
	return account
}

// Any delivery order of activation, change, and payment failure must land
// on the state of the newest event.
func TestResolveTier_PermutationsConverge(t *testing.T) {
	events := []domain.Notification{
		notification("evt_1", domain.NotificationSubscriptionActivated, resolverBase, "sub_1", "active"),
		notification("evt_2", domain.NotificationSubscriptionChanged, resolverBase.Add(time.Minute), "sub_1", "active"),
		notification("evt_3", domain.NotificationPaymentFailed, resolverBase.Add(2*time.Minute), "sub_1", "past_due"),
	}

	permutations := [][]int{
		{0, 1, 2}, {0, 2, 1},
		{1, 0, 2}, {1, 2, 0},
		{2, 0, 1}, {2, 1, 0},
	}

	for _, perm := range permutations {
		t.Run(fmt.Sprintf("order_%v", perm), func(t *testing.T) {
			ordered := make([]domain.Notification, len(perm))
			for i, idx := range perm {
				ordered[i] = events[idx]
			}

			final := applyAll(t, domain.Account{TierStatus: domain.TierFree}, ordered)

			assert.Equal(t, domain.TierPastDue, final.TierStatus)
			assert.Equal(t, "sub_1", final.SubscriptionRef)
			require.NotNil(t, final.LastEventAt)
			assert.True(t, final.LastEventAt.Equal(resolverBase.Add(2*time.Minute)))
		})
	}
}

func TestResolveTier_StaleNotificationDiscarded(t *testing.T) {
	account := domain.Account{TierStatus: domain.TierFree}

	account, applied := ResolveTier(account, notification("evt_fail", domain.NotificationPaymentFailed, resolverBase.Add(time.Hour), "sub_1", "past_due"))
	require.True(t, applied)
	assert.Equal(t, domain.TierPastDue, account.TierStatus)

	// The activation that caused the failure arrives late. It must not
	// resurrect the active tier.
	next, applied := ResolveTier(account, notification("evt_act", domain.NotificationSubscriptionActivated, resolverBase, "sub_1", "active"))
	assert.False(t, applied)
	assert.Equal(t, domain.TierPastDue, next.TierStatus)
}

// subscription_ended is a complete downgrade: tier free, refs cleared,
// booking data untouched elsewhere. Customer ref and watermark survive.
func TestResolveTier_EndedClearsSubscription(t *testing.T) {
	account := domain.Account{TierStatus: domain.TierFree}
	account, _ = ResolveTier(account, notification("evt_1", domain.NotificationSubscriptionActivated, resolverBase, "sub_1", "active"))
	require.Equal(t, domain.TierActive, account.TierStatus)

	account, applied := ResolveTier(account, notification("evt_2", domain.NotificationSubscriptionEnded, resolverBase.Add(time.Hour), "sub_1", "canceled"))
	require.True(t, applied)

	assert.Equal(t, domain.TierFree, account.TierStatus)
	assert.Empty(t, account.SubscriptionRef)
	assert.Empty(t, account.PlanRef)
	assert.Nil(t, account.PeriodEnd)
	assert.Equal(t, "cus_123", account.CustomerRef, "customer ref survives for resubscription")
	require.NotNil(t, account.LastEventAt)
	assert.True(t, account.LastEventAt.Equal(resolverBase.Add(time.Hour)), "watermark survives the downgrade")
}

// A payment failure for a subscription that already ended stays a no-op,
// whether it arrives before or after the end by provider time.
func TestResolveTier_PaymentFailedAfterEnd(t *testing.T) {
	account := domain.Account{TierStatus: domain.TierFree}
	account, _ = ResolveTier(account, notification("evt_1", domain.NotificationSubscriptionActivated, resolverBase, "sub_1", "active"))
	account, _ = ResolveTier(account, notification("evt_2", domain.NotificationSubscriptionEnded, resolverBase.Add(time.Hour), "sub_1", "canceled"))
	require.Equal(t, domain.TierFree, account.TierStatus)

	// Older than the watermark: stale.
	next, applied := ResolveTier(account, notification("evt_3", domain.NotificationPaymentFailed, resolverBase.Add(30*time.Minute), "sub_1", "past_due"))
	assert.False(t, applied)
	assert.Equal(t, domain.TierFree, next.TierStatus)

	// Newer, but for a subscription no longer on record and the account
	// is not fresh: still a no-op.
	next, applied = ResolveTier(account, notification("evt_4", domain.NotificationPaymentFailed, resolverBase.Add(2*time.Hour), "sub_1", ""))
	assert.False(t, applied)
	assert.Equal(t, domain.TierFree, next.TierStatus)
}

func TestResolveTier_Recovery(t *testing.T) {
	account := domain.Account{TierStatus: domain.TierFree}
	account, _ = ResolveTier(account, notification("evt_1", domain.NotificationSubscriptionActivated, resolverBase, "sub_1", "active"))
	account, _ = ResolveTier(account, notification("evt_2", domain.NotificationPaymentFailed, resolverBase.Add(time.Minute), "sub_1", "past_due"))
	require.Equal(t, domain.TierPastDue, account.TierStatus)

	account, applied := ResolveTier(account, notification("evt_3", domain.NotificationPaymentRecovered, resolverBase.Add(2*time.Minute), "sub_1", "active"))
	require.True(t, applied)
	assert.Equal(t, domain.TierActive, account.TierStatus)
	assert.Equal(t, "sub_1", account.SubscriptionRef)
}

func TestResolveTier_GraceCancellation(t *testing.T) {
	account := domain.Account{TierStatus: domain.TierFree}
	account, _ = ResolveTier(account, notification("evt_1", domain.NotificationSubscriptionActivated, resolverBase, "sub_1", "active"))

	n := notification("evt_2", domain.NotificationSubscriptionChanged, resolverBase.Add(time.Minute), "sub_1", "active")
	n.CancelAtPeriodEnd = true
	periodEnd := resolverBase.Add(30 * 24 * time.Hour)
	n.PeriodEnd = &periodEnd

	account, applied := ResolveTier(account, n)
	require.True(t, applied)
	assert.Equal(t, domain.TierGraceCancelled, account.TierStatus)
	assert.True(t, account.TierStatus.IsPaid(), "grace keeps entitlements until period end")
	require.NotNil(t, account.PeriodEnd)
	assert.True(t, account.PeriodEnd.Equal(periodEnd))
}

func TestResolveTier_EqualTimestampApplies(t *testing.T) {
	account := domain.Account{TierStatus: domain.TierFree}
	account, _ = ResolveTier(account, notification("evt_1", domain.NotificationSubscriptionActivated, resolverBase, "sub_1", "active"))

	// Same provider timestamp: applied in arrival order, settling on the
	// embedded status of the later arrival.
	account, applied := ResolveTier(account, notification("evt_2", domain.NotificationSubscriptionChanged, resolverBase, "sub_1", "past_due"))
	require.True(t, applied)
	assert.Equal(t, domain.TierPastDue, account.TierStatus)
}

func TestResolveTier_NoOps(t *testing.T) {
	active := domain.Account{TierStatus: domain.TierFree}
	active, _ = ResolveTier(active, notification("evt_1", domain.NotificationSubscriptionActivated, resolverBase, "sub_a", "active"))

	tests := []struct {
		name    string
		account domain.Account
		n       domain.Notification
	}{
		{
			name:    "unknown type",
			account: active,
			n:       notification("evt_u", domain.NotificationUnknown, resolverBase.Add(time.Hour), "sub_a", ""),
		},
		{
			name:    "missing subscription ref",
			account: active,
			n:       notification("evt_m", domain.NotificationSubscriptionChanged, resolverBase.Add(time.Hour), "", "active"),
		},
		{
			name:    "payment failure for a different subscription",
			account: active,
			n:       notification("evt_o", domain.NotificationPaymentFailed, resolverBase.Add(time.Hour), "sub_b", "past_due"),
		},
		{
			name:    "ended for a different subscription",
			account: active,
			n:       notification("evt_e", domain.NotificationSubscriptionEnded, resolverBase.Add(time.Hour), "sub_b", "canceled"),
		},
		{
			name:    "recovery without a preceding failure",
			account: active,
			n:       notification("evt_r", domain.NotificationPaymentRecovered, resolverBase.Add(time.Hour), "sub_a", ""),
		},
		{
			name:    "payment failure on a fresh account without provider status",
			account: domain.Account{TierStatus: domain.TierFree},
			n:       notification("evt_f", domain.NotificationPaymentFailed, resolverBase, "sub_x", ""),
		},
		{
			name:    "unmapped provider status on a changed event for another subscription",
			account: active,
			n:       notification("evt_p", domain.NotificationSubscriptionChanged, resolverBase.Add(time.Hour), "sub_b", "incomplete"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, applied := ResolveTier(tt.account, tt.n)
			assert.False(t, applied)
			assert.Equal(t, tt.account, next)
		})
	}
}

// A fresh account that missed its activation adopts the provider's embedded
// state from whatever event arrives first.
func TestResolveTier_AdoptionOnFreshAccount(t *testing.T) {
	account := domain.Account{TierStatus: domain.TierFree}

	account, applied := ResolveTier(account, notification("evt_1", domain.NotificationPaymentFailed, resolverBase, "sub_1", "past_due"))
	require.True(t, applied)
	assert.Equal(t, domain.TierPastDue, account.TierStatus)
	assert.Equal(t, "sub_1", account.SubscriptionRef)
	assert.Equal(t, "cus_123", account.CustomerRef)
}

func TestResolveTier_ResubscriptionAfterEnd(t *testing.T) {
	account := domain.Account{TierStatus: domain.TierFree}
	account, _ = ResolveTier(account, notification("evt_1", domain.NotificationSubscriptionActivated, resolverBase, "sub_1", "active"))
	account, _ = ResolveTier(account, notification("evt_2", domain.NotificationSubscriptionEnded, resolverBase.Add(time.Hour), "sub_1", "canceled"))

	account, applied := ResolveTier(account, notification("evt_3", domain.NotificationSubscriptionActivated, resolverBase.Add(2*time.Hour), "sub_2", "active"))
	require.True(t, applied)
	assert.Equal(t, domain.TierActive, account.TierStatus)
	assert.Equal(t, "sub_2", account.SubscriptionRef)
}
