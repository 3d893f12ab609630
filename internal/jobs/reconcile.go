package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/skal/internal/billing"
	"github.com/dukerupert/skal/internal/domain"
	"github.com/dukerupert/skal/internal/service"
	"github.com/dukerupert/skal/internal/store"
	"github.com/dukerupert/skal/internal/telemetry"
)

// Reconciler periodically re-checks paid accounts that have not seen a
// provider notification for a while. Webhook delivery is retried but not
// guaranteed forever; the sweep bounds how long a silently dropped
// cancellation can keep an account entitled.
type Reconciler struct {
	store       store.AccountStore
	provider    billing.Provider
	interval    time.Duration
	quietWindow time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// NewReconciler creates a reconciler. interval is how often the sweep runs;
// quietWindow is how long an account may go without an applied notification
// before it is re-checked. Both should sit well past the provider's
// redelivery horizon so the sweep never races normal webhook traffic.
func NewReconciler(accounts store.AccountStore, provider billing.Provider, interval, quietWindow time.Duration, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:       accounts,
		provider:    provider,
		interval:    interval,
		quietWindow: quietWindow,
		logger:      logger,
		now:         time.Now,
	}
}

// Run sweeps on the configured interval until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reconciler started",
		"interval", r.interval,
		"quiet_window", r.quietWindow)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopped")
			return
		case <-ticker.C:
			applied, err := r.Sweep(ctx)
			if err != nil {
				r.logger.Error("reconciliation sweep failed", "error", err)
				telemetry.CaptureError(err)
				continue
			}
			if applied > 0 {
				r.logger.Info("reconciliation sweep corrected accounts", "applied", applied)
			}
		}
	}
}

// Sweep re-fetches the subscription of every quiet paid account and pushes
// the provider's current state through the normal notification path, so
// reconciliation obeys the same watermark and idempotency rules as webhook
// traffic. Returns how many accounts changed state.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	now := r.now()
	cutoff := now.Add(-r.quietWindow)

	accounts, err := r.store.ListQuietPaidAccounts(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list quiet accounts: %w", err)
	}

	if telemetry.Business != nil {
		telemetry.Business.ReconcileSweeps.Inc()
	}

	applied := 0
	for _, account := range accounts {
		if account.SubscriptionRef == "" {
			continue
		}

		sub, err := r.provider.GetSubscription(ctx, account.SubscriptionRef)
		if err != nil {
			r.logger.Warn("reconcile: subscription fetch failed",
				"account_id", account.ID,
				"subscription_ref", account.SubscriptionRef,
				"error", err)
			continue
		}

		n := domain.Notification{
			ID:                fmt.Sprintf("reconcile_%s_%d", sub.ID, now.Unix()),
			Type:              domain.NotificationSubscriptionChanged,
			OccurredAt:        now,
			AccountID:         account.ID,
			SubscriptionRef:   sub.ID,
			PlanRef:           sub.PlanRef,
			ProviderStatus:    sub.Status,
			CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		}
		if !sub.CurrentPeriodEnd.IsZero() {
			periodEnd := sub.CurrentPeriodEnd
			n.PeriodEnd = &periodEnd
		}

		result, err := r.store.ApplyNotification(ctx, account.ID, n.ID, func(current domain.Account) (domain.Account, bool) {
			return service.ResolveTier(current, n)
		})
		if err != nil {
			r.logger.Error("reconcile: apply failed",
				"account_id", account.ID,
				"error", err)
			continue
		}

		if result.Applied && result.Account.TierStatus != account.TierStatus {
			applied++
			r.logger.Info("reconcile: account corrected",
				"account_id", account.ID,
				"old_status", string(account.TierStatus),
				"new_status", string(result.Account.TierStatus))
			if telemetry.Business != nil {
				telemetry.Business.ReconcileCorrected.Inc()
			}
		}
	}

	return applied, nil
}
