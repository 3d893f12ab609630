package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dukerupert/skal/internal/billing"
	"github.com/dukerupert/skal/internal/domain"
	"github.com/dukerupert/skal/internal/store"
)

// IngestOutcome describes what applying a notification did. All four are
// acknowledged to the provider; only a persistence error is not.
type IngestOutcome string

const (
	// IngestApplied: the notification changed account state.
	IngestApplied IngestOutcome = "applied"

	// IngestDuplicate: the notification ID had been processed before.
	IngestDuplicate IngestOutcome = "duplicate"

	// IngestStale: processed for the first time, but the resolver
	// discarded it (out of order or irrelevant to the recorded state).
	IngestStale IngestOutcome = "stale"

	// IngestIgnored: unknown type or unresolvable account.
	IngestIgnored IngestOutcome = "ignored"
)

// SubscriptionService owns every path that talks to the billing provider
// about subscriptions: notification application, checkout, and portal.
// It never sets tier state itself; that is the resolver's job.
type SubscriptionService interface {
	// ApplyNotification routes a classified notification to its account
	// and applies it at most once. The returned error is only non-nil for
	// persistence failures and transient provider failures, which the
	// webhook handler answers with a 5xx so the provider redelivers.
	ApplyNotification(ctx context.Context, n domain.Notification) (IngestOutcome, error)

	// StartCheckout creates (or reuses) the billing customer for the
	// account and returns a checkout session URL for the given plan.
	StartCheckout(ctx context.Context, accountID uuid.UUID, planRef string) (string, error)

	// StartPortal returns a billing portal session URL, or
	// ErrNoBillingAccount if the account never checked out.
	StartPortal(ctx context.Context, accountID uuid.UUID) (string, error)
}

// SubscriptionConfig configures the checkout and portal redirect targets.
type SubscriptionConfig struct {
	// BaseURL is the application's public URL, e.g. "https://app.skal.rest".
	BaseURL string

	// DefaultPlanRef is used when a checkout request names no plan.
	DefaultPlanRef string
}

type subscriptionService struct {
	store    store.AccountStore
	provider billing.Provider
	config   SubscriptionConfig
	logger   *slog.Logger
}

// NewSubscriptionService creates the subscription service.
func NewSubscriptionService(accounts store.AccountStore, provider billing.Provider, config SubscriptionConfig, logger *slog.Logger) SubscriptionService {
	return &subscriptionService{
		store:    accounts,
		provider: provider,
		config:   config,
		logger:   logger,
	}
}

// ApplyNotification resolves the target account, enriches invoice events
// with the provider's authoritative subscription status, and funnels the
// result through the store's transactional apply.
func (s *subscriptionService) ApplyNotification(ctx context.Context, n domain.Notification) (IngestOutcome, error) {
	if n.Type == domain.NotificationUnknown {
		return IngestIgnored, nil
	}

	accountID := n.AccountID
	if accountID == uuid.Nil && n.CustomerRef != "" {
		account, err := s.store.GetAccountByCustomerRef(ctx, n.CustomerRef)
		if err != nil {
			if errors.Is(err, store.ErrAccountNotFound) {
				s.logger.Warn("notification for unknown customer, acknowledging",
					"notification_id", n.ID,
					"customer_ref", n.CustomerRef)
				return IngestIgnored, nil
			}
			return "", domain.Internal(err, "subscription.apply", "failed to resolve account")
		}
		accountID = account.ID
	}
	if accountID == uuid.Nil {
		s.logger.Warn("notification carries no account reference, acknowledging",
			"notification_id", n.ID,
			"type", string(n.Type))
		return IngestIgnored, nil
	}

	// Invoice events do not embed the subscription status. Fetch it so
	// the resolver can map the provider's authoritative state instead of
	// guessing from the event type. A subscription the provider no longer
	// knows is a definitive answer and falls back to the guarded
	// type-implied transition; anything else is transient, and answering
	// with an error keeps the notification ID unrecorded so redelivery
	// retries the re-fetch instead of pinning a guess until the sweep.
	if n.ProviderStatus == "" &&
		(n.Type == domain.NotificationPaymentFailed || n.Type == domain.NotificationPaymentRecovered) {
		sub, err := s.provider.GetSubscription(ctx, n.SubscriptionRef)
		switch {
		case err == nil:
			n.ProviderStatus = sub.Status
			n.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
			if n.PlanRef == "" {
				n.PlanRef = sub.PlanRef
			}
			if n.PeriodEnd == nil && !sub.CurrentPeriodEnd.IsZero() {
				periodEnd := sub.CurrentPeriodEnd
				n.PeriodEnd = &periodEnd
			}
		case errors.Is(err, billing.ErrSubscriptionNotFound):
			s.logger.Warn("subscription no longer exists, using type-implied transition",
				"notification_id", n.ID,
				"subscription_ref", n.SubscriptionRef)
		default:
			return "", domain.WrapError(err, domain.EINTERNAL, "subscription.apply", "failed to fetch subscription state")
		}
	}

	result, err := s.store.ApplyNotification(ctx, accountID, n.ID, func(current domain.Account) (domain.Account, bool) {
		return ResolveTier(current, n)
	})
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			s.logger.Warn("notification for missing account, acknowledging",
				"notification_id", n.ID,
				"account_id", accountID)
			return IngestIgnored, nil
		}
		return "", domain.Internal(err, "subscription.apply", "failed to persist notification")
	}

	switch {
	case result.Duplicate:
		return IngestDuplicate, nil
	case !result.Applied:
		return IngestStale, nil
	default:
		s.logger.Info("notification applied",
			"notification_id", n.ID,
			"type", string(n.Type),
			"account_id", accountID,
			"tier_status", string(result.Account.TierStatus))
		return IngestApplied, nil
	}
}

// StartCheckout lazily creates the billing customer, persists its reference
// before the session is created, and returns the session URL. If two
// checkouts race, SetCustomerRef keeps the first customer and the loser's
// session is simply built on it.
func (s *subscriptionService) StartCheckout(ctx context.Context, accountID uuid.UUID, planRef string) (string, error) {
	if planRef == "" {
		planRef = s.config.DefaultPlanRef
	}
	if planRef == "" {
		return "", domain.Invalid("subscription.checkout", "plan_ref is required")
	}

	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return "", ErrAccountNotFound
		}
		return "", domain.Internal(err, "subscription.checkout", "failed to load account")
	}

	customerRef := account.CustomerRef
	if customerRef == "" {
		customer, err := s.provider.CreateCustomer(ctx, billing.CreateCustomerParams{
			Metadata: map[string]string{"account_id": accountID.String()},
		})
		if err != nil {
			return "", domain.WrapError(err, domain.EPAYMENT, "subscription.checkout", "failed to create billing customer")
		}

		// Persist before creating the session so webhook events referring
		// to this customer can always be routed.
		customerRef, err = s.store.SetCustomerRef(ctx, accountID, customer.ID)
		if err != nil {
			return "", domain.Internal(err, "subscription.checkout", "failed to persist customer reference")
		}
	}

	session, err := s.provider.CreateCheckoutSession(ctx, billing.CreateCheckoutSessionParams{
		CustomerID: customerRef,
		PriceID:    planRef,
		SuccessURL: s.config.BaseURL + "/billing/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  s.config.BaseURL + "/billing/cancelled",
		Metadata:   map[string]string{"account_id": accountID.String()},
	})
	if err != nil {
		return "", domain.WrapError(err, domain.EPAYMENT, "subscription.checkout", "failed to create checkout session")
	}

	return session.URL, nil
}

// StartPortal returns a billing portal session URL.
func (s *subscriptionService) StartPortal(ctx context.Context, accountID uuid.UUID) (string, error) {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return "", ErrAccountNotFound
		}
		return "", domain.Internal(err, "subscription.portal", "failed to load account")
	}

	if account.CustomerRef == "" {
		return "", ErrNoBillingAccount
	}

	session, err := s.provider.CreatePortalSession(ctx, billing.CreatePortalSessionParams{
		CustomerID: account.CustomerRef,
		ReturnURL:  s.config.BaseURL + "/settings/billing",
	})
	if err != nil {
		return "", domain.WrapError(err, domain.EPAYMENT, "subscription.portal", "failed to create portal session")
	}

	return session.URL, nil
}
