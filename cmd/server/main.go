package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dukerupert/skal/internal"
	"github.com/dukerupert/skal/internal/billing"
	"github.com/dukerupert/skal/internal/handler/api"
	"github.com/dukerupert/skal/internal/handler/webhook"
	"github.com/dukerupert/skal/internal/jobs"
	"github.com/dukerupert/skal/internal/middleware"
	"github.com/dukerupert/skal/internal/router"
	"github.com/dukerupert/skal/internal/routes"
	"github.com/dukerupert/skal/internal/service"
	"github.com/dukerupert/skal/internal/store"
	"github.com/dukerupert/skal/internal/telemetry"
)

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize Sentry error tracking
	sentryFlush, err := telemetry.InitSentry(cfg.Sentry, logger)
	if err != nil {
		return fmt.Errorf("sentry initialization failed: %w", err)
	}
	defer sentryFlush()

	// Initialize Prometheus business metrics
	telemetry.Init("skal")

	// Initialize database/sql connection for migrations
	logger.Info("Connecting to database...")
	sqlDB, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer sqlDB.Close()

	// Verify database connection
	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	logger.Info("Database connection established")

	// Run migrations
	logger.Info("Running database migrations...")
	if err := internal.RunMigrations(sqlDB); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database migrations completed successfully")

	// Initialize pgx connection pool for application
	pool, err := pgxpool.New(ctx, cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	defer pool.Close()

	accounts := store.NewPostgres(pool)

	// Initialize Stripe billing provider
	logger.Info("Initializing Stripe billing provider...")
	stripeConfig := cfg.BillingConfig()
	billingProvider, err := billing.NewStripeProvider(stripeConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize Stripe provider: %w", err)
	}
	logger.Info("Stripe billing provider initialized", "test_mode", stripeConfig.IsTestMode())

	// Initialize services
	subscriptionService := service.NewSubscriptionService(accounts, billingProvider, service.SubscriptionConfig{
		BaseURL:        cfg.BaseURL,
		DefaultPlanRef: cfg.Stripe.DefaultPriceID,
	}, logger)
	entitlementService := service.NewEntitlementService(accounts)

	// Build route dependencies
	deps := routes.Deps{
		Webhook: webhook.NewStripeHandler(billingProvider, subscriptionService, webhook.StripeWebhookConfig{
			WebhookSecret: cfg.Stripe.WebhookSecret,
		}, logger),
		Entitlement: api.NewEntitlementHandler(entitlementService),
		Booking:     api.NewBookingHandler(entitlementService),
		Billing:     api.NewBillingHandler(subscriptionService),
	}

	// Initialize middleware
	httpMetrics := middleware.NewMetrics("skal")
	rateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	defer rateLimiter.Stop()

	r := router.New(
		router.Recovery(logger),
		middleware.RequestID,
		httpMetrics.Middleware,
		middleware.MaxBodySize(middleware.DefaultMaxBodySize),
		router.Logger(logger),
	)
	// Rate limiting covers the account API only; webhook deliveries and
	// operational endpoints must never see a 429.
	routes.Register(r, deps, rateLimiter.Middleware)

	// Start the reconciliation sweep
	reconciler := jobs.NewReconciler(accounts, billingProvider, cfg.Reconcile.Interval, cfg.Reconcile.QuietWindow, logger)
	go reconciler.Run(ctx)

	// Start server
	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "address", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info("Server stopped")

	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
