package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/lib/pq"

	"github.com/josh-kwaku/credit-ledger/internal/alert"
	"github.com/josh-kwaku/credit-ledger/internal/config"
	"github.com/josh-kwaku/credit-ledger/internal/handler"
	"github.com/josh-kwaku/credit-ledger/internal/ledger"
	"github.com/josh-kwaku/credit-ledger/internal/logging"
	"github.com/josh-kwaku/credit-ledger/internal/repository"
	"github.com/josh-kwaku/credit-ledger/internal/server"
	"github.com/josh-kwaku/credit-ledger/internal/service/credit"
	"github.com/josh-kwaku/credit-ledger/internal/service/reconcile"
	"github.com/josh-kwaku/credit-ledger/internal/service/withdrawal"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Init("credit-ledger", cfg.LogLevel, cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := connectDB(ctx, cfg)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if cfg.AutoMigrate {
		applied, err := repository.RunMigrations(ctx, db, cfg.MigrationsDir)
		if err != nil {
			logger.Error("failed to apply migrations", "error", err)
			os.Exit(1)
		}
		logger.Info("migrations applied", "count", len(applied))
	}

	pricing, err := credit.LoadPricing(cfg.PricingFile)
	if err != nil {
		logger.Error("failed to load pricing", "error", err)
		os.Exit(1)
	}

	notifier := alert.Multi{alert.NewLogNotifier(logger)}
	if cfg.AlertWebhookURL != "" {
		notifier = append(notifier, alert.NewWebhookNotifier(cfg.AlertWebhookURL))
	}

	accounts := repository.NewAccountRepository(db)
	entries := repository.NewLedgerRepository(db)
	withdrawals := repository.NewWithdrawalRepository(db)
	withdrawalConfig := repository.NewWithdrawalConfigRepository(db)
	idempotency := repository.NewIdempotencyRepository(db)

	manager := ledger.NewManager(db, accounts, entries, ledger.Config{
		LockTimeout: cfg.LockTimeout(),
		MaxRetries:  cfg.MaxTxRetries,
	}, notifier, logger)

	credits := credit.NewService(manager, accounts, entries, withdrawalConfig, credit.Options{
		SignupPromoCredits: cfg.SignupPromoCredits,
		Pricing:            pricing,
	})
	withdrawalSvc := withdrawal.NewService(manager, credits, withdrawals, withdrawalConfig, entries, accounts, db)
	ops := reconcile.NewService(manager, accounts, credits, entries, notifier, logger)

	if cfg.SchedulerEnabled {
		scheduler := reconcile.NewScheduler(
			ops,
			reconcile.NewPgLocker(db, logger),
			repository.NewJobRunRepository(db),
			idempotency,
			reconcile.SchedulerConfig{Tick: cfg.SchedulerTick, ReconcileInterval: cfg.ReconcileInterval},
			logger,
		)
		go scheduler.Start(ctx)
	}

	router := server.NewRouter(server.Handlers{
		Health:      handler.NewHealthHandler(db, version),
		Credits:     handler.NewCreditHandler(credits),
		Internal:    handler.NewInternalHandler(credits),
		Withdrawals: handler.NewWithdrawalHandler(withdrawalSvc),
		Admin:       handler.NewAdminHandler(manager, ops, credits),
	}, server.Options{
		JWTSecret:      cfg.JWTSecret,
		ServiceToken:   cfg.ServiceToken,
		Idempotency:    idempotency,
		IdempotencyTTL: cfg.IdempotencyTTL,
		Logger:         logger,
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("server started", "addr", addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// connectDB waits for Postgres to accept connections; in compose the API
// usually starts first.
func connectDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	var db *sql.DB
	attempt := 0
	op := func() error {
		attempt++
		var err error
		db, err = repository.Open(ctx, cfg.DatabaseURL, cfg.Pool())
		return err
	}
	notify := func(err error, wait time.Duration) {
		slog.Info("waiting for database", "attempt", attempt, "retry_in", wait, "error", err)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Second), 30), ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return nil, fmt.Errorf("connectDB: gave up after %d attempts: %w", attempt, err)
	}
	return db, nil
}
