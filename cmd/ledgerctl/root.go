package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/josh-kwaku/credit-ledger/internal/alert"
	"github.com/josh-kwaku/credit-ledger/internal/config"
	"github.com/josh-kwaku/credit-ledger/internal/ledger"
	"github.com/josh-kwaku/credit-ledger/internal/logging"
	"github.com/josh-kwaku/credit-ledger/internal/repository"
	"github.com/josh-kwaku/credit-ledger/internal/service/credit"
	"github.com/josh-kwaku/credit-ledger/internal/service/reconcile"
)

// app holds what the ops commands share. Commands that never touch the
// database leave db nil.
type app struct {
	cfg    *config.CLIConfig
	logger *slog.Logger
	db     *sql.DB
	out    io.Writer
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Operate the credit ledger",
		Long: `ledgerctl runs ledger maintenance against the database named by
DATABASE_URL: migrations, reconciliation, repairs, SUB expiry and reports.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadCLI()
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.out = cmd.OutOrStdout()
			a.logger = logging.New(os.Stderr, "ledgerctl", cfg.LogLevel, cfg.AppEnv)
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.db != nil {
				a.db.Close()
			}
		},
	}

	root.AddCommand(
		a.migrateCmd(),
		a.verifyCmd(),
		a.repairCmd(),
		a.reconcileCmd(),
		a.expireSubCmd(),
		a.reportCmd(),
		a.tokenCmd(),
	)
	return root
}

func (a *app) open(ctx context.Context) (*sql.DB, error) {
	if a.db != nil {
		return a.db, nil
	}
	db, err := repository.Open(ctx, a.cfg.DatabaseURL, repository.PoolConfig{
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.db = db
	return db, nil
}

// services builds the ledger manager and the ops service the same way the
// API does, minus HTTP.
func (a *app) services(ctx context.Context) (*ledger.Manager, *reconcile.Service, error) {
	db, err := a.open(ctx)
	if err != nil {
		return nil, nil, err
	}

	notifier := alert.Multi{alert.NewLogNotifier(a.logger)}
	if a.cfg.AlertWebhookURL != "" {
		notifier = append(notifier, alert.NewWebhookNotifier(a.cfg.AlertWebhookURL))
	}

	accounts := repository.NewAccountRepository(db)
	entries := repository.NewLedgerRepository(db)
	manager := ledger.NewManager(db, accounts, entries, ledger.Config{
		LockTimeout: a.cfg.LockTimeout(),
		MaxRetries:  a.cfg.MaxTxRetries,
	}, notifier, a.logger)
	credits := credit.NewService(manager, accounts, entries, repository.NewWithdrawalConfigRepository(db), credit.Options{})

	return manager, reconcile.NewService(manager, accounts, credits, entries, notifier, a.logger), nil
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
