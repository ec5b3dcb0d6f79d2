// Package ledger is the only writer of account balances and ledger entries.
// Every mutation runs under a row lock on the account and commits the balance
// update and its entry together.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/josh-kwaku/credit-ledger/internal/alert"
	"github.com/josh-kwaku/credit-ledger/internal/domain"
	"github.com/josh-kwaku/credit-ledger/internal/metrics"
	"github.com/josh-kwaku/credit-ledger/internal/repository"
)

type accountStore interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Account, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, userID uuid.UUID) (*domain.Account, error)
	UpdateBalances(ctx context.Context, tx *sql.Tx, account *domain.Account) (*domain.Account, error)
}

type entryStore interface {
	Create(ctx context.Context, tx *sql.Tx, entry *domain.LedgerEntry) error
	CategoryTotals(ctx context.Context, q repository.Querier, userID uuid.UUID) (domain.Balances, error)
	ChainBreaks(ctx context.Context, userID uuid.UUID) (int, error)
}

type Config struct {
	LockTimeout time.Duration
	MaxRetries  int
}

type Manager struct {
	db       *sql.DB
	accounts accountStore
	entries  entryStore
	cfg      Config
	notifier alert.Notifier
	logger   *slog.Logger
}

func NewManager(
	db *sql.DB,
	accounts accountStore,
	entries entryStore,
	cfg Config,
	notifier alert.Notifier,
	logger *slog.Logger,
) *Manager {
	return &Manager{
		db:       db,
		accounts: accounts,
		entries:  entries,
		cfg:      cfg,
		notifier: notifier,
		logger:   logger,
	}
}

// WithinTx runs fn in one database transaction and commits it. The whole unit
// is retried with exponential backoff when it fails with
// domain.ErrConcurrentModification; any other error rolls back and is returned.
// fn must not call external services: account locks are held until it returns.
func (m *Manager) WithinTx(ctx context.Context, fn func(tx *Tx) error) error {
	return m.retry(ctx, func() error { return m.run(ctx, fn, true) })
}

func (m *Manager) retry(ctx context.Context, op func() error) error {
	attempt := func() error {
		err := op()
		if err == nil || errors.Is(err, domain.ErrConcurrentModification) {
			return err
		}
		return backoff.Permanent(err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 25 * time.Millisecond
	b.MaxInterval = time.Second

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(m.cfg.MaxRetries, 0))), ctx)

	return backoff.RetryNotify(attempt, policy, func(err error, wait time.Duration) {
		metrics.TxRetries.Inc()
		m.logger.Warn("retrying ledger transaction", "error", err, "wait", wait)
	})
}

func (m *Manager) run(ctx context.Context, fn func(tx *Tx) error, commit bool) error {
	tx := &Tx{
		m:      m,
		locked: make(map[uuid.UUID]*domain.Account),
	}
	// Alerts go out after rollback so no account lock is held during delivery.
	defer func() {
		for _, a := range tx.alerts {
			alert.Send(ctx, m.logger, m.notifier, a)
		}
	}()

	sqlTx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("WithinTx: begin tx: %w", err)
	}
	defer sqlTx.Rollback()
	tx.sqlTx = sqlTx

	timeout := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", m.cfg.LockTimeout.Milliseconds())
	if _, err := sqlTx.ExecContext(ctx, timeout); err != nil {
		return fmt.Errorf("WithinTx: set lock timeout: %w", repository.TranslateError(err))
	}

	if err := fn(tx); err != nil {
		return err
	}
	if !commit {
		return nil
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("WithinTx: commit: %w", repository.TranslateError(err))
	}
	for _, e := range tx.written {
		if e.IsReconciliation() {
			continue
		}
		metrics.RecordMovement(string(e.Category), string(e.TransactionType), e.Amount)
	}
	return nil
}

// Apply writes a single entry in its own transaction.
func (m *Manager) Apply(ctx context.Context, req ApplyRequest) (*domain.LedgerEntry, error) {
	var entry *domain.LedgerEntry
	err := m.WithinTx(ctx, func(tx *Tx) error {
		var err error
		entry, err = tx.Apply(ctx, req)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("Apply: %w", err)
	}
	return entry, nil
}

func (m *Manager) integrityAlert(account *domain.Account, stage string) alert.Alert {
	metrics.IntegrityViolations.Inc()
	m.logger.Error("ledger integrity violation",
		"user_id", account.UserID,
		"stage", stage,
		"total_balance", account.TotalBalance,
		"category_sum", account.CategorySum(),
	)
	return alert.Alert{
		Level:   alert.LevelCritical,
		Title:   "Ledger integrity violation",
		Message: fmt.Sprintf("mutation aborted for user %s (%s)", account.UserID, stage),
		Fields: map[string]any{
			"user_id":       account.UserID.String(),
			"stage":         stage,
			"total_balance": account.TotalBalance,
			"category_sum":  account.CategorySum(),
			"promo_balance": account.PromoBalance,
			"sub_balance":   account.SubBalance,
			"paid_balance":  account.PaidBalance,
			"bonus_balance": account.BonusBalance,
		},
	}
}
