package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/credit-ledger/internal/alert"
	"github.com/josh-kwaku/credit-ledger/internal/domain"
	"github.com/josh-kwaku/credit-ledger/internal/logging"
)

type ApplyRequest struct {
	UserID      uuid.UUID
	Category    domain.Category
	Amount      int64
	Type        domain.TransactionType
	Reference   *domain.Reference
	Description string
	Metadata    domain.Metadata
	AvailableAt *time.Time
}

func (r ApplyRequest) validate() error {
	if r.Amount == 0 {
		return domain.ErrInvalidAmount
	}
	if !r.Category.IsValid() {
		return domain.ErrInvalidCategory
	}
	if !r.Type.IsValid() {
		return domain.ErrInvalidTransactionType
	}
	if r.Reference != nil && r.Reference.Type == domain.ReferenceReconciliation {
		return fmt.Errorf("reference type %q is reserved: %w", r.Reference.Type, domain.ErrInvalidRequest)
	}
	if r.AvailableAt != nil && r.Category != domain.CategoryBonus {
		return fmt.Errorf("available_at is only valid for BONUS: %w", domain.ErrInvalidRequest)
	}
	return r.Metadata.Validate()
}

// Tx is one ledger transaction. Accounts locked through it stay locked until
// the surrounding WithinTx returns.
type Tx struct {
	sqlTx   *sql.Tx
	m       *Manager
	locked  map[uuid.UUID]*domain.Account
	written []domain.LedgerEntry
	alerts  []alert.Alert
}

// SQL exposes the underlying transaction so callers can write their own rows
// (withdrawal requests) atomically with ledger entries.
func (t *Tx) SQL() *sql.Tx {
	return t.sqlTx
}

// Lock takes the account row lock on first use and returns the current
// snapshot. The returned value must not be modified.
func (t *Tx) Lock(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	if a, ok := t.locked[userID]; ok {
		return a, nil
	}
	a, err := t.m.accounts.GetForUpdate(ctx, t.sqlTx, userID)
	if err != nil {
		return nil, fmt.Errorf("Lock: %w", err)
	}
	t.locked[userID] = a
	return a, nil
}

// Apply moves amount into (positive) or out of (negative) one category and
// appends the matching entry. balance_before and balance_after on the entry
// refer to the account total.
func (t *Tx) Apply(ctx context.Context, req ApplyRequest) (*domain.LedgerEntry, error) {
	if err := req.validate(); err != nil {
		return nil, fmt.Errorf("Apply: %w", err)
	}

	current, err := t.Lock(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("Apply: %w", err)
	}

	if current.Status != domain.AccountStatusActive && blockedWhenDisabled(req.Type) {
		return nil, fmt.Errorf("Apply: %w", domain.ErrAccountDisabled)
	}
	if !current.Conserved() {
		t.alerts = append(t.alerts, t.m.integrityAlert(current, "pre_write"))
		return nil, fmt.Errorf("Apply: stored balances disagree: %w", domain.ErrIntegrityViolation)
	}

	after := current.Balance(req.Category) + req.Amount
	if after < 0 {
		return nil, fmt.Errorf("Apply: %s has %d, need %d: %w",
			req.Category, current.Balance(req.Category), -req.Amount, domain.ErrInsufficientBalance)
	}

	next := *current
	next.SetBalance(req.Category, after)
	next.TotalBalance = next.CategorySum()

	stored, err := t.m.accounts.UpdateBalances(ctx, t.sqlTx, &next)
	if err != nil {
		return nil, fmt.Errorf("Apply: %w", err)
	}
	if !stored.Conserved() || stored.TotalBalance != current.TotalBalance+req.Amount {
		t.alerts = append(t.alerts, t.m.integrityAlert(stored, "post_write"))
		return nil, fmt.Errorf("Apply: post-write check failed: %w", domain.ErrIntegrityViolation)
	}

	entry := &domain.LedgerEntry{
		ID:              uuid.New(),
		UserID:          req.UserID,
		Category:        req.Category,
		TransactionType: req.Type,
		Amount:          req.Amount,
		BalanceBefore:   current.TotalBalance,
		BalanceAfter:    stored.TotalBalance,
		Description:     req.Description,
		Metadata:        req.Metadata,
		AvailableAt:     req.AvailableAt,
	}
	if req.Reference != nil {
		entry.ReferenceType = &req.Reference.Type
		entry.ReferenceID = &req.Reference.ID
	}
	if err := t.m.entries.Create(ctx, t.sqlTx, entry); err != nil {
		return nil, fmt.Errorf("Apply: create entry: %w", err)
	}

	t.locked[req.UserID] = stored
	t.written = append(t.written, *entry)

	logging.FromContext(ctx).Info("ledger entry applied",
		"user_id", req.UserID,
		"category", req.Category,
		"amount", req.Amount,
		"transaction_type", req.Type,
		"balance_after", entry.BalanceAfter,
	)
	return entry, nil
}

// blockedWhenDisabled lists spends a disabled account may not make. Credits,
// expiry and corrections still apply so balances stay accurate.
func blockedWhenDisabled(t domain.TransactionType) bool {
	return t == domain.TransactionConsume || t == domain.TransactionWithdrawal
}
