package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/credit-ledger/internal/domain"
)

const accountColumns = `user_id, total_balance, promo_balance, sub_balance, paid_balance,
	bonus_balance, status, created_at, updated_at`

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = $1`, userID,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByUserID: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("GetByUserID: %w", err)
	}
	return a, nil
}

func (r *AccountRepository) Create(ctx context.Context, tx *sql.Tx, account *domain.Account) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO accounts (
			user_id, total_balance, promo_balance, sub_balance, paid_balance,
			bonus_balance, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		account.UserID, account.TotalBalance, account.PromoBalance, account.SubBalance,
		account.PaidBalance, account.BonusBalance, account.Status,
		account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("Create: %w", domain.ErrAccountExists)
		}
		return fmt.Errorf("Create: %w", TranslateError(err))
	}
	return nil
}

func (r *AccountRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, userID uuid.UUID) (*domain.Account, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = $1 FOR UPDATE`, userID,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", TranslateError(err))
	}
	return a, nil
}

// UpdateBalances writes all four categories and the total, returning the row
// as stored so the caller can re-verify conservation after the write.
func (r *AccountRepository) UpdateBalances(ctx context.Context, tx *sql.Tx, account *domain.Account) (*domain.Account, error) {
	row := tx.QueryRowContext(ctx,
		`UPDATE accounts SET
			total_balance = $1, promo_balance = $2, sub_balance = $3,
			paid_balance = $4, bonus_balance = $5, updated_at = now()
		WHERE user_id = $6
		RETURNING `+accountColumns,
		account.TotalBalance, account.PromoBalance, account.SubBalance,
		account.PaidBalance, account.BonusBalance, account.UserID,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("UpdateBalances: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("UpdateBalances: %w", TranslateError(err))
	}
	return a, nil
}

// SetStatus changes only the status column; balances stay untouched.
func (r *AccountRepository) SetStatus(ctx context.Context, tx *sql.Tx, userID uuid.UUID, status domain.AccountStatus) (*domain.Account, error) {
	row := tx.QueryRowContext(ctx,
		`UPDATE accounts SET status = $1, updated_at = now() WHERE user_id = $2 RETURNING `+accountColumns,
		status, userID,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("SetStatus: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("SetStatus: %w", TranslateError(err))
	}
	return a, nil
}

// ListUserIDsWithEntries returns every user that has at least one ledger entry.
func (r *AccountRepository) ListUserIDsWithEntries(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT a.user_id FROM accounts a
		WHERE EXISTS (SELECT 1 FROM ledger_entries e WHERE e.user_id = a.user_id)
		ORDER BY a.user_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("ListUserIDsWithEntries: %w", err)
	}
	return collectUserIDs(rows, "ListUserIDsWithEntries")
}

func (r *AccountRepository) ListUserIDsWithBalance(ctx context.Context, category domain.Category) ([]uuid.UUID, error) {
	column, err := balanceColumn(category)
	if err != nil {
		return nil, fmt.Errorf("ListUserIDsWithBalance: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id FROM accounts WHERE `+column+` > 0 ORDER BY user_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("ListUserIDsWithBalance: %w", err)
	}
	return collectUserIDs(rows, "ListUserIDsWithBalance")
}

func collectUserIDs(rows *sql.Rows, op string) ([]uuid.UUID, error) {
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, err)
	}
	return ids, nil
}

func balanceColumn(c domain.Category) (string, error) {
	switch c {
	case domain.CategoryPromo:
		return "promo_balance", nil
	case domain.CategorySub:
		return "sub_balance", nil
	case domain.CategoryPaid:
		return "paid_balance", nil
	case domain.CategoryBonus:
		return "bonus_balance", nil
	default:
		return "", domain.ErrInvalidCategory
	}
}

func scanAccount(s scanner) (*domain.Account, error) {
	var a domain.Account
	err := s.Scan(
		&a.UserID, &a.TotalBalance, &a.PromoBalance, &a.SubBalance,
		&a.PaidBalance, &a.BonusBalance, &a.Status, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
