package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/credit-ledger/internal/domain"
)

const withdrawalColumns = `id, user_id, credits_amount, cash_amount, exchange_rate, status,
	is_first_withdrawal, requires_manual_review, risk_level, ledger_entry_id,
	reviewed_by, review_note, payout_ref, created_at, updated_at, reviewed_at, transferred_at`

type WithdrawalRepository struct {
	db *sql.DB
}

func NewWithdrawalRepository(db *sql.DB) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

func (r *WithdrawalRepository) Create(ctx context.Context, tx *sql.Tx, w *domain.WithdrawalRequest) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO withdrawal_requests (
			id, user_id, credits_amount, cash_amount, exchange_rate, status,
			is_first_withdrawal, requires_manual_review, risk_level, ledger_entry_id,
			reviewed_by, review_note, payout_ref, created_at, updated_at, reviewed_at, transferred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		w.ID, w.UserID, w.CreditsAmount, w.CashAmount, w.ExchangeRate, w.Status,
		w.IsFirstWithdrawal, w.RequiresManualReview, w.RiskLevel, w.LedgerEntryID,
		w.ReviewedBy, w.ReviewNote, w.PayoutRef, w.CreatedAt, w.UpdatedAt, w.ReviewedAt, w.TransferredAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", TranslateError(err))
	}
	return nil
}

func (r *WithdrawalRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.WithdrawalRequest, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE id = $1`, id,
	)
	w, err := scanWithdrawal(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return w, nil
}

func (r *WithdrawalRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.WithdrawalRequest, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE id = $1 FOR UPDATE`, id,
	)
	w, err := scanWithdrawal(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", TranslateError(err))
	}
	return w, nil
}

func (r *WithdrawalRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.WithdrawalRequest, int, error) {
	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM withdrawal_requests WHERE user_id = $1`, userID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("ListByUser: count: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawal_requests
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("ListByUser: %w", err)
	}
	defer rows.Close()

	var out []domain.WithdrawalRequest
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("ListByUser: scan: %w", err)
		}
		out = append(out, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("ListByUser: rows: %w", err)
	}
	return out, total, nil
}

// Update persists the mutable review and settlement fields of a request.
func (r *WithdrawalRepository) Update(ctx context.Context, tx *sql.Tx, w *domain.WithdrawalRequest) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE withdrawal_requests SET
			status = $1, ledger_entry_id = $2, reviewed_by = $3, review_note = $4,
			payout_ref = $5, reviewed_at = $6, transferred_at = $7, updated_at = $8
		WHERE id = $9`,
		w.Status, w.LedgerEntryID, w.ReviewedBy, w.ReviewNote,
		w.PayoutRef, w.ReviewedAt, w.TransferredAt, w.UpdatedAt, w.ID,
	)
	if err != nil {
		return fmt.Errorf("Update: %w", TranslateError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Update: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("Update: %w", domain.ErrNotFound)
	}
	return nil
}

// ApprovedCreditsSince sums approved and transferred requests reviewed at or
// after since. A request counts toward the month it was approved in.
func (r *WithdrawalRepository) ApprovedCreditsSince(ctx context.Context, q Querier, userID uuid.UUID, since time.Time) (int64, error) {
	var sum int64
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(credits_amount), 0) FROM withdrawal_requests
		WHERE user_id = $1 AND status IN ('approved', 'transferred') AND reviewed_at >= $2`,
		userID, since,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("ApprovedCreditsSince: %w", err)
	}
	return sum, nil
}

// CountPrior counts requests that did not end in rejection.
func (r *WithdrawalRepository) CountPrior(ctx context.Context, q Querier, userID uuid.UUID) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM withdrawal_requests WHERE user_id = $1 AND status <> 'rejected'`,
		userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("CountPrior: %w", err)
	}
	return n, nil
}

// PendingCredits sums credits reserved by requests awaiting review.
func (r *WithdrawalRepository) PendingCredits(ctx context.Context, q Querier, userID uuid.UUID) (int64, error) {
	var sum int64
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(credits_amount), 0) FROM withdrawal_requests
		WHERE user_id = $1 AND status = 'pending'`, userID,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("PendingCredits: %w", err)
	}
	return sum, nil
}

func scanWithdrawal(s scanner) (*domain.WithdrawalRequest, error) {
	var w domain.WithdrawalRequest
	err := s.Scan(
		&w.ID, &w.UserID, &w.CreditsAmount, &w.CashAmount, &w.ExchangeRate, &w.Status,
		&w.IsFirstWithdrawal, &w.RequiresManualReview, &w.RiskLevel, &w.LedgerEntryID,
		&w.ReviewedBy, &w.ReviewNote, &w.PayoutRef, &w.CreatedAt, &w.UpdatedAt,
		&w.ReviewedAt, &w.TransferredAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}
