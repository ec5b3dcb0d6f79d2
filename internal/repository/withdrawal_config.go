package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/josh-kwaku/credit-ledger/internal/domain"
)

type WithdrawalConfigRepository struct {
	db *sql.DB
}

func NewWithdrawalConfigRepository(db *sql.DB) *WithdrawalConfigRepository {
	return &WithdrawalConfigRepository{db: db}
}

// Get reads the singleton policy row. A missing row falls back to defaults
// so a fresh database still enforces limits.
func (r *WithdrawalConfigRepository) Get(ctx context.Context, q Querier) (domain.WithdrawalConfig, error) {
	if q == nil {
		q = r.db
	}
	var c domain.WithdrawalConfig
	err := q.QueryRowContext(ctx,
		`SELECT exchange_rate, min_credits, max_credits_per_request, max_credits_per_month,
			cooling_period_days, first_withdrawal_review, high_amount_threshold, updated_at
		FROM withdrawal_config WHERE id = 1`,
	).Scan(&c.ExchangeRate, &c.MinCredits, &c.MaxCreditsPerRequest, &c.MaxCreditsPerMonth,
		&c.CoolingPeriodDays, &c.FirstWithdrawalReview, &c.HighAmountThreshold, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DefaultWithdrawalConfig(), nil
	}
	if err != nil {
		return domain.WithdrawalConfig{}, fmt.Errorf("Get: %w", err)
	}
	return c, nil
}

func (r *WithdrawalConfigRepository) Update(ctx context.Context, c domain.WithdrawalConfig) (domain.WithdrawalConfig, error) {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO withdrawal_config (id, exchange_rate, min_credits, max_credits_per_request,
			max_credits_per_month, cooling_period_days, first_withdrawal_review,
			high_amount_threshold, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (id) DO UPDATE SET
			exchange_rate = EXCLUDED.exchange_rate,
			min_credits = EXCLUDED.min_credits,
			max_credits_per_request = EXCLUDED.max_credits_per_request,
			max_credits_per_month = EXCLUDED.max_credits_per_month,
			cooling_period_days = EXCLUDED.cooling_period_days,
			first_withdrawal_review = EXCLUDED.first_withdrawal_review,
			high_amount_threshold = EXCLUDED.high_amount_threshold,
			updated_at = EXCLUDED.updated_at
		RETURNING updated_at`,
		c.ExchangeRate, c.MinCredits, c.MaxCreditsPerRequest, c.MaxCreditsPerMonth,
		c.CoolingPeriodDays, c.FirstWithdrawalReview, c.HighAmountThreshold,
	).Scan(&c.UpdatedAt)
	if err != nil {
		return domain.WithdrawalConfig{}, fmt.Errorf("Update: %w", TranslateError(err))
	}
	return c, nil
}
