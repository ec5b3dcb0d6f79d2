// Package withdrawal gates cash-out of BONUS credits behind limits, a cooling
// period and manual review.
package withdrawal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/credit-ledger/internal/domain"
	"github.com/josh-kwaku/credit-ledger/internal/ledger"
	"github.com/josh-kwaku/credit-ledger/internal/logging"
	"github.com/josh-kwaku/credit-ledger/internal/metrics"
	"github.com/josh-kwaku/credit-ledger/internal/repository"
	"github.com/josh-kwaku/credit-ledger/internal/service/credit"
)

type txRunner interface {
	WithinTx(ctx context.Context, fn func(tx *ledger.Tx) error) error
}

type consumer interface {
	ConsumeTx(ctx context.Context, tx *ledger.Tx, req credit.ConsumeRequest) (*credit.ConsumeResult, error)
}

type withdrawalRepo interface {
	Create(ctx context.Context, tx *sql.Tx, w *domain.WithdrawalRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.WithdrawalRequest, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.WithdrawalRequest, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.WithdrawalRequest, int, error)
	Update(ctx context.Context, tx *sql.Tx, w *domain.WithdrawalRequest) error
	ApprovedCreditsSince(ctx context.Context, q repository.Querier, userID uuid.UUID, since time.Time) (int64, error)
	CountPrior(ctx context.Context, q repository.Querier, userID uuid.UUID) (int, error)
	PendingCredits(ctx context.Context, q repository.Querier, userID uuid.UUID) (int64, error)
}

type configRepo interface {
	Get(ctx context.Context, q repository.Querier) (domain.WithdrawalConfig, error)
	Update(ctx context.Context, c domain.WithdrawalConfig) (domain.WithdrawalConfig, error)
}

type bonusReader interface {
	MaturedBonus(ctx context.Context, q repository.Querier, userID uuid.UUID, now time.Time) (int64, error)
}

type accountReader interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Account, error)
}

type Service struct {
	ledger      txRunner
	credits     consumer
	withdrawals withdrawalRepo
	config      configRepo
	bonus       bonusReader
	accounts    accountReader
	db          *sql.DB
	now         func() time.Time
}

func NewService(
	ledger txRunner,
	credits consumer,
	withdrawals withdrawalRepo,
	config configRepo,
	bonus bonusReader,
	accounts accountReader,
	db *sql.DB,
) *Service {
	return &Service{
		ledger:      ledger,
		credits:     credits,
		withdrawals: withdrawals,
		config:      config,
		bonus:       bonus,
		accounts:    accounts,
		db:          db,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the service clock. Used by tests that cross a cooling
// period boundary.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

const autoReviewer = "system:auto"

// Request evaluates a cash-out under the account lock. Policy violations
// return a *domain.PolicyViolation and persist nothing. Requests without a
// review flag are approved and debited from BONUS in the same transaction.
func (s *Service) Request(ctx context.Context, userID uuid.UUID, credits int64) (*domain.WithdrawalRequest, error) {
	var req *domain.WithdrawalRequest
	err := s.ledger.WithinTx(ctx, func(tx *ledger.Tx) error {
		req = nil
		account, err := tx.Lock(ctx, userID)
		if err != nil {
			return err
		}

		now := s.now()
		in, err := s.policyInput(ctx, tx.SQL(), account, credits, now)
		if err != nil {
			return err
		}

		d, err := evaluate(in)
		if err != nil {
			return err
		}

		req = &domain.WithdrawalRequest{
			ID:                   uuid.New(),
			UserID:               userID,
			CreditsAmount:        credits,
			CashAmount:           cashAmount(credits, in.Config.ExchangeRate),
			ExchangeRate:         in.Config.ExchangeRate,
			Status:               d.Status,
			IsFirstWithdrawal:    d.FirstWithdrawal,
			RequiresManualReview: d.ManualReview,
			RiskLevel:            d.Risk,
			CreatedAt:            now,
			UpdatedAt:            now,
		}

		if d.Status == domain.WithdrawalStatusApproved {
			if err := s.debit(ctx, tx, req); err != nil {
				return err
			}
			reviewer := autoReviewer
			req.ReviewedBy = &reviewer
			req.ReviewedAt = &now
		}

		return s.withdrawals.Create(ctx, tx.SQL(), req)
	})
	if err != nil {
		recordRejection(err)
		return nil, fmt.Errorf("Request: %w", err)
	}

	metrics.WithdrawalDecisions.WithLabelValues(string(req.Status)).Inc()
	logging.FromContext(ctx).Info("withdrawal requested",
		"withdrawal_id", req.ID,
		"user_id", userID,
		"credits", credits,
		"status", req.Status,
		"risk_level", req.RiskLevel,
		"manual_review", req.RequiresManualReview,
	)
	return req, nil
}

// policyInput gathers what evaluate needs. Month-to-date counts credits
// approved this UTC month plus every pending request, so queued requests
// cannot add up past the monthly cap.
func (s *Service) policyInput(ctx context.Context, q repository.Querier, account *domain.Account, credits int64, now time.Time) (policyInput, error) {
	cfg, err := s.config.Get(ctx, q)
	if err != nil {
		return policyInput{}, err
	}
	approved, err := s.withdrawals.ApprovedCreditsSince(ctx, q, account.UserID, monthStart(now))
	if err != nil {
		return policyInput{}, err
	}
	prior, err := s.withdrawals.CountPrior(ctx, q, account.UserID)
	if err != nil {
		return policyInput{}, err
	}
	f, err := s.funds(ctx, q, account, now, 0)
	if err != nil {
		return policyInput{}, err
	}
	return policyInput{
		Config:           cfg,
		Requested:        credits,
		MonthToDate:      approved + f.Pending,
		Funds:            f,
		PriorWithdrawals: prior,
	}, nil
}

// funds reads the BONUS position. exclude removes a request's own credits from
// the pending reservation when that request is being approved.
func (s *Service) funds(ctx context.Context, q repository.Querier, account *domain.Account, now time.Time, exclude int64) (funds, error) {
	matured, err := s.bonus.MaturedBonus(ctx, q, account.UserID, now)
	if err != nil {
		return funds{}, err
	}
	pending, err := s.withdrawals.PendingCredits(ctx, q, account.UserID)
	if err != nil {
		return funds{}, err
	}
	return funds{
		Bonus:   account.BonusBalance,
		Matured: matured,
		Pending: max(pending-exclude, 0),
	}, nil
}

func (s *Service) debit(ctx context.Context, tx *ledger.Tx, req *domain.WithdrawalRequest) error {
	res, err := s.credits.ConsumeTx(ctx, tx, credit.ConsumeRequest{
		UserID:      req.UserID,
		Cost:        req.CreditsAmount,
		Type:        domain.TransactionWithdrawal,
		Description: "withdrawal " + req.ID.String(),
		Reference:   &domain.Reference{Type: domain.ReferenceWithdrawal, ID: req.ID.String()},
		Metadata: domain.Metadata{
			"cash_amount":   req.CashAmount.StringFixed(2),
			"exchange_rate": req.ExchangeRate.String(),
		},
		Order: []domain.Category{domain.CategoryBonus},
	})
	if err != nil {
		return err
	}
	entryID := res.Entries[0].ID
	req.LedgerEntryID = &entryID
	return nil
}

// Approve moves a pending request to approved. The monthly cap is checked
// against credits already approved in the current UTC month, and the cooling
// period again because pending time does not count toward it. Then BONUS is
// debited.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, reviewer, note string) (*domain.WithdrawalRequest, error) {
	var req *domain.WithdrawalRequest
	err := s.ledger.WithinTx(ctx, func(tx *ledger.Tx) error {
		var err error
		req, err = s.withdrawals.GetForUpdate(ctx, tx.SQL(), id)
		if err != nil {
			return err
		}
		if req.Status != domain.WithdrawalStatusPending {
			return fmt.Errorf("%s -> approved: %w", req.Status, domain.ErrInvalidStateTransition)
		}

		account, err := tx.Lock(ctx, req.UserID)
		if err != nil {
			return err
		}
		now := s.now()
		cfg, err := s.config.Get(ctx, tx.SQL())
		if err != nil {
			return err
		}
		approved, err := s.withdrawals.ApprovedCreditsSince(ctx, tx.SQL(), req.UserID, monthStart(now))
		if err != nil {
			return err
		}
		if err := checkMonthlyCap(req.CreditsAmount, approved, cfg); err != nil {
			return err
		}
		f, err := s.funds(ctx, tx.SQL(), account, now, req.CreditsAmount)
		if err != nil {
			return err
		}
		if err := checkFunds(req.CreditsAmount, f); err != nil {
			return err
		}

		if err := s.debit(ctx, tx, req); err != nil {
			return err
		}
		s.review(req, domain.WithdrawalStatusApproved, reviewer, note, now)
		return s.withdrawals.Update(ctx, tx.SQL(), req)
	})
	if err != nil {
		recordRejection(err)
		return nil, fmt.Errorf("Approve: %w", err)
	}

	metrics.WithdrawalDecisions.WithLabelValues("manual_approved").Inc()
	logging.FromContext(ctx).Info("withdrawal approved",
		"withdrawal_id", id,
		"user_id", req.UserID,
		"reviewer", reviewer,
		"ledger_entry_id", req.LedgerEntryID,
	)
	return req, nil
}

func (s *Service) Reject(ctx context.Context, id uuid.UUID, reviewer, reason string) (*domain.WithdrawalRequest, error) {
	req, err := s.transition(ctx, id, domain.WithdrawalStatusPending, func(r *domain.WithdrawalRequest, now time.Time) {
		s.review(r, domain.WithdrawalStatusRejected, reviewer, reason, now)
	})
	if err != nil {
		return nil, fmt.Errorf("Reject: %w", err)
	}

	metrics.WithdrawalDecisions.WithLabelValues("manual_rejected").Inc()
	logging.FromContext(ctx).Info("withdrawal rejected",
		"withdrawal_id", id,
		"user_id", req.UserID,
		"reviewer", reviewer,
	)
	return req, nil
}

// MarkTransferred records that the payout for an approved request was sent.
func (s *Service) MarkTransferred(ctx context.Context, id uuid.UUID, payoutRef string) (*domain.WithdrawalRequest, error) {
	req, err := s.transition(ctx, id, domain.WithdrawalStatusApproved, func(r *domain.WithdrawalRequest, now time.Time) {
		r.Status = domain.WithdrawalStatusTransferred
		if payoutRef != "" {
			r.PayoutRef = &payoutRef
		}
		r.TransferredAt = &now
		r.UpdatedAt = now
	})
	if err != nil {
		return nil, fmt.Errorf("MarkTransferred: %w", err)
	}

	metrics.WithdrawalDecisions.WithLabelValues(string(domain.WithdrawalStatusTransferred)).Inc()
	logging.FromContext(ctx).Info("withdrawal transferred",
		"withdrawal_id", id,
		"user_id", req.UserID,
		"payout_ref", payoutRef,
	)
	return req, nil
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, from domain.WithdrawalStatus, apply func(*domain.WithdrawalRequest, time.Time)) (*domain.WithdrawalRequest, error) {
	var req *domain.WithdrawalRequest
	err := s.ledger.WithinTx(ctx, func(tx *ledger.Tx) error {
		var err error
		req, err = s.withdrawals.GetForUpdate(ctx, tx.SQL(), id)
		if err != nil {
			return err
		}
		if req.Status != from {
			return fmt.Errorf("%s is not %s: %w", req.Status, from, domain.ErrInvalidStateTransition)
		}
		apply(req, s.now())
		return s.withdrawals.Update(ctx, tx.SQL(), req)
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (s *Service) review(r *domain.WithdrawalRequest, status domain.WithdrawalStatus, reviewer, note string, now time.Time) {
	r.Status = status
	r.ReviewedBy = &reviewer
	if note != "" {
		r.ReviewNote = &note
	}
	r.ReviewedAt = &now
	r.UpdatedAt = now
}

func recordRejection(err error) {
	var v *domain.PolicyViolation
	if errors.As(err, &v) {
		metrics.WithdrawalDecisions.WithLabelValues(string(v.Reason)).Inc()
	}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.WithdrawalRequest, error) {
	req, err := s.withdrawals.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return req, nil
}

func (s *Service) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.WithdrawalRequest, int, error) {
	if limit <= 0 {
		limit = 20
	}
	limit = min(limit, 100)
	reqs, total, err := s.withdrawals.ListByUser(ctx, userID, limit, max(offset, 0))
	if err != nil {
		return nil, 0, fmt.Errorf("List: %w", err)
	}
	return reqs, total, nil
}

type Eligibility struct {
	BonusBalance     int64 `json:"bonus_balance"`
	Withdrawable     int64 `json:"withdrawable"`
	Pending          int64 `json:"pending"`
	MonthToDate      int64 `json:"month_to_date"`
	MonthlyRemaining int64 `json:"monthly_remaining"`
	MinCredits       int64 `json:"min_credits"`
	MaxPerRequest    int64 `json:"max_per_request"`
}

// Eligibility reports what the user could withdraw right now without taking
// any lock.
func (s *Service) Eligibility(ctx context.Context, userID uuid.UUID) (*Eligibility, error) {
	account, err := s.accounts.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("Eligibility: %w", err)
	}
	in, err := s.policyInput(ctx, s.db, account, 0, s.now())
	if err != nil {
		return nil, fmt.Errorf("Eligibility: %w", err)
	}
	return &Eligibility{
		BonusBalance:     account.BonusBalance,
		Withdrawable:     in.Funds.Withdrawable(),
		Pending:          in.Funds.Pending,
		MonthToDate:      in.MonthToDate,
		MonthlyRemaining: max(in.Config.MaxCreditsPerMonth-in.MonthToDate, 0),
		MinCredits:       in.Config.MinCredits,
		MaxPerRequest:    in.Config.MaxCreditsPerRequest,
	}, nil
}

func (s *Service) Config(ctx context.Context) (domain.WithdrawalConfig, error) {
	cfg, err := s.config.Get(ctx, s.db)
	if err != nil {
		return domain.WithdrawalConfig{}, fmt.Errorf("Config: %w", err)
	}
	return cfg, nil
}

func (s *Service) UpdateConfig(ctx context.Context, cfg domain.WithdrawalConfig) (domain.WithdrawalConfig, error) {
	if err := validateConfig(cfg); err != nil {
		return domain.WithdrawalConfig{}, fmt.Errorf("UpdateConfig: %w", err)
	}
	updated, err := s.config.Update(ctx, cfg)
	if err != nil {
		return domain.WithdrawalConfig{}, fmt.Errorf("UpdateConfig: %w", err)
	}
	logging.FromContext(ctx).Info("withdrawal config updated",
		"exchange_rate", updated.ExchangeRate.String(),
		"min_credits", updated.MinCredits,
		"max_credits_per_request", updated.MaxCreditsPerRequest,
		"max_credits_per_month", updated.MaxCreditsPerMonth,
		"cooling_period_days", updated.CoolingPeriodDays,
		"first_withdrawal_review", updated.FirstWithdrawalReview,
		"high_amount_threshold", updated.HighAmountThreshold,
	)
	return updated, nil
}
