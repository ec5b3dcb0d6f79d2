// Package credit implements the feature-facing credit operations on top of
// the ledger: consumption in category order, grants, refunds and expiry.
package credit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/credit-ledger/internal/domain"
	"github.com/josh-kwaku/credit-ledger/internal/ledger"
	"github.com/josh-kwaku/credit-ledger/internal/logging"
	"github.com/josh-kwaku/credit-ledger/internal/repository"
)

type txRunner interface {
	WithinTx(ctx context.Context, fn func(tx *ledger.Tx) error) error
}

type accountRepo interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Account, error)
	Create(ctx context.Context, tx *sql.Tx, account *domain.Account) error
	SetStatus(ctx context.Context, tx *sql.Tx, userID uuid.UUID, status domain.AccountStatus) (*domain.Account, error)
}

type entryRepo interface {
	GetByID(ctx context.Context, q repository.Querier, userID, id uuid.UUID) (*domain.LedgerEntry, error)
	RefundedAmount(ctx context.Context, q repository.Querier, originalID uuid.UUID) (int64, error)
	List(ctx context.Context, f repository.LedgerFilter) ([]domain.LedgerEntry, int, error)
}

type withdrawalConfigRepo interface {
	Get(ctx context.Context, q repository.Querier) (domain.WithdrawalConfig, error)
}

type Options struct {
	SignupPromoCredits int64
	// ConsumptionOrder defaults to domain.DefaultConsumptionOrder.
	ConsumptionOrder []domain.Category
	Pricing          *PricingTable
	Now              func() time.Time
}

type Service struct {
	ledger   txRunner
	accounts accountRepo
	entries  entryRepo
	config   withdrawalConfigRepo
	opts     Options
}

func NewService(
	ledger txRunner,
	accounts accountRepo,
	entries entryRepo,
	config withdrawalConfigRepo,
	opts Options,
) *Service {
	if len(opts.ConsumptionOrder) == 0 {
		opts.ConsumptionOrder = domain.DefaultConsumptionOrder
	}
	if opts.Pricing == nil {
		opts.Pricing = DefaultPricing()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		ledger:   ledger,
		accounts: accounts,
		entries:  entries,
		config:   config,
		opts:     opts,
	}
}

// CreateAccount opens an account and grants the signup PROMO credits in the
// same transaction.
func (s *Service) CreateAccount(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	var account *domain.Account
	err := s.ledger.WithinTx(ctx, func(tx *ledger.Tx) error {
		now := s.opts.Now()
		if err := s.accounts.Create(ctx, tx.SQL(), &domain.Account{
			UserID:    userID,
			Status:    domain.AccountStatusActive,
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			return err
		}

		if s.opts.SignupPromoCredits > 0 {
			if _, err := tx.Apply(ctx, ledger.ApplyRequest{
				UserID:      userID,
				Category:    domain.CategoryPromo,
				Amount:      s.opts.SignupPromoCredits,
				Type:        domain.TransactionPromoGrant,
				Description: "signup bonus",
			}); err != nil {
				return err
			}
		}

		locked, err := tx.Lock(ctx, userID)
		if err != nil {
			return err
		}
		snapshot := *locked
		account = &snapshot
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("CreateAccount: %w", err)
	}

	logging.FromContext(ctx).Info("credit account created",
		"user_id", userID,
		"signup_credits", s.opts.SignupPromoCredits,
	)
	return account, nil
}

func (s *Service) GetAccount(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	account, err := s.accounts.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("GetAccount: %w", err)
	}
	return account, nil
}

// SetAccountStatus enables or disables an account. A disabled account still
// receives grants and refunds but cannot consume or withdraw.
func (s *Service) SetAccountStatus(ctx context.Context, userID uuid.UUID, status domain.AccountStatus) (*domain.Account, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("SetAccountStatus: unknown status %q: %w", status, domain.ErrInvalidRequest)
	}

	var account *domain.Account
	err := s.ledger.WithinTx(ctx, func(tx *ledger.Tx) error {
		if _, err := tx.Lock(ctx, userID); err != nil {
			return err
		}
		var err error
		account, err = s.accounts.SetStatus(ctx, tx.SQL(), userID, status)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("SetAccountStatus: %w", err)
	}

	logging.FromContext(ctx).Warn("account status changed", "user_id", userID, "status", status)
	return account, nil
}

func (s *Service) GetBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	account, err := s.accounts.GetByUserID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("GetBalance: %w", err)
	}
	return account.TotalBalance, nil
}

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

type HistoryFilter struct {
	Category *domain.Category
	Type     *domain.TransactionType
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}

// History pages through a user's entries, newest first, filtered by
// category, type and the half-open window [From, To).
func (s *Service) History(ctx context.Context, userID uuid.UUID, f HistoryFilter) ([]domain.LedgerEntry, int, error) {
	if f.Category != nil && !f.Category.IsValid() {
		return nil, 0, fmt.Errorf("History: %w", domain.ErrInvalidCategory)
	}
	if f.Type != nil && !f.Type.IsValid() {
		return nil, 0, fmt.Errorf("History: %w", domain.ErrInvalidTransactionType)
	}
	if f.From != nil && f.To != nil && !f.From.Before(*f.To) {
		return nil, 0, fmt.Errorf("History: from must be before to: %w", domain.ErrInvalidRequest)
	}
	if f.Limit <= 0 {
		f.Limit = defaultHistoryLimit
	}
	f.Limit = min(f.Limit, maxHistoryLimit)
	f.Offset = max(f.Offset, 0)

	if _, err := s.accounts.GetByUserID(ctx, userID); err != nil {
		return nil, 0, fmt.Errorf("History: %w", err)
	}

	entries, total, err := s.entries.List(ctx, repository.LedgerFilter{
		UserID:   userID,
		Category: f.Category,
		Type:     f.Type,
		From:     f.From,
		To:       f.To,
		Limit:    f.Limit,
		Offset:   f.Offset,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("History: %w", err)
	}
	return entries, total, nil
}
