package credit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/credit-ledger/internal/domain"
	"github.com/josh-kwaku/credit-ledger/internal/ledger"
	"github.com/josh-kwaku/credit-ledger/internal/logging"
)

type GrantRequest struct {
	UserID      uuid.UUID
	Category    domain.Category
	Amount      int64
	Type        domain.TransactionType
	Reference   *domain.Reference
	Description string
	Metadata    domain.Metadata
	// AvailableAt overrides the cooling period of a BONUS grant.
	AvailableAt *time.Time
}

func (r GrantRequest) validate() error {
	if r.Amount <= 0 {
		return fmt.Errorf("grant amount must be positive: %w", domain.ErrInvalidAmount)
	}
	if !r.Category.IsValid() {
		return domain.ErrInvalidCategory
	}
	if !r.Type.IsCredit() {
		return fmt.Errorf("%q is not a grant type: %w", r.Type, domain.ErrInvalidTransactionType)
	}
	if r.Type == domain.TransactionReferralBonus && r.Category != domain.CategoryBonus {
		return fmt.Errorf("referral bonuses are BONUS credits: %w", domain.ErrInvalidCategory)
	}
	return nil
}

// Grant credits a single category. Referral BONUS grants without an explicit
// AvailableAt become withdrawable after the configured cooling period; they
// count toward the balance immediately.
func (s *Service) Grant(ctx context.Context, req GrantRequest) (*domain.LedgerEntry, error) {
	if err := req.validate(); err != nil {
		return nil, fmt.Errorf("Grant: %w", err)
	}

	if req.Category == domain.CategoryBonus && req.Type == domain.TransactionReferralBonus && req.AvailableAt == nil {
		cfg, err := s.config.Get(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("Grant: %w", err)
		}
		at := s.opts.Now().Add(cfg.CoolingPeriod())
		req.AvailableAt = &at
	}

	var entry *domain.LedgerEntry
	err := s.ledger.WithinTx(ctx, func(tx *ledger.Tx) error {
		var err error
		entry, err = tx.Apply(ctx, ledger.ApplyRequest{
			UserID:      req.UserID,
			Category:    req.Category,
			Amount:      req.Amount,
			Type:        req.Type,
			Reference:   req.Reference,
			Description: req.Description,
			Metadata:    req.Metadata,
			AvailableAt: req.AvailableAt,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("Grant: %w", err)
	}

	logging.FromContext(ctx).Info("credits granted",
		"user_id", req.UserID,
		"category", req.Category,
		"amount", req.Amount,
		"transaction_type", req.Type,
		"available_at", req.AvailableAt,
	)
	return entry, nil
}
