package credit

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/credit-ledger/internal/domain"
	"github.com/josh-kwaku/credit-ledger/internal/ledger"
	"github.com/josh-kwaku/credit-ledger/internal/logging"
	"github.com/josh-kwaku/credit-ledger/internal/metrics"
)

type ConsumeRequest struct {
	UserID uuid.UUID
	Cost   int64
	// Type defaults to consume. Withdrawals pass TransactionWithdrawal.
	Type        domain.TransactionType
	Description string
	Reference   *domain.Reference
	Metadata    domain.Metadata
	// Order overrides the service's consumption order for this call.
	Order []domain.Category
}

type ConsumeResult struct {
	Entries []domain.LedgerEntry
	Balance int64
}

type debit struct {
	Category domain.Category
	Amount   int64
}

// planDebits splits cost across categories in order, taking as much as each
// category holds before moving on. Categories outside order are never
// touched. It fails without a plan when order cannot cover cost.
func planDebits(account *domain.Account, cost int64, order []domain.Category) ([]debit, error) {
	var available int64
	for _, c := range order {
		available += account.Balance(c)
	}
	if available < cost {
		return nil, fmt.Errorf("need %d, have %d: %w", cost, available, domain.ErrInsufficientBalance)
	}

	var plan []debit
	remaining := cost
	for _, c := range order {
		if remaining == 0 {
			break
		}
		take := min(remaining, account.Balance(c))
		if take == 0 {
			continue
		}
		plan = append(plan, debit{Category: c, Amount: take})
		remaining -= take
	}
	return plan, nil
}

func (r ConsumeRequest) validate() error {
	if r.Cost <= 0 {
		return fmt.Errorf("cost must be positive: %w", domain.ErrInvalidAmount)
	}
	switch r.Type {
	case domain.TransactionConsume, domain.TransactionWithdrawal:
	default:
		return fmt.Errorf("%q cannot debit: %w", r.Type, domain.ErrInvalidTransactionType)
	}
	for _, c := range r.Order {
		if !c.IsValid() {
			return domain.ErrInvalidCategory
		}
	}
	return r.Metadata.Validate()
}

// Consume debits cost across categories in one transaction, writing one entry
// per category touched. Nothing is debited unless the whole cost is covered.
func (s *Service) Consume(ctx context.Context, req ConsumeRequest) (*ConsumeResult, error) {
	var result *ConsumeResult
	err := s.ledger.WithinTx(ctx, func(tx *ledger.Tx) error {
		var err error
		result, err = s.ConsumeTx(ctx, tx, req)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientBalance) {
			metrics.InsufficientBalance.Inc()
		}
		return nil, fmt.Errorf("Consume: %w", err)
	}

	logging.FromContext(ctx).Info("credits consumed",
		"user_id", req.UserID,
		"cost", req.Cost,
		"entries", len(result.Entries),
		"balance", result.Balance,
	)
	return result, nil
}

// ConsumeTx is Consume inside a caller's ledger transaction.
func (s *Service) ConsumeTx(ctx context.Context, tx *ledger.Tx, req ConsumeRequest) (*ConsumeResult, error) {
	if req.Type == "" {
		req.Type = domain.TransactionConsume
	}
	if err := req.validate(); err != nil {
		return nil, fmt.Errorf("ConsumeTx: %w", err)
	}
	order := req.Order
	if len(order) == 0 {
		order = s.opts.ConsumptionOrder
	}

	account, err := tx.Lock(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("ConsumeTx: %w", err)
	}

	plan, err := planDebits(account, req.Cost, order)
	if err != nil {
		return nil, fmt.Errorf("ConsumeTx: %w", err)
	}

	result := &ConsumeResult{}
	for _, d := range plan {
		entry, err := tx.Apply(ctx, ledger.ApplyRequest{
			UserID:      req.UserID,
			Category:    d.Category,
			Amount:      -d.Amount,
			Type:        req.Type,
			Reference:   req.Reference,
			Description: req.Description,
			Metadata:    req.Metadata,
		})
		if err != nil {
			return nil, fmt.Errorf("ConsumeTx: %w", err)
		}
		result.Entries = append(result.Entries, *entry)
		result.Balance = entry.BalanceAfter
	}
	return result, nil
}

type FeatureConsumeRequest struct {
	UserID      uuid.UUID
	FeatureCode string
	Tier        string
	Description string
	Reference   *domain.Reference
	Metadata    domain.Metadata
}

// ConsumeFeature prices a feature from the pricing table and consumes it.
func (s *Service) ConsumeFeature(ctx context.Context, req FeatureConsumeRequest) (*ConsumeResult, error) {
	cost, err := s.opts.Pricing.Resolve(req.FeatureCode, req.Tier)
	if err != nil {
		return nil, fmt.Errorf("ConsumeFeature: %w", err)
	}

	meta := domain.Metadata{"feature_code": req.FeatureCode}
	for k, v := range req.Metadata {
		meta[k] = v
	}
	if req.Tier != "" {
		meta["tier"] = req.Tier
	}

	desc := req.Description
	if desc == "" {
		desc = req.FeatureCode
	}

	result, err := s.Consume(ctx, ConsumeRequest{
		UserID:      req.UserID,
		Cost:        cost,
		Type:        domain.TransactionConsume,
		Description: desc,
		Reference:   req.Reference,
		Metadata:    meta,
	})
	if err != nil {
		return nil, fmt.Errorf("ConsumeFeature: %w", err)
	}
	return result, nil
}

// Price exposes the pricing lookup to collaborators that quote before they
// consume.
func (s *Service) Price(feature, tier string) (int64, error) {
	return s.opts.Pricing.Resolve(feature, tier)
}
