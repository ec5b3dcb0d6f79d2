package credit

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/credit-ledger/internal/domain"
	"github.com/josh-kwaku/credit-ledger/internal/ledger"
	"github.com/josh-kwaku/credit-ledger/internal/logging"
)

type RefundRequest struct {
	UserID          uuid.UUID
	OriginalEntryID uuid.UUID
	Amount          int64
	Description     string
}

// Refund credits back part or all of a consume entry to the category it was
// taken from. The total refunded against one entry never exceeds the
// original debit.
func (s *Service) Refund(ctx context.Context, req RefundRequest) (*domain.LedgerEntry, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("Refund: %w", domain.ErrInvalidAmount)
	}

	var entry *domain.LedgerEntry
	err := s.ledger.WithinTx(ctx, func(tx *ledger.Tx) error {
		var err error
		entry, err = s.refundTx(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("Refund: %w", err)
	}

	logging.FromContext(ctx).Info("credits refunded",
		"user_id", req.UserID,
		"original_entry_id", req.OriginalEntryID,
		"category", entry.Category,
		"amount", entry.Amount,
	)
	return entry, nil
}

// refundTx takes the account lock before reading prior refunds so two
// concurrent refunds of one entry cannot both pass the cap.
func (s *Service) refundTx(ctx context.Context, tx *ledger.Tx, req RefundRequest) (*domain.LedgerEntry, error) {
	if _, err := tx.Lock(ctx, req.UserID); err != nil {
		return nil, err
	}

	original, err := s.entries.GetByID(ctx, tx.SQL(), req.UserID, req.OriginalEntryID)
	if err != nil {
		return nil, err
	}
	if original.TransactionType != domain.TransactionConsume || !original.IsDebit() {
		return nil, fmt.Errorf("entry %s is %s: %w", original.ID, original.TransactionType, domain.ErrNotRefundable)
	}

	refunded, err := s.entries.RefundedAmount(ctx, tx.SQL(), original.ID)
	if err != nil {
		return nil, err
	}
	remaining := -original.Amount - refunded
	if remaining <= 0 {
		return nil, fmt.Errorf("entry %s: %w", original.ID, domain.ErrAlreadyRefunded)
	}

	amount := req.Amount
	if amount == 0 {
		amount = remaining
	}
	if amount > remaining {
		return nil, fmt.Errorf("refund %d, refundable %d: %w", amount, remaining, domain.ErrRefundExceedsOriginal)
	}

	desc := req.Description
	if desc == "" {
		desc = "refund of " + original.ID.String()
	}

	return tx.Apply(ctx, ledger.ApplyRequest{
		UserID:      req.UserID,
		Category:    original.Category,
		Amount:      amount,
		Type:        domain.TransactionRefund,
		Reference:   &domain.Reference{Type: domain.ReferenceLedgerEntry, ID: original.ID.String()},
		Description: desc,
		Metadata:    domain.Metadata{"refunded_transaction_type": string(original.TransactionType)},
	})
}

// RefundConsumption reverses every listed debit of an earlier Consume in one
// transaction, the compensation path for a generation that failed after
// credits were taken. Entries already fully refunded are skipped, so a
// retried compensation is harmless.
func (s *Service) RefundConsumption(ctx context.Context, userID uuid.UUID, entryIDs []uuid.UUID, reason string) ([]domain.LedgerEntry, error) {
	if len(entryIDs) == 0 {
		return nil, fmt.Errorf("RefundConsumption: no entries: %w", domain.ErrInvalidRequest)
	}

	var refunds []domain.LedgerEntry
	err := s.ledger.WithinTx(ctx, func(tx *ledger.Tx) error {
		refunds = refunds[:0]
		for _, id := range entryIDs {
			entry, err := s.refundTx(ctx, tx, RefundRequest{
				UserID:          userID,
				OriginalEntryID: id,
				Description:     reason,
			})
			if errors.Is(err, domain.ErrAlreadyRefunded) {
				continue
			}
			if err != nil {
				return err
			}
			refunds = append(refunds, *entry)
		}
		if len(refunds) == 0 {
			return domain.ErrAlreadyRefunded
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("RefundConsumption: %w", err)
	}

	logging.FromContext(ctx).Info("consumption refunded",
		"user_id", userID,
		"entries", len(refunds),
		"reason", reason,
	)
	return refunds, nil
}
