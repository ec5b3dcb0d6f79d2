package credit

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/credit-ledger/internal/domain"
	"github.com/josh-kwaku/credit-ledger/internal/ledger"
	"github.com/josh-kwaku/credit-ledger/internal/logging"
)

// ExpireCategory debits the whole balance of a category. A category that is
// already empty produces no entry and a nil result.
func (s *Service) ExpireCategory(ctx context.Context, userID uuid.UUID, category domain.Category) (*domain.LedgerEntry, error) {
	if !category.IsValid() {
		return nil, fmt.Errorf("ExpireCategory: %w", domain.ErrInvalidCategory)
	}

	var entry *domain.LedgerEntry
	err := s.ledger.WithinTx(ctx, func(tx *ledger.Tx) error {
		entry = nil
		account, err := tx.Lock(ctx, userID)
		if err != nil {
			return err
		}
		balance := account.Balance(category)
		if balance == 0 {
			return nil
		}
		entry, err = tx.Apply(ctx, ledger.ApplyRequest{
			UserID:      userID,
			Category:    category,
			Amount:      -balance,
			Type:        domain.TransactionExpiry,
			Description: fmt.Sprintf("%s credits expired", category),
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ExpireCategory: %w", err)
	}

	if entry != nil {
		logging.FromContext(ctx).Info("category expired",
			"user_id", userID,
			"category", category,
			"amount", -entry.Amount,
		)
	}
	return entry, nil
}
