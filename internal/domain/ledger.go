package domain

import (
	"time"

	"github.com/google/uuid"
)

type TransactionType string

const (
	TransactionConsume           TransactionType = "consume"
	TransactionPurchase          TransactionType = "purchase"
	TransactionRefund            TransactionType = "refund"
	TransactionReferralBonus     TransactionType = "referral_bonus"
	TransactionSubscriptionGrant TransactionType = "subscription_grant"
	TransactionPromoGrant        TransactionType = "promo_grant"
	TransactionAdminAdjustment   TransactionType = "admin_adjustment"
	TransactionExpiry            TransactionType = "expiry"
	TransactionWithdrawal        TransactionType = "withdrawal"
)

func (t TransactionType) IsValid() bool {
	switch t {
	case TransactionConsume, TransactionPurchase, TransactionRefund, TransactionReferralBonus,
		TransactionSubscriptionGrant, TransactionPromoGrant, TransactionAdminAdjustment,
		TransactionExpiry, TransactionWithdrawal:
		return true
	default:
		return false
	}
}

// IsCredit reports whether the type may only carry positive amounts when
// created through the grant path.
func (t TransactionType) IsCredit() bool {
	switch t {
	case TransactionPurchase, TransactionReferralBonus, TransactionSubscriptionGrant,
		TransactionPromoGrant, TransactionAdminAdjustment:
		return true
	default:
		return false
	}
}

const (
	ReferenceLedgerEntry    = "ledger_entry"
	ReferenceReconciliation = "reconciliation"
	ReferenceWithdrawal     = "withdrawal"
)

type Reference struct {
	Type string
	ID   string
}

type LedgerEntry struct {
	ID              uuid.UUID
	Seq             int64
	UserID          uuid.UUID
	Category        Category
	TransactionType TransactionType
	Amount          int64
	BalanceBefore   int64
	BalanceAfter    int64
	ReferenceType   *string
	ReferenceID     *string
	Description     string
	Metadata        Metadata
	AvailableAt     *time.Time
	Reconciliation  bool
	CreatedAt       time.Time
}

func (e *LedgerEntry) IsDebit() bool { return e.Amount < 0 }

// IsReconciliation reports whether the entry records a repair snapshot. Only
// ledger repair sets the flag. Such entries document drift and are excluded
// from balance recomputation.
func (e *LedgerEntry) IsReconciliation() bool {
	return e.Reconciliation
}

// AvailableBy reports whether a BONUS entry is past its cooling period at t.
func (e *LedgerEntry) AvailableBy(t time.Time) bool {
	return e.AvailableAt == nil || !e.AvailableAt.After(t)
}
