package domain

import (
	"time"

	"github.com/google/uuid"
)

type Category string

const (
	CategoryPromo Category = "PROMO"
	CategorySub   Category = "SUB"
	CategoryPaid  Category = "PAID"
	CategoryBonus Category = "BONUS"
)

// Categories lists every category in canonical order.
var Categories = []Category{CategoryPromo, CategorySub, CategoryPaid, CategoryBonus}

// DefaultConsumptionOrder burns time-limited and non-withdrawable credits
// first so that BONUS credits are kept for as long as possible.
var DefaultConsumptionOrder = []Category{CategoryPromo, CategorySub, CategoryPaid, CategoryBonus}

func (c Category) IsValid() bool {
	switch c {
	case CategoryPromo, CategorySub, CategoryPaid, CategoryBonus:
		return true
	default:
		return false
	}
}

type AccountStatus string

const (
	AccountStatusActive   AccountStatus = "active"
	AccountStatusDisabled AccountStatus = "disabled"
)

func (s AccountStatus) IsValid() bool {
	return s == AccountStatusActive || s == AccountStatusDisabled
}

type Account struct {
	UserID       uuid.UUID
	TotalBalance int64
	PromoBalance int64
	SubBalance   int64
	PaidBalance  int64
	BonusBalance int64
	Status       AccountStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (a *Account) Balance(c Category) int64 {
	switch c {
	case CategoryPromo:
		return a.PromoBalance
	case CategorySub:
		return a.SubBalance
	case CategoryPaid:
		return a.PaidBalance
	case CategoryBonus:
		return a.BonusBalance
	default:
		return 0
	}
}

func (a *Account) SetBalance(c Category, v int64) {
	switch c {
	case CategoryPromo:
		a.PromoBalance = v
	case CategorySub:
		a.SubBalance = v
	case CategoryPaid:
		a.PaidBalance = v
	case CategoryBonus:
		a.BonusBalance = v
	}
}

func (a *Account) CategorySum() int64 {
	return a.PromoBalance + a.SubBalance + a.PaidBalance + a.BonusBalance
}

// Conserved reports whether the stored total matches the category balances
// and no category is negative.
func (a *Account) Conserved() bool {
	if a.PromoBalance < 0 || a.SubBalance < 0 || a.PaidBalance < 0 || a.BonusBalance < 0 {
		return false
	}
	return a.TotalBalance == a.CategorySum()
}

// Balances is a per-category snapshot.
type Balances map[Category]int64

func (a *Account) Snapshot() Balances {
	b := make(Balances, len(Categories))
	for _, c := range Categories {
		b[c] = a.Balance(c)
	}
	return b
}
