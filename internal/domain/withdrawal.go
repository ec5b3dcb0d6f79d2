package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type WithdrawalStatus string

const (
	WithdrawalStatusPending     WithdrawalStatus = "pending"
	WithdrawalStatusApproved    WithdrawalStatus = "approved"
	WithdrawalStatusRejected    WithdrawalStatus = "rejected"
	WithdrawalStatusTransferred WithdrawalStatus = "transferred"
)

func (s WithdrawalStatus) IsTerminal() bool {
	return s == WithdrawalStatusRejected || s == WithdrawalStatusTransferred
}

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

type WithdrawalRequest struct {
	ID                   uuid.UUID
	UserID               uuid.UUID
	CreditsAmount        int64
	CashAmount           decimal.Decimal
	ExchangeRate         decimal.Decimal
	Status               WithdrawalStatus
	IsFirstWithdrawal    bool
	RequiresManualReview bool
	RiskLevel            RiskLevel
	LedgerEntryID        *uuid.UUID
	ReviewedBy           *string
	ReviewNote           *string
	PayoutRef            *string
	CreatedAt            time.Time
	UpdatedAt            time.Time
	ReviewedAt           *time.Time
	TransferredAt        *time.Time
}

// WithdrawalConfig is the admin-editable policy singleton.
type WithdrawalConfig struct {
	ExchangeRate          decimal.Decimal
	MinCredits            int64
	MaxCreditsPerRequest  int64
	MaxCreditsPerMonth    int64
	CoolingPeriodDays     int
	FirstWithdrawalReview bool
	HighAmountThreshold   int64
	UpdatedAt             time.Time
}

func DefaultWithdrawalConfig() WithdrawalConfig {
	return WithdrawalConfig{
		ExchangeRate:          decimal.NewFromFloat(0.01),
		MinCredits:            1000,
		MaxCreditsPerRequest:  100000,
		MaxCreditsPerMonth:    300000,
		CoolingPeriodDays:     14,
		FirstWithdrawalReview: true,
		HighAmountThreshold:   50000,
	}
}

func (c WithdrawalConfig) CoolingPeriod() time.Duration {
	return time.Duration(c.CoolingPeriodDays) * 24 * time.Hour
}
