package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound                = errors.New("not found")
	ErrAccountNotFound         = errors.New("account not found")
	ErrAccountExists           = errors.New("account already exists")
	ErrAccountDisabled         = errors.New("account disabled")
	ErrInvalidAmount           = errors.New("amount must be non-zero")
	ErrInvalidCategory         = errors.New("invalid category")
	ErrInvalidTransactionType  = errors.New("invalid transaction type")
	ErrInvalidRequest          = errors.New("invalid request")
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrIntegrityViolation      = errors.New("ledger integrity violation")
	ErrConcurrentModification  = errors.New("concurrent modification")
	ErrRefundExceedsOriginal   = errors.New("refund exceeds original debit")
	ErrAlreadyRefunded         = errors.New("original transaction already fully refunded")
	ErrNotRefundable           = errors.New("original transaction is not a refundable debit")
	ErrUnknownFeature          = errors.New("unknown feature code")
	ErrInvalidStateTransition  = errors.New("invalid withdrawal state transition")
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
)

// Withdrawal policy violations. Always recoverable and reported to the user.
var (
	ErrWithdrawalBelowMinimum  = errors.New("withdrawal below minimum")
	ErrWithdrawalAboveMaximum  = errors.New("withdrawal above per-request maximum")
	ErrWithdrawalMonthlyCap    = errors.New("withdrawal exceeds monthly cap")
	ErrWithdrawalCoolingPeriod = errors.New("bonus credits still in cooling period")
	ErrWithdrawalInsufficient  = errors.New("insufficient withdrawable bonus credits")
)

type PolicyReason string

const (
	ReasonBelowMinimum      PolicyReason = "below_minimum"
	ReasonAboveMaximum      PolicyReason = "above_maximum"
	ReasonMonthlyCap        PolicyReason = "above_monthly_cap"
	ReasonCoolingPeriod     PolicyReason = "cooling_period_active"
	ReasonInsufficientBonus PolicyReason = "insufficient_bonus"
)

// PolicyViolation carries a machine-readable reason alongside the sentinel
// so handlers can return a structured body.
type PolicyViolation struct {
	Reason    PolicyReason
	Limit     int64
	Requested int64
	Available int64
	err       error
}

func NewPolicyViolation(reason PolicyReason, requested, limit, available int64) *PolicyViolation {
	return &PolicyViolation{
		Reason:    reason,
		Requested: requested,
		Limit:     limit,
		Available: available,
		err:       reasonSentinel(reason),
	}
}

func (v *PolicyViolation) Error() string {
	return fmt.Sprintf("%s: requested %d, limit %d, available %d", v.err, v.Requested, v.Limit, v.Available)
}

func (v *PolicyViolation) Unwrap() error { return v.err }

func reasonSentinel(r PolicyReason) error {
	switch r {
	case ReasonBelowMinimum:
		return ErrWithdrawalBelowMinimum
	case ReasonAboveMaximum:
		return ErrWithdrawalAboveMaximum
	case ReasonMonthlyCap:
		return ErrWithdrawalMonthlyCap
	case ReasonCoolingPeriod:
		return ErrWithdrawalCoolingPeriod
	default:
		return ErrWithdrawalInsufficient
	}
}
