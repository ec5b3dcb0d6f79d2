package withdrawal

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/credit-ledger/internal/domain"
)

// funds is the BONUS position of a user at evaluation time.
type funds struct {
	Bonus   int64
	Matured int64
	// Pending is reserved by other requests awaiting review.
	Pending int64
}

// Available is the BONUS balance not reserved by pending requests.
func (f funds) Available() int64 {
	return max(f.Bonus-f.Pending, 0)
}

// Withdrawable is the part of Available whose cooling period has elapsed.
func (f funds) Withdrawable() int64 {
	return min(max(f.Matured-f.Pending, 0), f.Available())
}

type policyInput struct {
	Config           domain.WithdrawalConfig
	Requested        int64
	MonthToDate      int64
	Funds            funds
	PriorWithdrawals int
}

type decision struct {
	Status          domain.WithdrawalStatus
	FirstWithdrawal bool
	ManualReview    bool
	Risk            domain.RiskLevel
}

// evaluate applies the withdrawal rules in order: per-request bounds, monthly
// cap, cooling period, then the review flags. A request with no review flag
// is approved immediately.
func evaluate(in policyInput) (decision, error) {
	cfg := in.Config

	if in.Requested < cfg.MinCredits {
		return decision{}, domain.NewPolicyViolation(domain.ReasonBelowMinimum, in.Requested, cfg.MinCredits, in.Funds.Withdrawable())
	}
	if in.Requested > cfg.MaxCreditsPerRequest {
		return decision{}, domain.NewPolicyViolation(domain.ReasonAboveMaximum, in.Requested, cfg.MaxCreditsPerRequest, in.Funds.Withdrawable())
	}
	if err := checkMonthlyCap(in.Requested, in.MonthToDate, cfg); err != nil {
		return decision{}, err
	}
	if err := checkFunds(in.Requested, in.Funds); err != nil {
		return decision{}, err
	}

	d := decision{FirstWithdrawal: in.PriorWithdrawals == 0}
	highAmount := in.Requested >= cfg.HighAmountThreshold
	d.ManualReview = highAmount || (d.FirstWithdrawal && cfg.FirstWithdrawalReview)

	switch {
	case highAmount:
		d.Risk = domain.RiskHigh
	case d.FirstWithdrawal:
		d.Risk = domain.RiskMedium
	default:
		d.Risk = domain.RiskLow
	}

	d.Status = domain.WithdrawalStatusApproved
	if d.ManualReview {
		d.Status = domain.WithdrawalStatusPending
	}
	return d, nil
}

func checkMonthlyCap(requested, monthToDate int64, cfg domain.WithdrawalConfig) error {
	if monthToDate+requested <= cfg.MaxCreditsPerMonth {
		return nil
	}
	remaining := max(cfg.MaxCreditsPerMonth-monthToDate, 0)
	return domain.NewPolicyViolation(domain.ReasonMonthlyCap, requested, cfg.MaxCreditsPerMonth, remaining)
}

// checkFunds distinguishes credits that exist but are still cooling from
// credits that do not exist at all.
func checkFunds(requested int64, f funds) error {
	withdrawable := f.Withdrawable()
	if requested <= withdrawable {
		return nil
	}
	if requested <= f.Available() {
		return domain.NewPolicyViolation(domain.ReasonCoolingPeriod, requested, withdrawable, withdrawable)
	}
	return domain.NewPolicyViolation(domain.ReasonInsufficientBonus, requested, f.Available(), withdrawable)
}

// cashAmount converts credits at rate, rounded half away from zero to cents.
func cashAmount(credits int64, rate decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(credits).Mul(rate).Round(2)
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func validateConfig(c domain.WithdrawalConfig) error {
	var problem string
	switch {
	case !c.ExchangeRate.IsPositive():
		problem = "exchange_rate must be positive"
	case c.MinCredits <= 0:
		problem = "min_credits must be positive"
	case c.MaxCreditsPerRequest < c.MinCredits:
		problem = "max_credits_per_request must be at least min_credits"
	case c.MaxCreditsPerMonth < c.MaxCreditsPerRequest:
		problem = "max_credits_per_month must be at least max_credits_per_request"
	case c.CoolingPeriodDays < 0:
		problem = "cooling_period_days must not be negative"
	case c.HighAmountThreshold <= 0:
		problem = "high_amount_threshold must be positive"
	default:
		return nil
	}
	return fmt.Errorf("%s: %w", problem, domain.ErrInvalidRequest)
}
