package withdrawal

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/credit-ledger/internal/domain"
)

func input(requested int64, f funds) policyInput {
	return policyInput{
		Config:           domain.DefaultWithdrawalConfig(),
		Requested:        requested,
		Funds:            f,
		PriorWithdrawals: 1,
	}
}

func requireReason(t *testing.T, err error, reason domain.PolicyReason) *domain.PolicyViolation {
	t.Helper()
	var v *domain.PolicyViolation
	require.True(t, errors.As(err, &v), "expected policy violation, got %v", err)
	assert.Equal(t, reason, v.Reason)
	return v
}

func TestFunds(t *testing.T) {
	f := funds{Bonus: 10000, Matured: 6000, Pending: 2000}
	assert.Equal(t, int64(8000), f.Available())
	assert.Equal(t, int64(4000), f.Withdrawable())

	f = funds{Bonus: 3000, Matured: 5000}
	assert.Equal(t, int64(3000), f.Withdrawable())

	f = funds{Bonus: 1000, Matured: 500, Pending: 2000}
	assert.Zero(t, f.Available())
	assert.Zero(t, f.Withdrawable())
}

func TestEvaluate_Bounds(t *testing.T) {
	plenty := funds{Bonus: 500000, Matured: 500000}

	_, err := evaluate(input(999, plenty))
	v := requireReason(t, err, domain.ReasonBelowMinimum)
	assert.Equal(t, int64(1000), v.Limit)
	assert.ErrorIs(t, err, domain.ErrWithdrawalBelowMinimum)

	_, err = evaluate(input(100001, plenty))
	requireReason(t, err, domain.ReasonAboveMaximum)

	d, err := evaluate(input(1000, plenty))
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalStatusApproved, d.Status)
}

func TestEvaluate_MonthlyCap(t *testing.T) {
	in := input(20000, funds{Bonus: 500000, Matured: 500000})
	in.MonthToDate = 290000

	_, err := evaluate(in)
	v := requireReason(t, err, domain.ReasonMonthlyCap)
	assert.Equal(t, int64(10000), v.Available)

	in.Requested = 10000
	_, err = evaluate(in)
	require.NoError(t, err)
}

func TestEvaluate_BoundsCheckedBeforeFunds(t *testing.T) {
	_, err := evaluate(input(500, funds{}))
	requireReason(t, err, domain.ReasonBelowMinimum)

	in := input(5000, funds{})
	in.MonthToDate = 299000
	_, err = evaluate(in)
	requireReason(t, err, domain.ReasonMonthlyCap)
}

func TestEvaluate_CoolingVersusInsufficient(t *testing.T) {
	// 5000 BONUS held, only 2000 past the cooling period.
	f := funds{Bonus: 5000, Matured: 2000}

	_, err := evaluate(input(4000, f))
	v := requireReason(t, err, domain.ReasonCoolingPeriod)
	assert.Equal(t, int64(2000), v.Available)
	assert.ErrorIs(t, err, domain.ErrWithdrawalCoolingPeriod)

	_, err = evaluate(input(6000, f))
	requireReason(t, err, domain.ReasonInsufficientBonus)

	_, err = evaluate(input(2000, f))
	require.NoError(t, err)
}

func TestEvaluate_PendingRequestsReserveFunds(t *testing.T) {
	f := funds{Bonus: 5000, Matured: 5000, Pending: 4000}

	_, err := evaluate(input(2000, f))
	requireReason(t, err, domain.ReasonInsufficientBonus)

	_, err = evaluate(input(1000, f))
	require.NoError(t, err)
}

func TestEvaluate_ReviewAndRisk(t *testing.T) {
	plenty := funds{Bonus: 500000, Matured: 500000}

	tests := []struct {
		name        string
		requested   int64
		prior       int
		firstReview bool
		status      domain.WithdrawalStatus
		risk        domain.RiskLevel
	}{
		{"repeat small", 5000, 2, true, domain.WithdrawalStatusApproved, domain.RiskLow},
		{"first small", 5000, 0, true, domain.WithdrawalStatusPending, domain.RiskMedium},
		{"first small without first review", 5000, 0, false, domain.WithdrawalStatusApproved, domain.RiskMedium},
		{"repeat at threshold", 50000, 3, true, domain.WithdrawalStatusPending, domain.RiskHigh},
		{"first high", 60000, 0, false, domain.WithdrawalStatusPending, domain.RiskHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := input(tt.requested, plenty)
			in.PriorWithdrawals = tt.prior
			in.Config.FirstWithdrawalReview = tt.firstReview

			d, err := evaluate(in)
			require.NoError(t, err)
			assert.Equal(t, tt.status, d.Status)
			assert.Equal(t, tt.risk, d.Risk)
			assert.Equal(t, tt.prior == 0, d.FirstWithdrawal)
			assert.Equal(t, tt.status == domain.WithdrawalStatusPending, d.ManualReview)
		})
	}
}

func TestCashAmount(t *testing.T) {
	assert.Equal(t, "10.00", cashAmount(1000, decimal.RequireFromString("0.01")).StringFixed(2))
	assert.Equal(t, "0.03", cashAmount(1, decimal.RequireFromString("0.025")).StringFixed(2))
	assert.Equal(t, "123.46", cashAmount(12345678, decimal.RequireFromString("0.00001")).StringFixed(2))
}

func TestMonthStart(t *testing.T) {
	at := time.Date(2026, 7, 19, 23, 59, 0, 0, time.FixedZone("x", 3*3600))
	assert.Equal(t, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC), monthStart(at))

	// 00:30 on Aug 1 at UTC+3 is still July in UTC.
	at = time.Date(2026, 8, 1, 0, 30, 0, 0, time.FixedZone("x", 3*3600))
	assert.Equal(t, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC), monthStart(at))
}

func TestValidateConfig(t *testing.T) {
	require.NoError(t, validateConfig(domain.DefaultWithdrawalConfig()))

	mutations := map[string]func(*domain.WithdrawalConfig){
		"zero rate":        func(c *domain.WithdrawalConfig) { c.ExchangeRate = decimal.Zero },
		"zero minimum":     func(c *domain.WithdrawalConfig) { c.MinCredits = 0 },
		"max below min":    func(c *domain.WithdrawalConfig) { c.MaxCreditsPerRequest = c.MinCredits - 1 },
		"month below max":  func(c *domain.WithdrawalConfig) { c.MaxCreditsPerMonth = c.MaxCreditsPerRequest - 1 },
		"negative cooling": func(c *domain.WithdrawalConfig) { c.CoolingPeriodDays = -1 },
		"zero threshold":   func(c *domain.WithdrawalConfig) { c.HighAmountThreshold = 0 },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			c := domain.DefaultWithdrawalConfig()
			mutate(&c)
			assert.ErrorIs(t, validateConfig(c), domain.ErrInvalidRequest)
		})
	}
}
