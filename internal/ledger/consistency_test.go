package ledger

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/josh-kwaku/credit-ledger/internal/domain"
)

func TestLargestDrift(t *testing.T) {
	before := &domain.Account{PromoBalance: 10, SubBalance: 5, BonusBalance: 100, TotalBalance: 115}

	after := *before
	after.SubBalance = 0
	after.BonusBalance = 90
	assert.Equal(t, domain.CategoryBonus, largestDrift(before, &after))

	totalOnly := *before
	totalOnly.TotalBalance = 999
	assert.Equal(t, domain.CategoryPromo, largestDrift(&totalOnly, before))

	tie := *before
	tie.SubBalance = 10
	tie.PaidBalance = 5
	assert.Equal(t, domain.CategorySub, largestDrift(before, &tie))
}

func TestBuildReport(t *testing.T) {
	account := &domain.Account{UserID: uuid.New(), PromoBalance: 10, PaidBalance: 5, TotalBalance: 15}

	ok := buildReport(account, domain.Balances{domain.CategoryPromo: 10, domain.CategoryPaid: 5}, 0)
	assert.True(t, ok.Consistent)
	assert.Equal(t, int64(15), ok.LedgerTotal)
	assert.Len(t, ok.Categories, 4)

	drifted := *account
	drifted.TotalBalance = 40
	bad := buildReport(&drifted, domain.Balances{domain.CategoryPromo: 10, domain.CategoryPaid: 5}, 0)
	assert.False(t, bad.Consistent)
	assert.Equal(t, int64(40), bad.StoredTotal)
	assert.Equal(t, int64(15), bad.CategorySum)

	categoryDrift := buildReport(account, domain.Balances{domain.CategoryPromo: 12, domain.CategoryPaid: 3}, 0)
	assert.False(t, categoryDrift.Consistent)

	breaks := buildReport(account, domain.Balances{domain.CategoryPromo: 10, domain.CategoryPaid: 5}, 2)
	assert.True(t, breaks.Consistent)
	assert.Equal(t, 2, breaks.ChainBreaks)
}

func TestSnapshotMetadata(t *testing.T) {
	before := &domain.Account{PromoBalance: 10, TotalBalance: 50}
	after := &domain.Account{PromoBalance: 10, TotalBalance: 10}

	meta := snapshotMetadata(before, after)
	assert.NoError(t, meta.Validate())
	assert.Equal(t, int64(50), meta["before_total"])
	assert.Equal(t, int64(10), meta["after_total"])
	assert.Equal(t, int64(10), meta["before_promo"])
	assert.Equal(t, int64(0), meta["after_bonus"])
}

func TestApplyRequestValidate(t *testing.T) {
	base := ApplyRequest{UserID: uuid.New(), Category: domain.CategoryPaid, Amount: 5, Type: domain.TransactionPurchase}
	assert.NoError(t, base.validate())

	zero := base
	zero.Amount = 0
	assert.ErrorIs(t, zero.validate(), domain.ErrInvalidAmount)

	badCat := base
	badCat.Category = "GOLD"
	assert.ErrorIs(t, badCat.validate(), domain.ErrInvalidCategory)

	badType := base
	badType.Type = "gift"
	assert.ErrorIs(t, badType.validate(), domain.ErrInvalidTransactionType)

	meta := base
	meta.Metadata = domain.Metadata{"nested": map[string]any{"a": 1}}
	assert.ErrorIs(t, meta.validate(), domain.ErrInvalidRequest)
}
