package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/credit-ledger/internal/domain"
)

// SeedAccount creates an account holding the given balances, backed by one
// grant entry per non-zero category so the entry log and chain are intact.
func SeedAccount(t *testing.T, db *sql.DB, balances domain.Balances) uuid.UUID {
	t.Helper()

	userID := uuid.New()
	now := time.Now().UTC()

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("seed account: begin: %v", err)
	}
	defer tx.Rollback()

	var total int64
	for _, c := range domain.Categories {
		total += balances[c]
	}

	_, err = tx.Exec(
		`INSERT INTO accounts (user_id, total_balance, promo_balance, sub_balance,
			paid_balance, bonus_balance, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'active', $7, $7)`,
		userID, total, balances[domain.CategoryPromo], balances[domain.CategorySub],
		balances[domain.CategoryPaid], balances[domain.CategoryBonus], now,
	)
	if err != nil {
		t.Fatalf("seed account %s: %v", userID, err)
	}

	var running int64
	for _, c := range domain.Categories {
		amount := balances[c]
		if amount == 0 {
			continue
		}
		_, err = tx.Exec(
			`INSERT INTO ledger_entries (id, user_id, category, transaction_type, amount,
				balance_before, balance_after, description, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, 'seed', clock_timestamp())`,
			uuid.New(), userID, c, seedType(c), amount, running, running+amount,
		)
		if err != nil {
			t.Fatalf("seed %s entry: %v", c, err)
		}
		running += amount
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("seed account: commit: %v", err)
	}
	return userID
}

func seedType(c domain.Category) domain.TransactionType {
	switch c {
	case domain.CategorySub:
		return domain.TransactionSubscriptionGrant
	case domain.CategoryPaid:
		return domain.TransactionPurchase
	case domain.CategoryBonus:
		return domain.TransactionReferralBonus
	default:
		return domain.TransactionPromoGrant
	}
}

func GetAccount(t *testing.T, db *sql.DB, userID uuid.UUID) *domain.Account {
	t.Helper()

	var a domain.Account
	err := db.QueryRow(
		`SELECT user_id, total_balance, promo_balance, sub_balance, paid_balance,
			bonus_balance, status, created_at, updated_at
		FROM accounts WHERE user_id = $1`, userID,
	).Scan(&a.UserID, &a.TotalBalance, &a.PromoBalance, &a.SubBalance, &a.PaidBalance,
		&a.BonusBalance, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		t.Fatalf("get account %s: %v", userID, err)
	}
	return &a
}

func CountEntries(t *testing.T, db *sql.DB, userID uuid.UUID) int {
	t.Helper()

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM ledger_entries WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		t.Fatalf("count ledger entries for %s: %v", userID, err)
	}
	return count
}

// CorruptBalance writes a column of accounts directly, bypassing the ledger,
// to simulate drift. The conservation CHECK is dropped first.
func CorruptBalance(t *testing.T, db *sql.DB, userID uuid.UUID, column string, value int64) {
	t.Helper()

	if _, err := db.Exec(`ALTER TABLE accounts DROP CONSTRAINT IF EXISTS accounts_total_matches_categories`); err != nil {
		t.Fatalf("drop conservation check: %v", err)
	}
	switch column {
	case "total_balance", "promo_balance", "sub_balance", "paid_balance", "bonus_balance":
	default:
		t.Fatalf("corrupt balance: unknown column %q", column)
	}
	if _, err := db.Exec(`UPDATE accounts SET `+column+` = $1 WHERE user_id = $2`, value, userID); err != nil {
		t.Fatalf("corrupt %s for %s: %v", column, userID, err)
	}
}
