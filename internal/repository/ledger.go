package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/credit-ledger/internal/domain"
)

const ledgerColumns = `id, seq, user_id, category, transaction_type, amount,
	balance_before, balance_after, reference_type, reference_id, description,
	metadata, available_at, is_reconciliation, created_at`

// notReconciliation filters out repair snapshots, which document drift rather
// than move credits. Only Tx.repair sets the flag.
const notReconciliation = `NOT is_reconciliation`

type LedgerRepository struct {
	db *sql.DB
}

func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Create inserts the entry and fills in Seq and CreatedAt. created_at uses
// clock_timestamp() so entries written after the account lock is acquired
// sort after every entry committed before it.
func (r *LedgerRepository) Create(ctx context.Context, tx *sql.Tx, entry *domain.LedgerEntry) error {
	meta, err := entry.Metadata.MarshalValue()
	if err != nil {
		return fmt.Errorf("Create: metadata: %w", err)
	}

	err = tx.QueryRowContext(ctx,
		`INSERT INTO ledger_entries (
			id, user_id, category, transaction_type, amount, balance_before,
			balance_after, reference_type, reference_id, description, metadata,
			available_at, is_reconciliation, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, clock_timestamp())
		RETURNING seq, created_at`,
		entry.ID, entry.UserID, entry.Category, entry.TransactionType, entry.Amount,
		entry.BalanceBefore, entry.BalanceAfter, entry.ReferenceType, entry.ReferenceID,
		entry.Description, meta, entry.AvailableAt, entry.Reconciliation,
	).Scan(&entry.Seq, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("Create: %w", TranslateError(err))
	}
	return nil
}

// GetByID reads an entry owned by userID. q may be a transaction so refunds
// see entries written earlier in the same unit.
func (r *LedgerRepository) GetByID(ctx context.Context, q Querier, userID, id uuid.UUID) (*domain.LedgerEntry, error) {
	if q == nil {
		q = r.db
	}
	row := q.QueryRowContext(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	e, err := scanLedgerEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return e, nil
}

type LedgerFilter struct {
	UserID   uuid.UUID
	Category *domain.Category
	Type     *domain.TransactionType
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}

func (f LedgerFilter) where() (string, []any) {
	conds := []string{"user_id = $1"}
	args := []any{f.UserID}
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Category != nil {
		add("category = $%d", string(*f.Category))
	}
	if f.Type != nil {
		add("transaction_type = $%d", string(*f.Type))
	}
	if f.From != nil {
		add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("created_at < $%d", *f.To)
	}
	return strings.Join(conds, " AND "), args
}

// List returns the newest entries first along with the unpaginated count.
func (r *LedgerRepository) List(ctx context.Context, f LedgerFilter) ([]domain.LedgerEntry, int, error) {
	where, args := f.where()

	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ledger_entries WHERE `+where, args...,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("List: count: %w", err)
	}

	args = append(args, f.Limit, f.Offset)
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT `+ledgerColumns+` FROM ledger_entries WHERE %s
		ORDER BY created_at DESC, seq DESC LIMIT $%d OFFSET $%d`,
			where, len(args)-1, len(args)),
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("List: %w", err)
	}
	defer rows.Close()

	entries, err := collectEntries(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("List: %w", err)
	}
	return entries, total, nil
}

// ListAll returns every entry of a user in chain order.
func (r *LedgerRepository) ListAll(ctx context.Context, userID uuid.UUID) ([]domain.LedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries
		WHERE user_id = $1 ORDER BY created_at, seq`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("ListAll: %w", err)
	}
	defer rows.Close()

	entries, err := collectEntries(rows)
	if err != nil {
		return nil, fmt.Errorf("ListAll: %w", err)
	}
	return entries, nil
}

// CategoryTotals sums every non-reconciliation entry per category. Categories
// without entries are present with zero.
func (r *LedgerRepository) CategoryTotals(ctx context.Context, q Querier, userID uuid.UUID) (domain.Balances, error) {
	if q == nil {
		q = r.db
	}
	rows, err := q.QueryContext(ctx,
		`SELECT category, COALESCE(SUM(amount), 0) FROM ledger_entries
		WHERE user_id = $1 AND `+notReconciliation+`
		GROUP BY category`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("CategoryTotals: %w", err)
	}
	defer rows.Close()

	totals := make(domain.Balances, len(domain.Categories))
	for _, c := range domain.Categories {
		totals[c] = 0
	}
	for rows.Next() {
		var (
			c   domain.Category
			sum int64
		)
		if err := rows.Scan(&c, &sum); err != nil {
			return nil, fmt.Errorf("CategoryTotals: scan: %w", err)
		}
		totals[c] = sum
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("CategoryTotals: rows: %w", err)
	}
	return totals, nil
}

// ChainBreaks counts entries whose balance_before differs from the previous
// entry's balance_after. The first entry must start from zero. Reconciliation
// entries bridge a detected break and are not counted themselves.
func (r *LedgerRepository) ChainBreaks(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM (
			SELECT balance_before, is_reconciliation,
				LAG(balance_after) OVER (ORDER BY created_at, seq) AS prev_after
			FROM ledger_entries WHERE user_id = $1
		) chain
		WHERE balance_before <> COALESCE(prev_after, 0)
			AND `+notReconciliation, userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("ChainBreaks: %w", err)
	}
	return n, nil
}

// RefundedAmount sums refunds already issued against an original entry.
func (r *LedgerRepository) RefundedAmount(ctx context.Context, q Querier, originalID uuid.UUID) (int64, error) {
	if q == nil {
		q = r.db
	}
	var sum int64
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM ledger_entries
		WHERE transaction_type = 'refund' AND reference_type = $1 AND reference_id = $2`,
		domain.ReferenceLedgerEntry, originalID.String(),
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("RefundedAmount: %w", err)
	}
	return sum, nil
}

// MaturedBonus sums BONUS entries whose cooling period has elapsed at now.
// Debits carry no available_at and always count.
func (r *LedgerRepository) MaturedBonus(ctx context.Context, q Querier, userID uuid.UUID, now time.Time) (int64, error) {
	if q == nil {
		q = r.db
	}
	var sum int64
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM ledger_entries
		WHERE user_id = $1 AND category = 'BONUS'
			AND (available_at IS NULL OR available_at <= $2)
			AND `+notReconciliation, userID, now,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("MaturedBonus: %w", err)
	}
	return sum, nil
}

// Summary aggregates entries created in [from, to) by type and category.
// Reconciliation entries are grouped separately.
func (r *LedgerRepository) Summary(ctx context.Context, from, to time.Time) ([]domain.SummaryRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT transaction_type, category, is_reconciliation,
			COALESCE(SUM(amount) FILTER (WHERE amount > 0), 0),
			COALESCE(-SUM(amount) FILTER (WHERE amount < 0), 0),
			COALESCE(SUM(amount), 0),
			COUNT(*)
		FROM ledger_entries
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY transaction_type, category, is_reconciliation
		ORDER BY is_reconciliation, transaction_type, category`, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("Summary: %w", err)
	}
	defer rows.Close()

	var out []domain.SummaryRow
	for rows.Next() {
		var s domain.SummaryRow
		if err := rows.Scan(&s.TransactionType, &s.Category, &s.Reconciliation, &s.CreditsIn, &s.CreditsOut, &s.Net, &s.Entries); err != nil {
			return nil, fmt.Errorf("Summary: scan: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Summary: rows: %w", err)
	}
	return out, nil
}

func collectEntries(rows *sql.Rows) ([]domain.LedgerEntry, error) {
	var entries []domain.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return entries, nil
}

func scanLedgerEntry(s scanner) (*domain.LedgerEntry, error) {
	var (
		e    domain.LedgerEntry
		meta []byte
	)
	err := s.Scan(
		&e.ID, &e.Seq, &e.UserID, &e.Category, &e.TransactionType, &e.Amount,
		&e.BalanceBefore, &e.BalanceAfter, &e.ReferenceType, &e.ReferenceID,
		&e.Description, &meta, &e.AvailableAt, &e.Reconciliation, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Metadata, err = domain.UnmarshalMetadata(meta)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
