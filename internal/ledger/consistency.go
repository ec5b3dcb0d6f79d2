package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/josh-kwaku/credit-ledger/internal/domain"
	"github.com/josh-kwaku/credit-ledger/internal/logging"
)

type CategoryCheck struct {
	Category domain.Category `json:"category"`
	Stored   int64           `json:"stored"`
	Ledger   int64           `json:"ledger"`
}

func (c CategoryCheck) Matches() bool { return c.Stored == c.Ledger }

type ConsistencyReport struct {
	UserID      uuid.UUID       `json:"user_id"`
	Consistent  bool            `json:"consistent"`
	StoredTotal int64           `json:"stored_total"`
	CategorySum int64           `json:"category_sum"`
	LedgerTotal int64           `json:"ledger_total"`
	Categories  []CategoryCheck `json:"categories"`
	// ChainBreaks is informational: a break stays in the log after repair.
	ChainBreaks int `json:"chain_breaks"`
}

// VerifyConsistency compares the stored account against the entry log without
// taking a lock. The account is consistent when the total equals the category
// sum and every category equals the sum of its entries.
func (m *Manager) VerifyConsistency(ctx context.Context, userID uuid.UUID) (*ConsistencyReport, error) {
	account, err := m.accounts.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("VerifyConsistency: %w", err)
	}

	totals, err := m.entries.CategoryTotals(ctx, m.db, userID)
	if err != nil {
		return nil, fmt.Errorf("VerifyConsistency: %w", err)
	}

	breaks, err := m.entries.ChainBreaks(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("VerifyConsistency: %w", err)
	}

	return buildReport(account, totals, breaks), nil
}

func buildReport(account *domain.Account, totals domain.Balances, breaks int) *ConsistencyReport {
	r := &ConsistencyReport{
		UserID:      account.UserID,
		StoredTotal: account.TotalBalance,
		CategorySum: account.CategorySum(),
		ChainBreaks: breaks,
		Consistent:  account.Conserved(),
	}
	for _, c := range domain.Categories {
		check := CategoryCheck{Category: c, Stored: account.Balance(c), Ledger: totals[c]}
		r.Categories = append(r.Categories, check)
		r.LedgerTotal += check.Ledger
		if !check.Matches() {
			r.Consistent = false
		}
	}
	if r.LedgerTotal != r.StoredTotal {
		r.Consistent = false
	}
	return r
}

type RepairReport struct {
	UserID      uuid.UUID           `json:"user_id"`
	DryRun      bool                `json:"dry_run"`
	Changed     bool                `json:"changed"`
	Before      domain.Balances     `json:"before"`
	BeforeTotal int64               `json:"before_total"`
	After       domain.Balances     `json:"after"`
	AfterTotal  int64               `json:"after_total"`
	Entry       *domain.LedgerEntry `json:"entry,omitempty"`
}

// Repair recomputes every category from its entries under the account lock.
// When anything differs it overwrites the account and appends exactly one
// admin_adjustment entry referencing "reconciliation" with the before and
// after snapshot in its metadata. A dry run computes the same report and
// rolls back.
func (m *Manager) Repair(ctx context.Context, userID uuid.UUID, dryRun bool) (*RepairReport, error) {
	var report *RepairReport
	op := func() error {
		return m.run(ctx, func(tx *Tx) error {
			var err error
			report, err = tx.repair(ctx, userID, dryRun)
			return err
		}, !dryRun)
	}
	if err := m.retry(ctx, op); err != nil {
		return nil, fmt.Errorf("Repair: %w", err)
	}
	return report, nil
}

func (t *Tx) repair(ctx context.Context, userID uuid.UUID, dryRun bool) (*RepairReport, error) {
	current, err := t.Lock(ctx, userID)
	if err != nil {
		return nil, err
	}

	totals, err := t.m.entries.CategoryTotals(ctx, t.sqlTx, userID)
	if err != nil {
		return nil, err
	}

	next := *current
	for _, c := range domain.Categories {
		next.SetBalance(c, totals[c])
	}
	next.TotalBalance = next.CategorySum()

	report := &RepairReport{
		UserID:      userID,
		DryRun:      dryRun,
		Before:      current.Snapshot(),
		BeforeTotal: current.TotalBalance,
		After:       next.Snapshot(),
		AfterTotal:  next.TotalBalance,
	}
	for _, c := range domain.Categories {
		if current.Balance(c) != next.Balance(c) {
			report.Changed = true
		}
	}
	if current.TotalBalance != next.TotalBalance {
		report.Changed = true
	}
	if !report.Changed {
		return report, nil
	}

	entry := &domain.LedgerEntry{
		ID:              uuid.New(),
		UserID:          userID,
		Category:        largestDrift(current, &next),
		TransactionType: domain.TransactionAdminAdjustment,
		Amount:          next.TotalBalance - current.TotalBalance,
		BalanceBefore:   current.TotalBalance,
		BalanceAfter:    next.TotalBalance,
		Description:     "reconciliation repair",
		Metadata:        snapshotMetadata(current, &next),
		Reconciliation:  true,
	}
	refType, refID := domain.ReferenceReconciliation, uuid.NewString()
	entry.ReferenceType, entry.ReferenceID = &refType, &refID
	report.Entry = entry

	if dryRun {
		return report, nil
	}

	stored, err := t.m.accounts.UpdateBalances(ctx, t.sqlTx, &next)
	if err != nil {
		return nil, err
	}
	if !stored.Conserved() {
		t.alerts = append(t.alerts, t.m.integrityAlert(stored, "repair"))
		return nil, fmt.Errorf("post-repair check failed: %w", domain.ErrIntegrityViolation)
	}
	if err := t.m.entries.Create(ctx, t.sqlTx, entry); err != nil {
		return nil, fmt.Errorf("create entry: %w", err)
	}
	t.locked[userID] = stored
	t.written = append(t.written, *entry)

	logging.FromContext(ctx).Warn("account repaired",
		"user_id", userID,
		"before_total", report.BeforeTotal,
		"after_total", report.AfterTotal,
		"entry_id", entry.ID,
	)
	return report, nil
}

// largestDrift picks the category with the largest absolute change. Ties and
// total-only drift resolve to the first category in canonical order.
func largestDrift(before, after *domain.Account) domain.Category {
	best, bestDelta := domain.Categories[0], int64(0)
	for _, c := range domain.Categories {
		d := after.Balance(c) - before.Balance(c)
		if d < 0 {
			d = -d
		}
		if d > bestDelta {
			best, bestDelta = c, d
		}
	}
	return best
}

func snapshotMetadata(before, after *domain.Account) domain.Metadata {
	meta := domain.Metadata{
		"before_total": before.TotalBalance,
		"after_total":  after.TotalBalance,
	}
	for _, c := range domain.Categories {
		key := strings.ToLower(string(c))
		meta["before_"+key] = before.Balance(c)
		meta["after_"+key] = after.Balance(c)
	}
	return meta
}
