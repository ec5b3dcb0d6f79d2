// Package reconcile runs the periodic ledger jobs: consistency sweeps,
// audited repairs, monthly SUB expiry and the daily movement report.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/credit-ledger/internal/alert"
	"github.com/josh-kwaku/credit-ledger/internal/domain"
	"github.com/josh-kwaku/credit-ledger/internal/ledger"
	"github.com/josh-kwaku/credit-ledger/internal/metrics"
)

type verifier interface {
	VerifyConsistency(ctx context.Context, userID uuid.UUID) (*ledger.ConsistencyReport, error)
	Repair(ctx context.Context, userID uuid.UUID, dryRun bool) (*ledger.RepairReport, error)
}

type accountLister interface {
	ListUserIDsWithEntries(ctx context.Context) ([]uuid.UUID, error)
	ListUserIDsWithBalance(ctx context.Context, category domain.Category) ([]uuid.UUID, error)
}

type expirer interface {
	ExpireCategory(ctx context.Context, userID uuid.UUID, category domain.Category) (*domain.LedgerEntry, error)
}

type summarizer interface {
	Summary(ctx context.Context, from, to time.Time) ([]domain.SummaryRow, error)
}

type Service struct {
	ledger   verifier
	accounts accountLister
	credits  expirer
	entries  summarizer
	notifier alert.Notifier
	logger   *slog.Logger
}

func NewService(
	ledger verifier,
	accounts accountLister,
	credits expirer,
	entries summarizer,
	notifier alert.Notifier,
	logger *slog.Logger,
) *Service {
	return &Service{
		ledger:   ledger,
		accounts: accounts,
		credits:  credits,
		entries:  entries,
		notifier: notifier,
		logger:   logger,
	}
}

type ReconcileResult struct {
	Checked             int                         `json:"checked"`
	InconsistentUserIDs []uuid.UUID                 `json:"inconsistent_user_ids"`
	Findings            []*ledger.ConsistencyReport `json:"findings"`
	Failed              int                         `json:"failed"`
}

// ReconcileAll verifies every account that has ledger entries. Mismatches
// are reported through one warning alert and left for an operator to repair.
// An account that cannot be read is counted as failed and skipped.
func (s *Service) ReconcileAll(ctx context.Context) (*ReconcileResult, error) {
	userIDs, err := s.accounts.ListUserIDsWithEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("ReconcileAll: %w", err)
	}

	result := &ReconcileResult{InconsistentUserIDs: []uuid.UUID{}, Findings: []*ledger.ConsistencyReport{}}
	for _, userID := range userIDs {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("ReconcileAll: %w", err)
		}
		report, err := s.ledger.VerifyConsistency(ctx, userID)
		if err != nil {
			result.Failed++
			s.logger.Error("consistency check failed", "user_id", userID, "error", err)
			continue
		}
		result.Checked++
		if report.Consistent {
			continue
		}
		result.InconsistentUserIDs = append(result.InconsistentUserIDs, userID)
		result.Findings = append(result.Findings, report)
		s.logger.Warn("reconciliation mismatch",
			"user_id", userID,
			"stored_total", report.StoredTotal,
			"category_sum", report.CategorySum,
			"ledger_total", report.LedgerTotal,
		)
	}

	metrics.InconsistentAccounts.Set(float64(len(result.InconsistentUserIDs)))
	s.logger.Info("reconciliation finished",
		"checked", result.Checked,
		"inconsistent", len(result.InconsistentUserIDs),
		"failed", result.Failed,
	)

	if len(result.Findings) > 0 {
		alert.Send(ctx, s.logger, s.notifier, mismatchAlert(result))
	}
	return result, nil
}

func mismatchAlert(r *ReconcileResult) alert.Alert {
	var b strings.Builder
	for _, f := range r.Findings {
		fmt.Fprintf(&b, "%s stored=%d ledger=%d categories=%d\n",
			f.UserID, f.StoredTotal, f.LedgerTotal, f.CategorySum)
	}
	return alert.Alert{
		Level:   alert.LevelWarning,
		Title:   "Ledger reconciliation mismatch",
		Message: strings.TrimRight(b.String(), "\n"),
		Fields: map[string]any{
			"checked":      r.Checked,
			"inconsistent": len(r.Findings),
		},
	}
}

// Repair runs an audited repair for one account. Applied repairs are
// alerted; dry runs and no-op repairs are only logged.
func (s *Service) Repair(ctx context.Context, userID uuid.UUID, dryRun bool) (*ledger.RepairReport, error) {
	report, err := s.ledger.Repair(ctx, userID, dryRun)
	if err != nil {
		return nil, fmt.Errorf("Repair: %w", err)
	}

	s.logger.Info("repair evaluated",
		"user_id", userID,
		"dry_run", dryRun,
		"changed", report.Changed,
		"before_total", report.BeforeTotal,
		"after_total", report.AfterTotal,
	)
	if report.Changed && !dryRun {
		metrics.Repairs.Inc()
		alert.Send(ctx, s.logger, s.notifier, alert.Alert{
			Level:   alert.LevelWarning,
			Title:   "Ledger account repaired",
			Message: fmt.Sprintf("user %s total %d -> %d", userID, report.BeforeTotal, report.AfterTotal),
			Fields: map[string]any{
				"user_id":      userID.String(),
				"entry_id":     report.Entry.ID.String(),
				"before_total": report.BeforeTotal,
				"after_total":  report.AfterTotal,
			},
		})
	}
	return report, nil
}

type ExpiryResult struct {
	UsersProcessed int   `json:"users_processed"`
	TotalExpired   int64 `json:"total_expired"`
	Failed         int   `json:"failed"`
}

// ExpireAllSubCredits zeroes the SUB balance of every account that holds
// one. Each account expires in its own transaction; failures are logged and
// the sweep continues.
func (s *Service) ExpireAllSubCredits(ctx context.Context) (*ExpiryResult, error) {
	userIDs, err := s.accounts.ListUserIDsWithBalance(ctx, domain.CategorySub)
	if err != nil {
		return nil, fmt.Errorf("ExpireAllSubCredits: %w", err)
	}

	result := &ExpiryResult{}
	for _, userID := range userIDs {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("ExpireAllSubCredits: %w", err)
		}
		entry, err := s.credits.ExpireCategory(ctx, userID, domain.CategorySub)
		if err != nil {
			result.Failed++
			s.logger.Error("sub expiry failed", "user_id", userID, "error", err)
			continue
		}
		if entry == nil {
			continue
		}
		result.UsersProcessed++
		result.TotalExpired += -entry.Amount
	}

	s.logger.Info("sub expiry finished",
		"users_processed", result.UsersProcessed,
		"total_expired", result.TotalExpired,
		"failed", result.Failed,
	)
	return result, nil
}

// DailyReport aggregates the entries of one UTC day. It reads only. Repair
// entries are counted apart from the credit totals.
func (s *Service) DailyReport(ctx context.Context, day time.Time) (*domain.DailyReport, error) {
	day = day.UTC().Truncate(24 * time.Hour)
	rows, err := s.entries.Summary(ctx, day, day.Add(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("DailyReport: %w", err)
	}

	report := &domain.DailyReport{Day: day, Rows: rows}
	if report.Rows == nil {
		report.Rows = []domain.SummaryRow{}
	}
	for _, r := range rows {
		if r.Reconciliation {
			report.RepairEntries += r.Entries
			report.RepairNet += r.Net
			continue
		}
		report.TotalIn += r.CreditsIn
		report.TotalOut += r.CreditsOut
		report.TotalEntries += r.Entries
	}
	return report, nil
}
