package reconcile

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/josh-kwaku/credit-ledger/internal/alert"
	"github.com/josh-kwaku/credit-ledger/internal/metrics"
	"github.com/josh-kwaku/credit-ledger/internal/repository"
)

const (
	JobReconcile        = "reconcile"
	JobDailyReport      = "daily-report"
	JobSubExpiry        = "sub-expiry"
	JobIdempotencySweep = "idempotency-sweep"
)

type locker interface {
	TryLock(ctx context.Context, name string) (release func(), ok bool, err error)
}

type runLog interface {
	HasRun(ctx context.Context, job, period string) (bool, error)
	MarkRun(ctx context.Context, job, period string, startedAt time.Time, result any) error
}

type expiredCleaner interface {
	CleanExpired(ctx context.Context) (int64, error)
}

// PgLocker serialises jobs across replicas with Postgres advisory locks.
type PgLocker struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewPgLocker(db *sql.DB, logger *slog.Logger) *PgLocker {
	return &PgLocker{db: db, logger: logger}
}

func (l *PgLocker) TryLock(ctx context.Context, name string) (func(), bool, error) {
	lock, err := repository.TryJobLock(ctx, l.db, "credit-ledger:"+name)
	if err != nil || lock == nil {
		return nil, false, err
	}
	return func() {
		if err := lock.Release(ctx); err != nil {
			l.logger.Error("failed to release job lock", "job", name, "error", err)
		}
	}, true, nil
}

type SchedulerConfig struct {
	Tick              time.Duration
	ReconcileInterval time.Duration
}

// Scheduler runs the ledger jobs from a single ticker. Every job is recorded
// in the run log against its period (interval bucket, day or month) so a
// restart or another replica does not repeat it.
type Scheduler struct {
	svc     *Service
	locks   locker
	runs    runLog
	cleaner expiredCleaner
	cfg     SchedulerConfig
	logger  *slog.Logger
	now     func() time.Time
}

func NewScheduler(svc *Service, locks locker, runs runLog, cleaner expiredCleaner, cfg SchedulerConfig, logger *slog.Logger) *Scheduler {
	if cfg.Tick <= 0 {
		cfg.Tick = time.Minute
	}
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = time.Hour
	}
	return &Scheduler{
		svc:     svc,
		locks:   locks,
		runs:    runs,
		cleaner: cleaner,
		cfg:     cfg,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("scheduler started", "tick", s.cfg.Tick, "reconcile_interval", s.cfg.ReconcileInterval)

	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()

	slot := now.Truncate(s.cfg.ReconcileInterval).Format(time.RFC3339)
	s.runOnce(ctx, JobReconcile, slot, func(ctx context.Context) (any, error) {
		return s.svc.ReconcileAll(ctx)
	})
	if s.cleaner != nil {
		s.runOnce(ctx, JobIdempotencySweep, slot, func(ctx context.Context) (any, error) {
			n, err := s.cleaner.CleanExpired(ctx)
			return map[string]int64{"deleted": n}, err
		})
	}

	yesterday := now.Truncate(24*time.Hour).Add(-24 * time.Hour)
	s.runOnce(ctx, JobDailyReport, yesterday.Format(time.DateOnly), func(ctx context.Context) (any, error) {
		report, err := s.svc.DailyReport(ctx, yesterday)
		if err != nil {
			return nil, err
		}
		s.logger.Info("daily ledger report",
			"day", report.Day.Format(time.DateOnly),
			"total_in", report.TotalIn,
			"total_out", report.TotalOut,
			"entries", report.TotalEntries,
			"repair_entries", report.RepairEntries,
		)
		alert.Send(ctx, s.logger, s.svc.notifier, alert.Alert{
			Level:   alert.LevelInfo,
			Title:   "Daily ledger report",
			Message: fmt.Sprintf("%s: +%d / -%d credits over %d entries", report.Day.Format(time.DateOnly), report.TotalIn, report.TotalOut, report.TotalEntries),
		})
		return report, nil
	})

	// SUB expiry belongs to the first UTC day of the month; a missed day is
	// left to ledgerctl expire-sub.
	if now.Day() == 1 {
		s.runOnce(ctx, JobSubExpiry, now.Format("2006-01"), func(ctx context.Context) (any, error) {
			return s.svc.ExpireAllSubCredits(ctx)
		})
	}
}

// runOnce runs job at most once per period across restarts and replicas.
func (s *Scheduler) runOnce(ctx context.Context, job, period string, fn func(context.Context) (any, error)) {
	s.run(ctx, job, func(ctx context.Context) (any, error) {
		done, err := s.runs.HasRun(ctx, job, period)
		if err != nil || done {
			return nil, err
		}
		started := s.now()
		result, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		if err := s.runs.MarkRun(ctx, job, period, started, result); err != nil {
			return nil, err
		}
		s.logger.Info("job period completed", "job", job, "period", period)
		return result, nil
	})
}

// run executes fn under the job's advisory lock. A lock held elsewhere skips
// the run silently.
func (s *Scheduler) run(ctx context.Context, job string, fn func(context.Context) (any, error)) {
	release, ok, err := s.locks.TryLock(ctx, job)
	if err != nil {
		metrics.ReconcileRuns.WithLabelValues(job, "error").Inc()
		s.logger.Error("failed to acquire job lock", "job", job, "error", err)
		return
	}
	if !ok {
		metrics.ReconcileRuns.WithLabelValues(job, "skipped").Inc()
		s.logger.Debug("job locked by another replica", "job", job)
		return
	}
	defer release()

	start := time.Now()
	if _, err := fn(ctx); err != nil {
		metrics.ReconcileRuns.WithLabelValues(job, "error").Inc()
		s.logger.Error("scheduled job failed", "job", job, "error", err, "duration", time.Since(start))
		return
	}
	metrics.ReconcileRuns.WithLabelValues(job, "ok").Inc()
	s.logger.Debug("scheduled job finished", "job", job, "duration", time.Since(start))
}
