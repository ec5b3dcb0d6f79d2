package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/credit-ledger/internal/alert"
	"github.com/josh-kwaku/credit-ledger/internal/domain"
	"github.com/josh-kwaku/credit-ledger/internal/ledger"
)

type fakeLedger struct {
	reports map[uuid.UUID]*ledger.ConsistencyReport
	failing map[uuid.UUID]bool
	repair  *ledger.RepairReport
	calls   int
}

func (f *fakeLedger) VerifyConsistency(_ context.Context, userID uuid.UUID) (*ledger.ConsistencyReport, error) {
	f.calls++
	if f.failing[userID] {
		return nil, errors.New("boom")
	}
	if r, ok := f.reports[userID]; ok {
		return r, nil
	}
	return &ledger.ConsistencyReport{UserID: userID, Consistent: true}, nil
}

func (f *fakeLedger) Repair(_ context.Context, userID uuid.UUID, dryRun bool) (*ledger.RepairReport, error) {
	r := *f.repair
	r.UserID, r.DryRun = userID, dryRun
	return &r, nil
}

type fakeAccounts struct {
	withEntries []uuid.UUID
	withSub     []uuid.UUID
}

func (f *fakeAccounts) ListUserIDsWithEntries(context.Context) ([]uuid.UUID, error) {
	return f.withEntries, nil
}

func (f *fakeAccounts) ListUserIDsWithBalance(_ context.Context, c domain.Category) ([]uuid.UUID, error) {
	if c != domain.CategorySub {
		return nil, nil
	}
	return f.withSub, nil
}

type fakeExpirer struct {
	amounts map[uuid.UUID]int64
	calls   int
}

func (f *fakeExpirer) ExpireCategory(_ context.Context, userID uuid.UUID, _ domain.Category) (*domain.LedgerEntry, error) {
	f.calls++
	amount := f.amounts[userID]
	if amount == 0 {
		return nil, nil
	}
	return &domain.LedgerEntry{UserID: userID, Amount: -amount}, nil
}

type fakeSummary struct {
	rows     []domain.SummaryRow
	from, to time.Time
	calls    int
}

func (f *fakeSummary) Summary(_ context.Context, from, to time.Time) ([]domain.SummaryRow, error) {
	f.calls++
	f.from, f.to = from, to
	return f.rows, nil
}

type captureNotifier struct {
	mu     sync.Mutex
	alerts []alert.Alert
}

func (c *captureNotifier) Notify(_ context.Context, a alert.Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, a)
	return nil
}

type fakeLocker struct {
	held map[string]bool
}

func (f *fakeLocker) TryLock(_ context.Context, name string) (func(), bool, error) {
	if f.held[name] {
		return nil, false, nil
	}
	return func() {}, true, nil
}

type fakeRuns struct {
	done map[string]bool
}

func (f *fakeRuns) HasRun(_ context.Context, job, period string) (bool, error) {
	return f.done[job+"/"+period], nil
}

func (f *fakeRuns) MarkRun(_ context.Context, job, period string, _ time.Time, _ any) error {
	f.done[job+"/"+period] = true
	return nil
}

type fakeCleaner struct{ calls int }

func (f *fakeCleaner) CleanExpired(context.Context) (int64, error) {
	f.calls++
	return 3, nil
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestReconcileAll_ReportsMismatchesWithOneAlert(t *testing.T) {
	good, bad1, bad2, broken := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	l := &fakeLedger{
		reports: map[uuid.UUID]*ledger.ConsistencyReport{
			bad1: {UserID: bad1, StoredTotal: 100, LedgerTotal: 90, CategorySum: 90},
			bad2: {UserID: bad2, StoredTotal: 5, LedgerTotal: 5, CategorySum: 7},
		},
		failing: map[uuid.UUID]bool{broken: true},
	}
	n := &captureNotifier{}
	svc := NewService(l, &fakeAccounts{withEntries: []uuid.UUID{good, bad1, bad2, broken}}, nil, nil, n, discard())

	res, err := svc.ReconcileAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Checked)
	assert.Equal(t, 1, res.Failed)
	assert.ElementsMatch(t, []uuid.UUID{bad1, bad2}, res.InconsistentUserIDs)

	require.Len(t, n.alerts, 1)
	assert.Equal(t, alert.LevelWarning, n.alerts[0].Level)
	assert.Contains(t, n.alerts[0].Message, bad1.String())
	assert.Contains(t, n.alerts[0].Message, "stored=100 ledger=90")
	assert.Equal(t, 2, n.alerts[0].Fields["inconsistent"])
}

func TestReconcileAll_ConsistentRaisesNoAlert(t *testing.T) {
	n := &captureNotifier{}
	svc := NewService(&fakeLedger{}, &fakeAccounts{withEntries: []uuid.UUID{uuid.New(), uuid.New()}}, nil, nil, n, discard())

	res, err := svc.ReconcileAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Checked)
	assert.Empty(t, res.InconsistentUserIDs)
	assert.Empty(t, n.alerts)
}

func TestRepair_AlertsOnlyAppliedChanges(t *testing.T) {
	n := &captureNotifier{}
	l := &fakeLedger{repair: &ledger.RepairReport{
		Changed:     true,
		BeforeTotal: 120,
		AfterTotal:  100,
		Entry:       &domain.LedgerEntry{ID: uuid.New()},
	}}
	svc := NewService(l, &fakeAccounts{}, nil, nil, n, discard())
	userID := uuid.New()

	report, err := svc.Repair(context.Background(), userID, true)
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Empty(t, n.alerts)

	_, err = svc.Repair(context.Background(), userID, false)
	require.NoError(t, err)
	require.Len(t, n.alerts, 1)
	assert.Equal(t, userID.String(), n.alerts[0].Fields["user_id"])

	l.repair = &ledger.RepairReport{BeforeTotal: 100, AfterTotal: 100}
	_, err = svc.Repair(context.Background(), userID, false)
	require.NoError(t, err)
	assert.Len(t, n.alerts, 1)
}

func TestExpireAllSubCredits_SumsExpiredBalances(t *testing.T) {
	a, b, empty := uuid.New(), uuid.New(), uuid.New()
	exp := &fakeExpirer{amounts: map[uuid.UUID]int64{a: 40, b: 60}}
	svc := NewService(&fakeLedger{}, &fakeAccounts{withSub: []uuid.UUID{a, b, empty}}, exp, nil, nil, discard())

	res, err := svc.ExpireAllSubCredits(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.UsersProcessed)
	assert.Equal(t, int64(100), res.TotalExpired)
	assert.Equal(t, 3, exp.calls)
}

func TestDailyReport_UsesUTCDayWindow(t *testing.T) {
	sum := &fakeSummary{rows: []domain.SummaryRow{
		{TransactionType: domain.TransactionConsume, Category: domain.CategoryPromo, CreditsOut: 30, Net: -30, Entries: 3},
		{TransactionType: domain.TransactionPurchase, Category: domain.CategoryPaid, CreditsIn: 500, Net: 500, Entries: 1},
	}}
	svc := NewService(&fakeLedger{}, &fakeAccounts{}, nil, sum, nil, discard())

	report, err := svc.DailyReport(context.Background(), time.Date(2026, 5, 4, 17, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC), sum.from)
	assert.Equal(t, time.Date(2026, 5, 5, 0, 0, 0, 0, time.UTC), sum.to)
	assert.Equal(t, int64(500), report.TotalIn)
	assert.Equal(t, int64(30), report.TotalOut)
	assert.Equal(t, int64(4), report.TotalEntries)
}

func TestDailyReport_KeepsRepairsOutOfTotals(t *testing.T) {
	sum := &fakeSummary{rows: []domain.SummaryRow{
		{TransactionType: domain.TransactionPromoGrant, Category: domain.CategoryPromo, CreditsIn: 100, Net: 100, Entries: 1},
		{TransactionType: domain.TransactionAdminAdjustment, Category: domain.CategoryPromo, CreditsIn: 20, Net: 20, Entries: 1},
		{TransactionType: domain.TransactionAdminAdjustment, Category: domain.CategoryPromo, Reconciliation: true, CreditsOut: 380, Net: -380, Entries: 1},
	}}
	svc := NewService(&fakeLedger{}, &fakeAccounts{}, nil, sum, nil, discard())

	report, err := svc.DailyReport(context.Background(), time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(120), report.TotalIn)
	assert.Zero(t, report.TotalOut)
	assert.Equal(t, int64(2), report.TotalEntries)
	assert.Equal(t, int64(1), report.RepairEntries)
	assert.Equal(t, int64(-380), report.RepairNet)
	assert.Len(t, report.Rows, 3)
}

type schedulerFixture struct {
	sched   *Scheduler
	ledger  *fakeLedger
	summary *fakeSummary
	expirer *fakeExpirer
	cleaner *fakeCleaner
	locks   *fakeLocker
	now     time.Time
}

func newSchedulerFixture(start time.Time) *schedulerFixture {
	f := &schedulerFixture{
		ledger:  &fakeLedger{},
		summary: &fakeSummary{},
		expirer: &fakeExpirer{},
		cleaner: &fakeCleaner{},
		locks:   &fakeLocker{held: map[string]bool{}},
		now:     start,
	}
	accounts := &fakeAccounts{withEntries: []uuid.UUID{uuid.New()}, withSub: []uuid.UUID{uuid.New()}}
	svc := NewService(f.ledger, accounts, f.expirer, f.summary, nil, discard())
	f.sched = NewScheduler(svc, f.locks, &fakeRuns{done: map[string]bool{}}, f.cleaner,
		SchedulerConfig{Tick: time.Minute, ReconcileInterval: time.Hour}, discard())
	f.sched.now = func() time.Time { return f.now }
	return f
}

func TestScheduler_ReconcileEveryInterval(t *testing.T) {
	f := newSchedulerFixture(time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()

	f.sched.tick(ctx)
	assert.Equal(t, 1, f.ledger.calls)
	assert.Equal(t, 1, f.cleaner.calls)

	f.now = f.now.Add(30 * time.Minute)
	f.sched.tick(ctx)
	assert.Equal(t, 1, f.ledger.calls)

	f.now = f.now.Add(30 * time.Minute)
	f.sched.tick(ctx)
	assert.Equal(t, 2, f.ledger.calls)
	assert.Equal(t, 2, f.cleaner.calls)
}

func TestScheduler_ReplicasShareReconcileSlot(t *testing.T) {
	f := newSchedulerFixture(time.Date(2026, 5, 4, 10, 5, 0, 0, time.UTC))
	ctx := context.Background()

	replica := NewScheduler(f.sched.svc, f.locks, f.sched.runs, f.cleaner,
		SchedulerConfig{Tick: time.Minute, ReconcileInterval: time.Hour}, discard())
	replica.now = func() time.Time { return f.now }

	f.sched.tick(ctx)
	f.now = f.now.Add(10 * time.Minute)
	replica.tick(ctx)
	assert.Equal(t, 1, f.ledger.calls)
	assert.Equal(t, 1, f.cleaner.calls)

	f.now = time.Date(2026, 5, 4, 11, 0, 30, 0, time.UTC)
	replica.tick(ctx)
	f.sched.tick(ctx)
	assert.Equal(t, 2, f.ledger.calls)
	assert.Equal(t, 2, f.cleaner.calls)
}

func TestScheduler_DailyReportOncePerDay(t *testing.T) {
	f := newSchedulerFixture(time.Date(2026, 5, 4, 0, 5, 0, 0, time.UTC))
	ctx := context.Background()

	f.sched.tick(ctx)
	f.now = f.now.Add(2 * time.Hour)
	f.sched.tick(ctx)
	assert.Equal(t, 1, f.summary.calls)
	assert.Equal(t, time.Date(2026, 5, 3, 0, 0, 0, 0, time.UTC), f.summary.from)

	f.now = f.now.Add(24 * time.Hour)
	f.sched.tick(ctx)
	assert.Equal(t, 2, f.summary.calls)
	assert.Equal(t, time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC), f.summary.from)
}

func TestScheduler_SubExpiryOnFirstDayOnce(t *testing.T) {
	f := newSchedulerFixture(time.Date(2026, 5, 31, 23, 0, 0, 0, time.UTC))
	ctx := context.Background()

	f.sched.tick(ctx)
	assert.Zero(t, f.expirer.calls)

	f.now = time.Date(2026, 6, 1, 0, 1, 0, 0, time.UTC)
	f.sched.tick(ctx)
	assert.Equal(t, 1, f.expirer.calls)

	f.now = f.now.Add(3 * time.Hour)
	f.sched.tick(ctx)
	assert.Equal(t, 1, f.expirer.calls)
}

func TestScheduler_SkipsLockedJobs(t *testing.T) {
	f := newSchedulerFixture(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	f.locks.held[JobReconcile] = true
	f.locks.held[JobSubExpiry] = true

	f.sched.tick(context.Background())
	assert.Zero(t, f.ledger.calls)
	assert.Zero(t, f.expirer.calls)
	assert.Equal(t, 1, f.summary.calls)
}

func TestScheduler_StartStopsOnCancel(t *testing.T) {
	f := newSchedulerFixture(time.Now().UTC())
	f.sched.cfg.Tick = 10 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		f.sched.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
