package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// JobRunRepository records which period a once-per-period job has completed,
// so restarts and other replicas do not repeat it.
type JobRunRepository struct {
	db *sql.DB
}

func NewJobRunRepository(db *sql.DB) *JobRunRepository {
	return &JobRunRepository{db: db}
}

func (r *JobRunRepository) HasRun(ctx context.Context, job, period string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM job_runs WHERE job = $1 AND period = $2)`, job, period,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("HasRun: %w", err)
	}
	return exists, nil
}

// MarkRun stores the outcome of a completed run. A second mark for the same
// period is ignored.
func (r *JobRunRepository) MarkRun(ctx context.Context, job, period string, startedAt time.Time, result any) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("MarkRun: marshal result: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO job_runs (job, period, result, started_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (job, period) DO NOTHING`,
		job, period, string(raw), startedAt,
	)
	if err != nil {
		return fmt.Errorf("MarkRun: %w", err)
	}
	return nil
}
