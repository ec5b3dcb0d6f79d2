package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// JobLock is a session-level Postgres advisory lock held on a dedicated
// connection, so only one replica runs a scheduled job at a time.
type JobLock struct {
	conn *sql.Conn
	name string
}

// TryJobLock returns (nil, nil) when another session holds the lock.
func TryJobLock(ctx context.Context, db *sql.DB, name string) (*JobLock, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("TryJobLock: conn: %w", err)
	}

	var acquired bool
	if err := conn.QueryRowContext(ctx,
		`SELECT pg_try_advisory_lock(hashtext($1))`, name,
	).Scan(&acquired); err != nil {
		conn.Close()
		return nil, fmt.Errorf("TryJobLock: %w", err)
	}
	if !acquired {
		conn.Close()
		return nil, nil
	}
	return &JobLock{conn: conn, name: name}, nil
}

func (l *JobLock) Release(ctx context.Context) error {
	defer l.conn.Close()
	if _, err := l.conn.ExecContext(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock(hashtext($1))`, l.name); err != nil {
		return fmt.Errorf("Release: %w", err)
	}
	return nil
}
