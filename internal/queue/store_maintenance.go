package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(1) FROM encoding_jobs GROUP BY status`)
	if err != nil {
		return Stats{}, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	var stats Stats
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return Stats{}, err
		}
		switch status {
		case StatusQueued:
			stats.Queued = count
		case StatusInProgress:
			stats.InProgress = count
		case StatusCompleted:
			stats.Completed = count
		case StatusFailed:
			stats.Failed = count
		}
		stats.Total += count
	}
	return stats, rows.Err()
}

// Cleanup purges completed and failed jobs that finished longer ago than the
// retention window. Queued and in-progress jobs are never touched.
func (s *Store) Cleanup(ctx context.Context) (int64, error) {
	cutoff := s.timestamp().Add(-s.retention)
	res, err := s.execWithRetry(
		ctx,
		`DELETE FROM encoding_jobs WHERE status IN (?, ?) AND finished_at IS NOT NULL AND finished_at < ?`,
		StatusCompleted, StatusFailed, formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("cleanup jobs: %w", err)
	}
	return res.RowsAffected()
}

// ReclaimExpired releases in-progress jobs whose lease ran out. Jobs with
// attempts left return to the queue; the rest become terminally failed so they
// are never claimed again and are returned so callers can mirror the outcome.
func (s *Store) ReclaimExpired(ctx context.Context) (requeued int64, failed []*Job, err error) {
	now := formatTime(s.timestamp())
	failed, err = s.queryJobsWithRetry(
		ctx,
		`UPDATE encoding_jobs
         SET status = ?, last_error = ?, lease_owner = NULL, lease_expires_at = NULL, finished_at = ?, updated_at = ?
         WHERE status = ? AND lease_expires_at IS NOT NULL AND lease_expires_at < ? AND attempts >= max_attempts
         RETURNING `+jobColumns,
		StatusFailed, LeaseExpiredReason, now, now,
		StatusInProgress, now,
	)
	if err != nil {
		return 0, nil, fmt.Errorf("fail expired jobs: %w", err)
	}

	res, err := s.execWithRetry(
		ctx,
		`UPDATE encoding_jobs
         SET status = ?, last_error = ?, lease_owner = NULL, lease_expires_at = NULL, available_at = ?, updated_at = ?
         WHERE status = ? AND lease_expires_at IS NOT NULL AND lease_expires_at < ?`,
		StatusQueued, LeaseExpiredReason, now, now,
		StatusInProgress, now,
	)
	if err != nil {
		return 0, failed, fmt.Errorf("requeue expired jobs: %w", err)
	}
	if requeued, err = res.RowsAffected(); err != nil {
		return 0, failed, err
	}
	return requeued, failed, nil
}

// RetryFailed moves failed jobs back to the queue with a fresh retry budget.
// With no ids every failed job is retried. A failed job whose video already has
// another active job is skipped.
func (s *Store) RetryFailed(ctx context.Context, ids ...string) (int64, error) {
	now := formatTime(s.timestamp())
	query := `UPDATE OR IGNORE encoding_jobs
        SET status = ?, attempts = 0, last_error = NULL, available_at = ?, finished_at = NULL, updated_at = ?
        WHERE status = ?`
	args := []any{StatusQueued, now, now, StatusFailed}
	if len(ids) > 0 {
		query += ` AND id IN (` + makePlaceholders(len(ids)) + `)`
		args = append(args, stringArgs(ids)...)
	}
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry failed jobs: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected > 0 {
		s.notifyAdded()
	}
	return affected, nil
}

// Remove deletes the given jobs unless they are in progress.
func (s *Store) Remove(ctx context.Context, ids ...string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := append(stringArgs(ids), StatusInProgress)
	res, err := s.execWithRetry(
		ctx,
		`DELETE FROM encoding_jobs WHERE id IN (`+makePlaceholders(len(ids))+`) AND status != ?`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("remove jobs: %w", err)
	}
	return res.RowsAffected()
}

// ClearTerminal deletes every completed and failed job regardless of age.
func (s *Store) ClearTerminal(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM encoding_jobs WHERE status IN (?, ?)`, StatusCompleted, StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("clear terminal jobs: %w", err)
	}
	return res.RowsAffected()
}

// CheckHealth returns diagnostic information about the queue database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}
	if s.path == "" {
		return health, errors.New("queue database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return health, nil
		}
		return health, fmt.Errorf("stat queue database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("queue database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	connCtx, cancel := context.WithTimeout(ensureContext(ctx), 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping queue database: %w", err)
	}
	health.DatabaseReadable = true

	if err := s.db.QueryRowContext(connCtx, "PRAGMA user_version").Scan(&health.SchemaVersion); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("read schema version: %w", err)
	}

	rows, err := s.db.QueryContext(connCtx, "SELECT name FROM pragma_table_info('encoding_jobs')")
	if err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("table info: %w", err)
	}
	defer rows.Close()
	present := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("scan table info: %w", err)
		}
		present[name] = struct{}{}
		health.ColumnsPresent = append(health.ColumnsPresent, name)
	}
	if err := rows.Err(); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("iterate table info: %w", err)
	}
	health.TableExists = len(present) > 0
	for _, col := range jobTableColumns {
		if _, ok := present[col]; !ok {
			health.MissingColumns = append(health.MissingColumns, col)
		}
	}

	if health.TableExists {
		if err := s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM encoding_jobs").Scan(&health.TotalJobs); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count jobs: %w", err)
		}
	}

	var integrity string
	if err := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&integrity); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrity, "ok")
	return health, nil
}
