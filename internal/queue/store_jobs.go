package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const enqueueConflictRetries = 3

// Enqueue adds a queued job for videoID. When a queued or in-progress job for
// the same video already exists, nothing is inserted: the existing job is
// returned with created=false. Subscribers are notified only for new jobs.
func (s *Store) Enqueue(ctx context.Context, videoID, inputLocator string) (*Job, bool, error) {
	videoID = strings.TrimSpace(videoID)
	inputLocator = strings.TrimSpace(inputLocator)
	if err := ValidateVideoID(videoID); err != nil {
		return nil, false, err
	}
	if inputLocator == "" {
		return nil, false, fmt.Errorf("%w: input locator is required", ErrInvalidJob)
	}

	for attempt := 0; attempt < enqueueConflictRetries; attempt++ {
		now := formatTime(s.timestamp())
		id := uuid.NewString()
		res, err := s.execWithRetry(
			ctx,
			`INSERT OR IGNORE INTO encoding_jobs
                (id, video_id, input_locator, status, attempts, max_attempts, available_at, created_at, updated_at)
             VALUES (?, ?, ?, ?, 0, ?, ?, ?, ?)`,
			id, videoID, inputLocator, StatusQueued, s.maxAttempts, now, now, now,
		)
		if err != nil {
			return nil, false, fmt.Errorf("enqueue job: %w", err)
		}
		inserted, err := res.RowsAffected()
		if err != nil {
			return nil, false, fmt.Errorf("enqueue rows affected: %w", err)
		}
		if inserted > 0 {
			job, err := s.Get(ctx, id)
			if err != nil {
				return nil, false, err
			}
			s.notifyAdded()
			return job, true, nil
		}

		existing, err := s.ActiveForVideo(ctx, videoID)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, false, nil
		}
		// The active job resolved between the insert and the lookup; try again.
	}
	return nil, false, fmt.Errorf("enqueue job for video %s: active job kept changing", videoID)
}

// ValidateVideoID rejects ids that are empty or could escape a per-video
// directory: path separators, a leading dot, or surrounding whitespace.
func ValidateVideoID(videoID string) error {
	switch {
	case videoID == "":
		return fmt.Errorf("%w: video id is required", ErrInvalidJob)
	case strings.TrimSpace(videoID) != videoID:
		return fmt.Errorf("%w: video id %q has surrounding whitespace", ErrInvalidJob, videoID)
	case strings.ContainsAny(videoID, `/\`) || strings.HasPrefix(videoID, "."):
		return fmt.Errorf("%w: video id %q is not a valid path segment", ErrInvalidJob, videoID)
	}
	return nil
}

// ClaimNext atomically moves the oldest eligible queued job to in_progress,
// increments its attempts, and stamps a lease for owner. It returns nil when no
// job is eligible.
func (s *Store) ClaimNext(ctx context.Context, owner string, lease time.Duration) (*Job, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, errors.New("claim next: lease owner is required")
	}
	now := s.timestamp()
	query := `UPDATE encoding_jobs
        SET status = ?, attempts = attempts + 1, lease_owner = ?, lease_expires_at = ?, updated_at = ?
        WHERE id = (
            SELECT id FROM encoding_jobs
            WHERE status = ? AND available_at <= ?
            ORDER BY created_at, rowid
            LIMIT 1
        ) AND status = ?
        RETURNING ` + jobColumns

	var job *Job
	err := s.queryRowWithRetry(ctx, func(row *sql.Row) error {
		var scanErr error
		job, scanErr = scanJob(row)
		return scanErr
	}, query,
		StatusInProgress, owner, formatTime(now.Add(lease)), formatTime(now),
		StatusQueued, formatTime(now),
		StatusQueued,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim next job: %w", err)
	}
	return job, nil
}

// Complete marks an in-progress job held by owner completed. It reports
// false, without error, when the job is unknown, no longer in progress, or
// was reclaimed and claimed by another owner.
func (s *Store) Complete(ctx context.Context, id, owner string) (bool, error) {
	now := formatTime(s.timestamp())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE encoding_jobs
         SET status = ?, lease_owner = NULL, lease_expires_at = NULL, finished_at = ?, updated_at = ?
         WHERE id = ? AND status = ? AND lease_owner = ?`,
		StatusCompleted, now, now, id, StatusInProgress, owner,
	)
	if err != nil {
		return false, fmt.Errorf("complete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete rows affected: %w", err)
	}
	return affected > 0, nil
}

// Fail records errorMessage on an in-progress job. With allowRetry and
// attempts below the job's budget the job returns to the queue, keeping its
// attempts and original position, eligible again after the retry backoff.
// Otherwise it becomes terminally failed. Unknown or already resolved jobs are
// left untouched and reported with Applied=false.
func (s *Store) Fail(ctx context.Context, id, errorMessage string, allowRetry bool) (Resolution, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return Resolution{}, err
	}
	if current == nil || current.Status != StatusInProgress {
		return Resolution{}, nil
	}

	now := s.timestamp()
	next := StatusFailed
	availableAt := current.AvailableAt
	var finishedAt any = formatTime(now)
	if allowRetry && current.Attempts < current.MaxAttempts {
		next = StatusQueued
		availableAt = now.Add(s.retryDelay(current.Attempts))
		finishedAt = nil
	}

	res, err := s.execWithRetry(
		ctx,
		`UPDATE encoding_jobs
         SET status = ?, last_error = ?, lease_owner = NULL, lease_expires_at = NULL,
             available_at = ?, finished_at = ?, updated_at = ?
         WHERE id = ? AND status = ? AND attempts = ?`,
		next, nullableString(strings.TrimSpace(errorMessage)),
		formatTime(availableAt), finishedAt, formatTime(now),
		id, StatusInProgress, current.Attempts,
	)
	if err != nil {
		return Resolution{}, fmt.Errorf("fail job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Resolution{}, fmt.Errorf("fail rows affected: %w", err)
	}
	if affected == 0 {
		return Resolution{}, nil
	}
	resolution := Resolution{Applied: true, Status: next, Attempts: current.Attempts}
	if next == StatusQueued {
		resolution.RetryAt = availableAt
	}
	return resolution, nil
}

// HasAvailableJobs reports whether a queued job is eligible for claiming now.
func (s *Store) HasAvailableJobs(ctx context.Context) (bool, error) {
	var exists int
	err := s.queryRowWithRetry(ctx, func(row *sql.Row) error {
		return row.Scan(&exists)
	}, `SELECT EXISTS(SELECT 1 FROM encoding_jobs WHERE status = ? AND available_at <= ?)`,
		StatusQueued, formatTime(s.timestamp()))
	if err != nil {
		return false, fmt.Errorf("check available jobs: %w", err)
	}
	return exists == 1, nil
}

// ExtendLease pushes the lease expiry of an in-progress job held by owner.
// It reports false when the job is no longer held by owner.
func (s *Store) ExtendLease(ctx context.Context, id, owner string, lease time.Duration) (bool, error) {
	now := s.timestamp()
	res, err := s.execWithRetry(
		ctx,
		`UPDATE encoding_jobs SET lease_expires_at = ?, updated_at = ?
         WHERE id = ? AND status = ? AND lease_owner = ?`,
		formatTime(now.Add(lease)), formatTime(now), id, StatusInProgress, owner,
	)
	if err != nil {
		return false, fmt.Errorf("extend lease: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("extend lease rows affected: %w", err)
	}
	return affected > 0, nil
}

// retryDelay doubles the base delay for every attempt already spent, capped at
// the configured maximum.
func (s *Store) retryDelay(attempts int) time.Duration {
	if s.retryBaseDelay <= 0 || attempts <= 0 {
		return 0
	}
	delay := s.retryBaseDelay
	for i := 1; i < attempts; i++ {
		delay *= 2
		if s.retryMaxDelay > 0 && delay >= s.retryMaxDelay {
			return s.retryMaxDelay
		}
	}
	if s.retryMaxDelay > 0 && delay > s.retryMaxDelay {
		return s.retryMaxDelay
	}
	return delay
}
