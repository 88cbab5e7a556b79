package api

import (
	"context"

	"townhall/internal/queue"
)

// QueueActionService captures the queue operations used by per-job retry.
type QueueActionService interface {
	Describe(ctx context.Context, id string) (*Job, error)
	Retry(ctx context.Context, ids []string) (int64, error)
}

type RetryJobOutcome string

const (
	RetryJobUpdated   RetryJobOutcome = "retried"
	RetryJobNotFound  RetryJobOutcome = "not_found"
	RetryJobNotFailed RetryJobOutcome = "not_failed"
	RetryJobConflict  RetryJobOutcome = "video_busy"
)

type RetryJobResult struct {
	ID      string          `json:"id"`
	Outcome RetryJobOutcome `json:"outcome"`
}

type RetryJobsResult struct {
	UpdatedCount int64            `json:"updatedCount"`
	Jobs         []RetryJobResult `json:"jobs"`
}

// RetryFailedJobsByID validates ids and retries only failed jobs. A failed job
// whose video already has another active job is reported as video_busy.
func RetryFailedJobsByID(ctx context.Context, service QueueActionService, ids []string) (RetryJobsResult, error) {
	result := RetryJobsResult{Jobs: make([]RetryJobResult, 0, len(ids))}
	for _, id := range ids {
		job, err := service.Describe(ctx, id)
		if err != nil {
			return RetryJobsResult{}, err
		}
		if job == nil {
			result.Jobs = append(result.Jobs, RetryJobResult{ID: id, Outcome: RetryJobNotFound})
			continue
		}
		status, err := queue.ParseStatus(job.Status)
		if err != nil || status != queue.StatusFailed {
			result.Jobs = append(result.Jobs, RetryJobResult{ID: id, Outcome: RetryJobNotFailed})
			continue
		}
		updated, err := service.Retry(ctx, []string{id})
		if err != nil {
			return RetryJobsResult{}, err
		}
		if updated > 0 {
			result.UpdatedCount += updated
			result.Jobs = append(result.Jobs, RetryJobResult{ID: id, Outcome: RetryJobUpdated})
			continue
		}
		result.Jobs = append(result.Jobs, RetryJobResult{ID: id, Outcome: RetryJobConflict})
	}
	return result, nil
}
