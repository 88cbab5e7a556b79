package worker

import (
	"context"
	"errors"
	"time"

	"townhall/internal/logging"
	"townhall/internal/queue"
)

// schedule is the single scheduling loop. The poll ticker guarantees forward
// progress; wake notifications only shorten the wait.
func (w *Worker) schedule(ctx context.Context, wake <-chan struct{}) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.drain(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-wake:
			if !ok {
				wake = nil
				continue
			}
			w.drain(ctx)
		case <-ticker.C:
			w.reclaimExpired(ctx)
			w.drain(ctx)
		}
	}
}

// drain processes jobs one at a time until none are eligible, the worker is
// stopping, or the queue reports an error.
func (w *Worker) drain(ctx context.Context) {
	for {
		if w.stopping.Load() || ctx.Err() != nil {
			return
		}

		job, err := w.store.ClaimNext(ctx, w.id, w.lease)
		if err != nil {
			w.handleClaimError(ctx, err)
			return
		}
		if job == nil {
			return
		}

		w.processJob(ctx, job)

		if w.stopping.Load() || ctx.Err() != nil {
			return
		}
		more, err := w.store.HasAvailableJobs(ctx)
		if err != nil {
			if ctx.Err() == nil {
				w.logger.Warn("failed to check for more queued jobs",
					logging.Error(err),
					logging.String(logging.FieldEventType, "queue_check_failed"),
					logging.String(logging.FieldErrorHint, "check queue database access"),
				)
			}
			return
		}
		if !more {
			return
		}
	}
}

func (w *Worker) handleClaimError(ctx context.Context, err error) {
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return
	}
	w.setLastError(err)
	logging.ErrorWithContext(w.logger, "failed to claim next job", "queue_claim_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check queue database access"),
	)
	select {
	case <-ctx.Done():
	case <-time.After(w.errorRetryInterval):
	}
}

// reclaimExpired returns jobs whose lease ran out to the queue. Jobs that
// exhaust their budget this way are mirrored into the video record.
func (w *Worker) reclaimExpired(ctx context.Context) {
	requeued, failed, err := w.store.ReclaimExpired(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Warn("reclaim expired leases failed; stuck jobs may remain",
				logging.Error(err),
				logging.String(logging.FieldEventType, "lease_reclaim_failed"),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
		}
		return
	}
	if requeued == 0 && len(failed) == 0 {
		return
	}
	w.logger.Info("reclaimed expired leases",
		logging.Int64("requeued", requeued),
		logging.Int("failed", len(failed)),
	)
	w.mirrorExpiredFailures(ctx, failed)
}

// mirrorExpiredFailures marks the videos of jobs that just failed through
// lease expiry FAILED.
func (w *Worker) mirrorExpiredFailures(ctx context.Context, jobs []*queue.Job) {
	for _, job := range jobs {
		if _, err := w.videos.MarkFailed(ctx, job.VideoID, job.LastError); err != nil {
			w.logger.Warn("mark video failed after lease expiry",
				logging.VideoID(job.VideoID),
				logging.Error(err),
			)
		}
	}
}

// maintain logs queue statistics and purges expired terminal jobs.
func (w *Worker) maintain(ctx context.Context) {
	defer w.wg.Done()

	stats := time.NewTicker(w.statsInterval)
	defer stats.Stop()
	cleanup := time.NewTicker(w.cleanupInterval)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stats.C:
			w.logStats(ctx)
		case <-cleanup.C:
			w.cleanup(ctx)
		}
	}
}

func (w *Worker) logStats(ctx context.Context) {
	stats, err := w.store.Stats(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Warn("failed to read queue stats", logging.Error(err))
		}
		return
	}
	w.metrics.SetQueueStats(stats)
	w.logger.Info("queue stats",
		logging.Int("queued", stats.Queued),
		logging.Int("in_progress", stats.InProgress),
		logging.Int("completed", stats.Completed),
		logging.Int("failed", stats.Failed),
		logging.Int("total", stats.Total),
		logging.Int("worker_in_flight", w.InFlight()),
	)
}

func (w *Worker) cleanup(ctx context.Context) {
	removed, err := w.store.Cleanup(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Warn("queue cleanup failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_cleanup_failed"),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
		}
		return
	}
	if removed > 0 {
		w.logger.Info("purged expired jobs", logging.Int64("removed", removed))
	}
}
