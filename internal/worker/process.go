package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"townhall/internal/logging"
	"townhall/internal/metrics"
	"townhall/internal/queue"
	"townhall/internal/services"
	"townhall/internal/videos"
)

// errVideoResolved marks a job whose video record already reached READY or
// FAILED. Retrying cannot change that, so the job fails terminally.
var errVideoResolved = errors.New("video record is no longer pending")

// processJob runs one claimed job to resolution. The job context is detached
// from the scheduling context so Stop never interrupts a running encode.
func (w *Worker) processJob(parent context.Context, job *queue.Job) {
	ctx := services.WithJob(context.WithoutCancel(parent), services.JobScope{
		JobID:   job.ID,
		VideoID: job.VideoID,
		Attempt: job.Attempts,
	})
	ctx, cancel := context.WithCancel(ctx)

	w.inFlight.Add(1)
	w.metrics.SetInFlight(w.InFlight())
	w.setLastJob(job)

	var heartbeat sync.WaitGroup
	heartbeat.Add(1)
	go w.heartbeatLoop(ctx, &heartbeat, job.ID)

	defer func() {
		cancel()
		heartbeat.Wait()
		w.inFlight.Add(-1)
		w.metrics.SetInFlight(w.InFlight())
	}()

	logger := logging.WithContext(ctx, w.logger).With(logging.Int("max_attempts", job.MaxAttempts))
	logger.Info("encoding job started", logging.String("input_locator", job.InputLocator))
	start := time.Now()

	useEncoder := w.probeEncoder(ctx)
	path := metrics.PathEncoder
	if !useEncoder {
		path = metrics.PathFallback
	}
	if err := w.ensureVideoPending(ctx, job.VideoID); err != nil {
		w.failJob(ctx, logger, job, path, err, start)
		return
	}
	if !useEncoder {
		w.runFallback(ctx, logger, job, start)
		return
	}

	outputs, err := w.encoder.Encode(ctx, job.VideoID, job.InputLocator)
	if err != nil {
		w.failJob(ctx, logger, job, metrics.PathEncoder, err, start)
		return
	}
	if err := w.recordReady(ctx, job.VideoID, outputs, false); err != nil {
		w.failJob(ctx, logger, job, metrics.PathEncoder, fmt.Errorf("record encoded outputs: %w", err), start)
		return
	}
	w.completeJob(ctx, logger, job, metrics.PathEncoder, start)
	w.notify(ctx, func(ctx context.Context) error {
		return w.notifier.NotifyEncodingCompleted(ctx, job.VideoID, time.Since(start))
	})
}

// runFallback publishes the raw upload untranscoded. A fallback failure is a
// job failure; there is no further fallback.
func (w *Worker) runFallback(ctx context.Context, logger *slog.Logger, job *queue.Job, start time.Time) {
	logging.WarnWithContext(logger, "encoder unavailable; copying raw upload to serving storage", "encoder_fallback",
		logging.String(logging.FieldErrorHint, "check encoding.ffmpeg_binary and encoding.ffprobe_binary or run townhall deps"),
		logging.String(logging.FieldImpact, "video is published untranscoded and flagged degraded"),
	)
	if w.fallback == nil {
		w.failJob(ctx, logger, job, metrics.PathFallback, services.Wrap(services.ErrUnavailable, "worker", "fallback", "no fallback copier configured", nil), start)
		return
	}
	url, err := w.fallback.CopyRawToServing(ctx, job.VideoID, job.InputLocator)
	if err != nil {
		w.failJob(ctx, logger, job, metrics.PathFallback, err, start)
		return
	}
	if err := w.recordReady(ctx, job.VideoID, videos.Outputs{ProgressiveURL: url}, true); err != nil {
		w.failJob(ctx, logger, job, metrics.PathFallback, fmt.Errorf("record fallback output: %w", err), start)
		return
	}
	w.completeJob(ctx, logger, job, metrics.PathFallback, start)
	w.notify(ctx, func(ctx context.Context) error {
		return w.notifier.NotifyFallbackUsed(ctx, job.VideoID)
	})
}

// ensureVideoPending refuses jobs whose video already resolved, before any
// output is published over it. A missing record is created on resolution.
func (w *Worker) ensureVideoPending(ctx context.Context, videoID string) error {
	rec, err := w.videos.Get(ctx, videoID)
	if err != nil {
		return fmt.Errorf("load video record: %w", err)
	}
	if rec != nil && rec.EncodingStatus != videos.StatusPending {
		return fmt.Errorf("%w: video %s is %s", errVideoResolved, videoID, rec.EncodingStatus)
	}
	return nil
}

func (w *Worker) recordReady(ctx context.Context, videoID string, outputs videos.Outputs, degraded bool) error {
	applied, err := w.videos.MarkReady(ctx, videoID, outputs, degraded)
	if err != nil {
		return err
	}
	if !applied {
		return fmt.Errorf("%w: video %s", errVideoResolved, videoID)
	}
	return nil
}

func (w *Worker) completeJob(ctx context.Context, logger *slog.Logger, job *queue.Job, path string, start time.Time) {
	elapsed := time.Since(start)
	applied, err := w.store.Complete(ctx, job.ID, w.id)
	if err != nil {
		w.setLastError(err)
		logging.ErrorWithContext(logger, "failed to mark job completed", "queue_complete_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check queue database access; the lease will expire and the job will be retried"),
		)
		return
	}
	if !applied {
		logger.Debug("job was no longer held by this worker when completed", logging.String("path", path))
	}
	w.metrics.ObserveJob(path, metrics.OutcomeCompleted, elapsed)
	logger.Info("encoding job completed",
		logging.String("path", path),
		logging.Bool("degraded", path == metrics.PathFallback),
		logging.Duration("duration", elapsed),
	)
}

// failJob records err on the job. Retry-versus-terminal is the queue's
// decision unless permanent failure classification is enabled.
func (w *Worker) failJob(ctx context.Context, logger *slog.Logger, job *queue.Job, path string, err error, start time.Time) {
	elapsed := time.Since(start)
	w.setLastError(err)
	message := strings.TrimSpace(err.Error())
	allowRetry := !errors.Is(err, errVideoResolved) && !(w.classifyFailures && services.IsPermanent(err))

	resolution, ferr := w.store.Fail(ctx, job.ID, message, allowRetry)
	if ferr != nil {
		logging.ErrorWithContext(logger, "failed to record job failure", "queue_fail_failed",
			logging.Error(ferr),
			logging.String("job_error", message),
			logging.String(logging.FieldErrorHint, "check queue database access; the lease will expire and the job will be retried"),
		)
		return
	}
	if !resolution.Applied {
		logger.Debug("job was no longer in progress when failed", logging.String("job_error", message))
		return
	}

	if resolution.Requeued() {
		w.metrics.ObserveJob(path, metrics.OutcomeRequeued, elapsed)
		logging.WarnWithContext(logger, "encoding attempt failed; job requeued", "encoding_attempt_failed",
			logging.String("path", path),
			logging.Error(err),
			logging.String("error_kind", services.Kind(err)),
			logging.Duration("duration", elapsed),
			logging.Any("retry_at", resolution.RetryAt),
			logging.String(logging.FieldImpact, "job will be retried"),
		)
		return
	}

	w.metrics.ObserveJob(path, metrics.OutcomeFailed, elapsed)
	if _, verr := w.videos.MarkFailed(ctx, job.VideoID, message); verr != nil {
		logging.ErrorWithContext(logger, "failed to mark video failed", "video_record_failed",
			logging.Error(verr),
			logging.String(logging.FieldErrorHint, "check the videos database; the record stays PENDING"),
		)
	}
	logging.ErrorWithContext(logger, "encoding job failed", "encoding_failed",
		logging.String("path", path),
		logging.Error(err),
		logging.String("error_kind", services.Kind(err)),
		logging.Bool("retry_allowed", allowRetry),
		logging.Duration("duration", elapsed),
		logging.String(logging.FieldErrorHint, "inspect the upload, then run townhall queue retry "+job.ID),
	)
	w.notify(ctx, func(ctx context.Context) error {
		return w.notifier.NotifyJobFailed(ctx, job.VideoID, resolution.Attempts, err)
	})
}

func (w *Worker) notify(ctx context.Context, send func(context.Context) error) {
	if err := send(ctx); err != nil {
		w.logger.Warn("notification failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "notification_failed"),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
		)
	}
}
