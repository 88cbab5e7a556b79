package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"townhall/internal/metrics"
	"townhall/internal/queue"
	"townhall/internal/videos"
)

// ErrVideoEncoded is returned when enqueueing a video whose record is already
// READY. A published video is never encoded over.
var ErrVideoEncoded = errors.New("video already encoded")

// RemovedReason is recorded on the video of a queued job an operator removed.
const RemovedReason = "removed"

// QueueStore abstracts the queue operations the API exposes.
type QueueStore interface {
	Enqueue(ctx context.Context, videoID, inputLocator string) (*queue.Job, bool, error)
	Get(ctx context.Context, id string) (*queue.Job, error)
	List(ctx context.Context, statuses ...queue.Status) ([]*queue.Job, error)
	Stats(ctx context.Context) (queue.Stats, error)
	RetryFailed(ctx context.Context, ids ...string) (int64, error)
	Remove(ctx context.Context, ids ...string) (int64, error)
}

// VideoRegistry is the part of the video record store enqueue, retry, and
// remove touch.
type VideoRegistry interface {
	Get(ctx context.Context, videoID string) (*videos.Record, error)
	EnsurePending(ctx context.Context, videoID string) error
	Reset(ctx context.Context, videoID string) (bool, error)
	MarkFailed(ctx context.Context, videoID, reason string) (bool, error)
}

// QueueService exposes queue operations returning API DTOs.
type QueueService struct {
	store   QueueStore
	videos  VideoRegistry
	metrics *metrics.Metrics
}

// NewQueueService constructs a QueueService. videos and m may be nil.
func NewQueueService(store QueueStore, videos VideoRegistry, m *metrics.Metrics) *QueueService {
	if store == nil {
		return nil
	}
	return &QueueService{store: store, videos: videos, metrics: m}
}

// Enqueue registers a PENDING video record and queues an encoding job for it.
// When the video already has an active job that job is returned with
// created=false. A FAILED video goes back to PENDING; a READY video is refused
// with ErrVideoEncoded.
func (s *QueueService) Enqueue(ctx context.Context, videoID, inputLocator string) (Job, bool, error) {
	if s == nil || s.store == nil {
		return Job{}, false, errors.New("queue store unavailable")
	}
	videoID = strings.TrimSpace(videoID)
	inputLocator = strings.TrimSpace(inputLocator)
	if videoID == "" || inputLocator == "" {
		return Job{}, false, fmt.Errorf("%w: video id and input locator are required", queue.ErrInvalidJob)
	}
	if err := queue.ValidateVideoID(videoID); err != nil {
		return Job{}, false, err
	}
	if s.videos != nil {
		if err := s.registerVideo(ctx, videoID); err != nil {
			return Job{}, false, err
		}
	}
	job, created, err := s.store.Enqueue(ctx, videoID, inputLocator)
	if err != nil {
		return Job{}, false, err
	}
	s.metrics.ObserveEnqueue(created)
	return FromJob(job), created, nil
}

func (s *QueueService) registerVideo(ctx context.Context, videoID string) error {
	rec, err := s.videos.Get(ctx, videoID)
	if err != nil {
		return fmt.Errorf("load video record: %w", err)
	}
	if rec != nil {
		switch rec.EncodingStatus {
		case videos.StatusReady:
			return fmt.Errorf("%w: %s", ErrVideoEncoded, videoID)
		case videos.StatusFailed:
			if _, err := s.videos.Reset(ctx, videoID); err != nil {
				return fmt.Errorf("reset video record: %w", err)
			}
			return nil
		}
	}
	if err := s.videos.EnsurePending(ctx, videoID); err != nil {
		return fmt.Errorf("register video: %w", err)
	}
	return nil
}

// List returns jobs filtered by status.
func (s *QueueService) List(ctx context.Context, statuses ...queue.Status) ([]Job, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	jobs, err := s.store.List(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	return FromJobs(jobs), nil
}

// Stats returns the current queue counts.
func (s *QueueService) Stats(ctx context.Context) (QueueStats, error) {
	if s == nil || s.store == nil {
		return QueueStats{}, nil
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return QueueStats{}, err
	}
	return FromStats(stats), nil
}

// Describe fetches a single job.
func (s *QueueService) Describe(ctx context.Context, id string) (*Job, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	job, err := s.store.Get(ctx, strings.TrimSpace(id))
	if err != nil || job == nil {
		return nil, err
	}
	dto := FromJob(job)
	return &dto, nil
}

// Retry requeues one failed job with a fresh budget and moves its video record
// back to PENDING.
func (s *QueueService) Retry(ctx context.Context, ids []string) (int64, error) {
	if s == nil || s.store == nil {
		return 0, nil
	}
	if len(ids) != 1 {
		return 0, errors.New("retry expects exactly one job id")
	}
	job, err := s.store.Get(ctx, ids[0])
	if err != nil || job == nil {
		return 0, err
	}
	updated, err := s.store.RetryFailed(ctx, job.ID)
	if err != nil || updated == 0 {
		return updated, err
	}
	if s.videos != nil {
		if _, err := s.videos.Reset(ctx, job.VideoID); err != nil {
			return updated, fmt.Errorf("reset video record: %w", err)
		}
	}
	return updated, nil
}

// FailedIDs returns the ids of every failed job.
func (s *QueueService) FailedIDs(ctx context.Context) ([]string, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	jobs, err := s.store.List(ctx, queue.StatusFailed)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(jobs))
	for _, job := range jobs {
		ids = append(ids, job.ID)
	}
	return ids, nil
}

// Remove deletes jobs that are not in progress. The video of a removed queued
// job will never be resolved by the worker, so its record is marked FAILED.
func (s *QueueService) Remove(ctx context.Context, ids []string) (int64, error) {
	if s == nil || s.store == nil {
		return 0, nil
	}
	var total int64
	for _, id := range ids {
		job, err := s.store.Get(ctx, strings.TrimSpace(id))
		if err != nil {
			return total, err
		}
		if job == nil {
			continue
		}
		removed, err := s.store.Remove(ctx, job.ID)
		if err != nil {
			return total, err
		}
		total += removed
		if removed == 0 || job.Status != queue.StatusQueued || s.videos == nil {
			continue
		}
		if _, err := s.videos.MarkFailed(ctx, job.VideoID, RemovedReason); err != nil {
			return total, fmt.Errorf("mark removed video failed: %w", err)
		}
	}
	return total, nil
}
