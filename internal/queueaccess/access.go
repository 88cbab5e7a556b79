// Package queueaccess gives the CLI one queue interface whether the daemon
// API is reachable or only the local databases are.
package queueaccess

import (
	"context"
	"strings"

	"townhall/internal/api"
	"townhall/internal/queue"
	"townhall/internal/videos"
)

// Access provides queue operations regardless of HTTP or direct store backing.
type Access interface {
	Stats(ctx context.Context) (api.QueueStats, error)
	List(ctx context.Context, statuses []string) ([]api.Job, error)
	Describe(ctx context.Context, id string) (*api.Job, error)
	Enqueue(ctx context.Context, videoID, inputLocator string) (api.EnqueueResponse, error)
	Retry(ctx context.Context, ids []string) (api.RetryJobsResult, error)
	Remove(ctx context.Context, ids []string) (int64, error)
	Video(ctx context.Context, videoID string) (*api.Video, error)
	Remote() bool
}

// NewHTTPAccess returns an Access backed by the daemon API.
func NewHTTPAccess(client *api.Client) Access {
	return &httpAccess{client: client}
}

// NewStoreAccess returns an Access backed by direct DB access.
func NewStoreAccess(store *queue.Store, videoStore *videos.Store) Access {
	return &storeAccess{videos: videoStore, service: api.NewQueueService(store, videoStore, nil)}
}

type httpAccess struct {
	client *api.Client
}

func (a *httpAccess) Remote() bool { return true }

func (a *httpAccess) Stats(ctx context.Context) (api.QueueStats, error) {
	status, err := a.client.Status(ctx)
	if err != nil {
		return api.QueueStats{}, err
	}
	return status.Worker.Queue, nil
}

func (a *httpAccess) List(ctx context.Context, statuses []string) ([]api.Job, error) {
	return a.client.List(ctx, statuses)
}

func (a *httpAccess) Describe(ctx context.Context, id string) (*api.Job, error) {
	return a.client.Describe(ctx, id)
}

func (a *httpAccess) Enqueue(ctx context.Context, videoID, inputLocator string) (api.EnqueueResponse, error) {
	return a.client.Enqueue(ctx, videoID, inputLocator)
}

func (a *httpAccess) Retry(ctx context.Context, ids []string) (api.RetryJobsResult, error) {
	return a.client.Retry(ctx, ids)
}

func (a *httpAccess) Remove(ctx context.Context, ids []string) (int64, error) {
	var count int64
	for _, id := range ids {
		removed, err := a.client.Remove(ctx, id)
		if err != nil {
			return count, err
		}
		count += removed
	}
	return count, nil
}

func (a *httpAccess) Video(ctx context.Context, videoID string) (*api.Video, error) {
	return a.client.Video(ctx, videoID)
}

type storeAccess struct {
	videos  *videos.Store
	service *api.QueueService
}

func (a *storeAccess) Remote() bool { return false }

func (a *storeAccess) Stats(ctx context.Context) (api.QueueStats, error) {
	return a.service.Stats(ctx)
}

func (a *storeAccess) List(ctx context.Context, statuses []string) ([]api.Job, error) {
	filters, err := ParseStatuses(statuses)
	if err != nil {
		return nil, err
	}
	return a.service.List(ctx, filters...)
}

func (a *storeAccess) Describe(ctx context.Context, id string) (*api.Job, error) {
	return a.service.Describe(ctx, id)
}

func (a *storeAccess) Enqueue(ctx context.Context, videoID, inputLocator string) (api.EnqueueResponse, error) {
	job, created, err := a.service.Enqueue(ctx, videoID, inputLocator)
	if err != nil {
		return api.EnqueueResponse{}, err
	}
	return api.EnqueueResponse{Job: job, Created: created}, nil
}

func (a *storeAccess) Retry(ctx context.Context, ids []string) (api.RetryJobsResult, error) {
	if len(ids) == 0 {
		failed, err := a.service.FailedIDs(ctx)
		if err != nil {
			return api.RetryJobsResult{}, err
		}
		ids = failed
	}
	return api.RetryFailedJobsByID(ctx, a.service, ids)
}

func (a *storeAccess) Remove(ctx context.Context, ids []string) (int64, error) {
	return a.service.Remove(ctx, ids)
}

func (a *storeAccess) Video(ctx context.Context, videoID string) (*api.Video, error) {
	record, err := a.videos.Get(ctx, strings.TrimSpace(videoID))
	if err != nil || record == nil {
		return nil, err
	}
	video := api.FromVideo(record)
	return &video, nil
}

// ParseStatuses validates status filters, accepting comma-separated values.
func ParseStatuses(values []string) ([]queue.Status, error) {
	var statuses []queue.Status
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			status, err := queue.ParseStatus(part)
			if err != nil {
				return nil, err
			}
			statuses = append(statuses, status)
		}
	}
	return statuses, nil
}
