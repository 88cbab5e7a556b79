package api_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"townhall/internal/api"
	"townhall/internal/queue"
	"townhall/internal/testsupport"
	"townhall/internal/videos"
)

func newService(t *testing.T) (*api.QueueService, *queue.Store, *videos.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithMaxAttempts(1))
	videoStore := testsupport.MustOpenVideos(t, cfg)
	store := testsupport.MustOpenStore(t, cfg)
	return api.NewQueueService(store, videoStore, nil), store, videoStore
}

func TestEnqueueRegistersPendingVideo(t *testing.T) {
	svc, _, videoStore := newService(t)
	ctx := context.Background()

	job, created, err := svc.Enqueue(ctx, " video-1 ", "uploads/a.mp4")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if !created || job.VideoID != "video-1" || job.Status != string(queue.StatusQueued) {
		t.Fatalf("unexpected enqueue result created=%v job=%+v", created, job)
	}
	rec, err := videoStore.Get(ctx, "video-1")
	if err != nil || rec == nil || rec.EncodingStatus != videos.StatusPending {
		t.Fatalf("expected PENDING record, got %+v err=%v", rec, err)
	}

	again, created, err := svc.Enqueue(ctx, "video-1", "uploads/b.mp4")
	if err != nil {
		t.Fatalf("second Enqueue: %v", err)
	}
	if created || again.ID != job.ID {
		t.Fatalf("duplicate enqueue should return the active job, got created=%v id=%s", created, again.ID)
	}
}

func TestEnqueueRejectsBlankFields(t *testing.T) {
	svc, _, _ := newService(t)
	if _, _, err := svc.Enqueue(context.Background(), "", "uploads/a.mp4"); !errors.Is(err, queue.ErrInvalidJob) {
		t.Fatalf("expected ErrInvalidJob, got %v", err)
	}
}

func TestRetryResetsVideoRecord(t *testing.T) {
	svc, store, videoStore := newService(t)
	ctx := context.Background()
	job, _, err := svc.Enqueue(ctx, "video-2", "uploads/a.mp4")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := store.ClaimNext(ctx, "test", time.Minute); err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if _, err := store.Fail(ctx, job.ID, "boom", true); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if _, err := videoStore.MarkFailed(ctx, "video-2", "boom"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	result, err := api.RetryFailedJobsByID(ctx, svc, []string{job.ID, "missing"})
	if err != nil {
		t.Fatalf("RetryFailedJobsByID: %v", err)
	}
	if result.UpdatedCount != 1 {
		t.Fatalf("expected one retried job, got %+v", result)
	}
	if result.Jobs[0].Outcome != api.RetryJobUpdated || result.Jobs[1].Outcome != api.RetryJobNotFound {
		t.Fatalf("unexpected outcomes %+v", result.Jobs)
	}
	rec, _ := videoStore.Get(ctx, "video-2")
	if rec.EncodingStatus != videos.StatusPending {
		t.Fatalf("expected record reset to PENDING, got %s", rec.EncodingStatus)
	}
	refreshed, _ := svc.Describe(ctx, job.ID)
	if refreshed.Status != string(queue.StatusQueued) || refreshed.Attempts != 0 {
		t.Fatalf("expected requeued job with fresh budget, got %+v", refreshed)
	}
}

func TestEnqueueReopensFailedVideoAndRefusesReady(t *testing.T) {
	svc, _, videoStore := newService(t)
	ctx := context.Background()

	if _, err := videoStore.MarkFailed(ctx, "video-f", "boom"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if _, created, err := svc.Enqueue(ctx, "video-f", "uploads/f.mp4"); err != nil || !created {
		t.Fatalf("Enqueue failed video: created=%v err=%v", created, err)
	}
	rec, _ := videoStore.Get(ctx, "video-f")
	if rec.EncodingStatus != videos.StatusPending || rec.FailureReason != "" {
		t.Fatalf("expected FAILED record reopened as PENDING, got %+v", rec)
	}

	if _, err := videoStore.MarkReady(ctx, "video-r", videos.Outputs{ProgressiveURL: "/media/video-r/progressive.mp4"}, false); err != nil {
		t.Fatalf("MarkReady: %v", err)
	}
	if _, _, err := svc.Enqueue(ctx, "video-r", "uploads/r.mp4"); !errors.Is(err, api.ErrVideoEncoded) {
		t.Fatalf("expected ErrVideoEncoded, got %v", err)
	}
	if jobs, _ := svc.List(ctx); len(jobs) != 1 {
		t.Fatalf("refused enqueue must not create a job, got %d jobs", len(jobs))
	}
}

func TestEnqueueRejectsPathLikeVideoIDs(t *testing.T) {
	svc, _, videoStore := newService(t)
	ctx := context.Background()
	for _, id := range []string{"../etc", "a/b", ".cache"} {
		if _, _, err := svc.Enqueue(ctx, id, "uploads/a.mp4"); !errors.Is(err, queue.ErrInvalidJob) {
			t.Fatalf("Enqueue(%q): expected ErrInvalidJob, got %v", id, err)
		}
		if rec, _ := videoStore.Get(ctx, id); rec != nil {
			t.Fatalf("rejected id %q must not register a video", id)
		}
	}
}

func TestRemoveQueuedJobFailsVideo(t *testing.T) {
	svc, store, videoStore := newService(t)
	ctx := context.Background()
	running, _, err := svc.Enqueue(ctx, "video-q", "uploads/q.mp4")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waiting, _, err := svc.Enqueue(ctx, "video-a", "uploads/a.mp4")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if claimed, err := store.ClaimNext(ctx, "test", time.Minute); err != nil || claimed.ID != running.ID {
		t.Fatalf("ClaimNext: job=%+v err=%v", claimed, err)
	}

	removed, err := svc.Remove(ctx, []string{running.ID, waiting.ID, "missing"})
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected only the queued job removed, got %d", removed)
	}
	if rec, _ := videoStore.Get(ctx, "video-a"); rec.EncodingStatus != videos.StatusFailed || rec.FailureReason != api.RemovedReason {
		t.Fatalf("expected removed job's video FAILED, got %+v", rec)
	}
	if rec, _ := videoStore.Get(ctx, "video-q"); rec.EncodingStatus != videos.StatusPending {
		t.Fatalf("in-progress job's video must stay PENDING, got %+v", rec)
	}
}
