package videos_test

import (
	"context"
	"errors"
	"testing"

	"townhall/internal/testsupport"
	"townhall/internal/videos"
)

func TestMarkReadyMovesPendingVideo(t *testing.T) {
	store := testsupport.MustOpenVideos(t, testsupport.NewConfig(t))
	ctx := context.Background()

	if err := store.EnsurePending(ctx, "video-1"); err != nil {
		t.Fatalf("EnsurePending: %v", err)
	}
	rec, err := store.Get(ctx, "video-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec == nil || rec.EncodingStatus != videos.StatusPending || rec.EncodingCompletedAt != nil {
		t.Fatalf("unexpected pending record: %+v", rec)
	}

	outputs := videos.Outputs{
		AdaptiveManifestURL: "/media/video-1/hls/master.m3u8",
		ProgressiveURL:      "/media/video-1/progressive.mp4",
		ThumbnailURL:        "/media/video-1/thumbnail.jpg",
	}
	applied, err := store.MarkReady(ctx, "video-1", outputs, false)
	if err != nil || !applied {
		t.Fatalf("MarkReady: applied=%v err=%v", applied, err)
	}

	rec, err = store.Get(ctx, "video-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.EncodingStatus != videos.StatusReady || rec.Outputs != outputs || rec.Degraded {
		t.Fatalf("unexpected ready record: %+v", rec)
	}
	if rec.EncodingCompletedAt == nil {
		t.Fatal("expected completion timestamp")
	}
}

func TestMarkReadyCreatesMissingRecord(t *testing.T) {
	store := testsupport.MustOpenVideos(t, testsupport.NewConfig(t))
	ctx := context.Background()

	applied, err := store.MarkReady(ctx, "video-2", videos.Outputs{ProgressiveURL: "/media/video-2/original.mov"}, true)
	if err != nil || !applied {
		t.Fatalf("MarkReady: applied=%v err=%v", applied, err)
	}
	rec, err := store.Get(ctx, "video-2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec == nil || !rec.Degraded || rec.AdaptiveManifestURL != "" || rec.ProgressiveURL != "/media/video-2/original.mov" {
		t.Fatalf("unexpected degraded record: %+v", rec)
	}
}

func TestTerminalStatusIsMonotonic(t *testing.T) {
	store := testsupport.MustOpenVideos(t, testsupport.NewConfig(t))
	ctx := context.Background()

	if applied, err := store.MarkFailed(ctx, "video-3", "encoder crashed"); err != nil || !applied {
		t.Fatalf("MarkFailed: applied=%v err=%v", applied, err)
	}
	if applied, err := store.MarkReady(ctx, "video-3", videos.Outputs{ProgressiveURL: "x"}, false); err != nil || applied {
		t.Fatalf("FAILED video must not become READY: applied=%v err=%v", applied, err)
	}
	if applied, err := store.MarkFailed(ctx, "video-3", "again"); err != nil || applied {
		t.Fatalf("second MarkFailed should be a no-op: applied=%v err=%v", applied, err)
	}
	rec, _ := store.Get(ctx, "video-3")
	if rec.EncodingStatus != videos.StatusFailed || rec.FailureReason != "encoder crashed" || rec.ProgressiveURL != "" {
		t.Fatalf("record changed after terminal status: %+v", rec)
	}

	if err := store.EnsurePending(ctx, "video-3"); err != nil {
		t.Fatalf("EnsurePending: %v", err)
	}
	rec, _ = store.Get(ctx, "video-3")
	if rec.EncodingStatus != videos.StatusFailed {
		t.Fatalf("EnsurePending must not reset an existing record: %+v", rec)
	}
}

func TestResetAllowsRetryOfFailedVideo(t *testing.T) {
	store := testsupport.MustOpenVideos(t, testsupport.NewConfig(t))
	ctx := context.Background()

	if _, err := store.MarkFailed(ctx, "video-4", "boom"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if reset, err := store.Reset(ctx, "video-4"); err != nil || !reset {
		t.Fatalf("Reset: reset=%v err=%v", reset, err)
	}
	if applied, err := store.MarkReady(ctx, "video-4", videos.Outputs{ProgressiveURL: "p"}, false); err != nil || !applied {
		t.Fatalf("MarkReady after reset: applied=%v err=%v", applied, err)
	}
	if reset, err := store.Reset(ctx, "video-4"); err != nil || reset {
		t.Fatalf("Reset must not touch READY videos: reset=%v err=%v", reset, err)
	}
}

func TestRejectsEmptyVideoID(t *testing.T) {
	store := testsupport.MustOpenVideos(t, testsupport.NewConfig(t))
	ctx := context.Background()
	if err := store.EnsurePending(ctx, " "); !errors.Is(err, videos.ErrInvalidVideo) {
		t.Fatalf("expected ErrInvalidVideo, got %v", err)
	}
	if _, err := store.MarkReady(ctx, "", videos.Outputs{}, false); !errors.Is(err, videos.ErrInvalidVideo) {
		t.Fatalf("expected ErrInvalidVideo, got %v", err)
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	store := testsupport.MustOpenVideos(t, testsupport.NewConfig(t))
	rec, err := store.Get(context.Background(), "nope")
	if err != nil || rec != nil {
		t.Fatalf("expected nil record, got %+v err=%v", rec, err)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Videos.Driver = "mysql"
	if _, err := videos.Open(context.Background(), cfg); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
