package testsupport

import (
	"context"
	"testing"

	"townhall/internal/config"
	"townhall/internal/queue"
	"townhall/internal/videos"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config, opts ...queue.Option) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg, opts...)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustEnqueue enqueues a job and fails the test when it is not created.
func MustEnqueue(t testing.TB, store *queue.Store, videoID, locator string) *queue.Job {
	t.Helper()

	job, created, err := store.Enqueue(context.Background(), videoID, locator)
	if err != nil {
		t.Fatalf("store.Enqueue(%s): %v", videoID, err)
	}
	if !created {
		t.Fatalf("store.Enqueue(%s): expected a new job, got existing %s", videoID, job.ID)
	}
	return job
}

// MustOpenVideos opens the configured video record store and registers cleanup.
func MustOpenVideos(t testing.TB, cfg *config.Config) *videos.Store {
	t.Helper()

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	store, err := videos.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("videos.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
