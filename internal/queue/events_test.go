package queue_test

import (
	"context"
	"testing"
	"time"

	"townhall/internal/testsupport"
)

func TestSubscribeCoalescesAddedEvents(t *testing.T) {
	store, _ := newTestStore(t)
	events, cancel := store.Subscribe()
	defer cancel()

	testsupport.MustEnqueue(t, store, "video-1", "raw/1.mp4")
	testsupport.MustEnqueue(t, store, "video-2", "raw/2.mp4")

	select {
	case <-events:
	case <-time.After(time.Second):
		t.Fatal("expected an added notification")
	}
	select {
	case <-events:
		t.Fatal("burst of enqueues should coalesce into one pending notification")
	default:
	}
}

func TestSubscribeSkipsDuplicateEnqueue(t *testing.T) {
	store, _ := newTestStore(t)
	testsupport.MustEnqueue(t, store, "video-1", "raw/1.mp4")

	events, cancel := store.Subscribe()
	defer cancel()

	if _, created, err := store.Enqueue(context.Background(), "video-1", "raw/1.mp4"); err != nil || created {
		t.Fatalf("duplicate Enqueue: created=%v err=%v", created, err)
	}
	select {
	case <-events:
		t.Fatal("no-op enqueue must not notify")
	default:
	}
}

func TestCloseReleasesSubscribers(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	events, cancel := store.Subscribe()

	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case _, ok := <-events:
		if ok {
			t.Fatal("expected closed channel after store close")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber channel not closed")
	}
	cancel()
}
