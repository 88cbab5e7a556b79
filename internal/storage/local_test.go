package storage_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"townhall/internal/services"
	"townhall/internal/storage"
	"townhall/internal/testsupport"
)

func TestResolveRelativeLocator(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	want := filepath.Join(cfg.Paths.RawDir, "uploads", "clip.mp4")
	testsupport.WriteFile(t, want, 64)

	local := storage.NewLocal(cfg)
	for _, locator := range []string{"uploads/clip.mp4", "file://" + want, want} {
		got, err := local.Resolve(locator)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", locator, err)
		}
		if got != want {
			t.Fatalf("Resolve(%q) = %q, want %q", locator, got, want)
		}
	}
}

func TestResolveRejectsEscapes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	outside := filepath.Join(testsupport.BaseDir(cfg), "secret.txt")
	testsupport.WriteFile(t, outside, 8)

	local := storage.NewLocal(cfg)
	for _, locator := range []string{"../secret.txt", outside, "", "uploads/../../secret.txt"} {
		_, err := local.Resolve(locator)
		if err == nil {
			t.Fatalf("Resolve(%q) should fail", locator)
		}
		if !services.IsPermanent(err) {
			t.Fatalf("Resolve(%q) should be a permanent failure, got %v", locator, err)
		}
	}
}

func TestResolveMissingObject(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := os.MkdirAll(cfg.Paths.RawDir, 0o755); err != nil {
		t.Fatal(err)
	}
	_, err := storage.NewLocal(cfg).Resolve("nope.mp4")
	if !errors.Is(err, os.ErrNotExist) || !services.IsPermanent(err) {
		t.Fatalf("expected permanent not-exist error, got %v", err)
	}
}

func TestStageAndPublish(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	local := storage.NewLocal(cfg)

	staged, err := local.Stage("video-1")
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	testsupport.WriteFile(t, filepath.Join(staged, "progressive.mp4"), 32)
	if err := local.Publish(staged, "video-1"); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.Paths.ServingDir, "video-1", "progressive.mp4")); err != nil {
		t.Fatalf("published file missing: %v", err)
	}
	if _, err := os.Stat(staged); !os.IsNotExist(err) {
		t.Fatal("staging dir should be consumed by publish")
	}
}

func TestStageRejectsUnsafeVideoID(t *testing.T) {
	local := storage.NewLocal(testsupport.NewConfig(t))
	for _, id := range []string{"", "..", "a/b", ".hidden", " padded"} {
		if _, err := local.Stage(id); !errors.Is(err, storage.ErrInvalidKey) {
			t.Fatalf("Stage(%q) expected ErrInvalidKey, got %v", id, err)
		}
	}
}

func TestURL(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Storage.PublicBaseURL = "https://cdn.example.org/media/"
	local := storage.NewLocal(cfg)

	got := local.URL("video 1", "hls/master.m3u8")
	want := "https://cdn.example.org/media/video%201/hls/master.m3u8"
	if got != want {
		t.Fatalf("URL = %q, want %q", got, want)
	}
}
