package encoding_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"townhall/internal/encoding"
	"townhall/internal/logging"
	"townhall/internal/services"
	"townhall/internal/storage"
	"townhall/internal/testsupport"
)

func TestCopyRawToServingPublishesBytesVerbatim(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	raw := filepath.Join(cfg.Paths.RawDir, "uploads", "Clip.MOV")
	testsupport.WriteFile(t, raw, 70_000)

	copier := encoding.NewCopier(storage.NewLocal(cfg), logging.NewNop())
	url, err := copier.CopyRawToServing(context.Background(), "video-c", "uploads/Clip.MOV")
	if err != nil {
		t.Fatalf("CopyRawToServing: %v", err)
	}
	if url != "/media/video-c/original.mov" {
		t.Fatalf("unexpected url %q", url)
	}

	want, err := os.ReadFile(raw)
	if err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(filepath.Join(cfg.Paths.ServingDir, "video-c", "original.mov"))
	if err != nil {
		t.Fatalf("read published copy: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatal("published copy differs from raw upload")
	}
}

func TestCopyRawToServingMissingSource(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	copier := encoding.NewCopier(storage.NewLocal(cfg), logging.NewNop())
	if _, err := copier.CopyRawToServing(context.Background(), "video-x", "uploads/none.mp4"); !services.IsPermanent(err) {
		t.Fatalf("expected permanent failure, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.Paths.ServingDir, "video-x")); !os.IsNotExist(err) {
		t.Fatal("nothing should be published for a missing source")
	}
}

func TestOriginalName(t *testing.T) {
	cases := map[string]string{
		"/raw/a/clip.MP4": "original.mp4",
		"/raw/a/noext":    "original",
		"/raw/a/x.webm":   "original.webm",
	}
	for input, want := range cases {
		if got := encoding.OriginalName(input); got != want {
			t.Fatalf("OriginalName(%q) = %q, want %q", input, got, want)
		}
	}
}
