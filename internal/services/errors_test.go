package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"townhall/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "ffmpeg", "encode", "exit status 1", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"ffmpeg", "encode", "exit status 1"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected placeholder detail, got %q", err.Error())
	}
}

func TestKindClassification(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, "none"},
		{services.Wrap(services.ErrPermanent, "ffprobe", "inspect", "no video stream", nil), "permanent"},
		{fmt.Errorf("outer: %w", services.Wrap(services.ErrTimeout, "ffmpeg", "encode", "deadline", nil)), "timeout"},
		{services.Wrap(services.ErrUnavailable, "ffmpeg", "probe", "", nil), "unavailable"},
		{errors.New("plain"), "transient"},
	}
	for _, tc := range cases {
		if got := services.Kind(tc.err); got != tc.want {
			t.Fatalf("Kind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
	if services.IsPermanent(errors.New("plain")) {
		t.Fatal("plain errors must not be permanent")
	}
	if !services.IsPermanent(services.Wrap(services.ErrPermanent, "", "", "corrupt", nil)) {
		t.Fatal("expected permanent classification")
	}
}
