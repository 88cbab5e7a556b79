package videos

import (
	"context"
	"errors"
	"time"
)

// EncodingStatus is the encoding lifecycle of a video. Transitions only go
// from PENDING to READY or FAILED.
type EncodingStatus string

const (
	StatusPending EncodingStatus = "PENDING"
	StatusReady   EncodingStatus = "READY"
	StatusFailed  EncodingStatus = "FAILED"
)

// ErrInvalidVideo is returned for an empty video id.
var ErrInvalidVideo = errors.New("invalid video id")

// Outputs holds the public locations of a published video.
type Outputs struct {
	AdaptiveManifestURL string `json:"adaptive_manifest_url,omitempty"`
	ProgressiveURL      string `json:"progressive_url,omitempty"`
	ThumbnailURL        string `json:"thumbnail_url,omitempty"`
}

// Record is the persisted encoding state of one video.
type Record struct {
	VideoID             string         `json:"video_id"`
	EncodingStatus      EncodingStatus `json:"encoding_status"`
	EncodingCompletedAt *time.Time     `json:"encoding_completed_at,omitempty"`
	Outputs
	Degraded      bool      `json:"degraded"`
	FailureReason string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Recorder persists the video fields the encoding worker owns.
//
// MarkReady and MarkFailed create the record when it does not exist yet and
// otherwise only move a PENDING record; they report false when the record had
// already reached a terminal status.
type Recorder interface {
	EnsurePending(ctx context.Context, videoID string) error
	MarkReady(ctx context.Context, videoID string, outputs Outputs, degraded bool) (bool, error)
	MarkFailed(ctx context.Context, videoID, reason string) (bool, error)
	Get(ctx context.Context, videoID string) (*Record, error)
}
