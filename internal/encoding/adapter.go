package encoding

import (
	"context"

	"townhall/internal/videos"
)

// Encoder transcodes a raw upload into adaptive and progressive renditions.
type Encoder interface {
	// IsAvailable is a cheap probe of the external toolchain. It is checked at
	// worker start and again before every job.
	IsAvailable(ctx context.Context) bool
	Encode(ctx context.Context, videoID, inputLocator string) (videos.Outputs, error)
}

// Fallback publishes raw bytes untranscoded and returns their public URL.
type Fallback interface {
	CopyRawToServing(ctx context.Context, videoID, inputLocator string) (string, error)
}

// Storage is the subset of storage.Local the adapters need.
type Storage interface {
	Resolve(locator string) (string, error)
	Stage(videoID string) (string, error)
	Publish(staged, videoID string) error
	URL(videoID, name string) string
}

// Published output names relative to the video's serving directory.
const (
	MasterPlaylistName = "hls/master.m3u8"
	ProgressiveName    = "progressive.mp4"
	ThumbnailName      = "thumbnail.jpg"
	originalBaseName   = "original"
)
