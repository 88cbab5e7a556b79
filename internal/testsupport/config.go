package testsupport

import (
	"path/filepath"
	"testing"

	"townhall/internal/config"
)

// ConfigOption adjusts the config built by NewConfig.
type ConfigOption func(t testing.TB, base string, cfg *config.Config)

// NewConfig returns the default configuration rooted in a fresh temp
// directory. The API binds an ephemeral loopback port and retry backoff is
// zero, so a retried job is claimable on the next poll.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths = config.Paths{
		DataDir:    filepath.Join(base, "data"),
		RawDir:     filepath.Join(base, "raw"),
		ServingDir: filepath.Join(base, "media"),
		LogDir:     filepath.Join(base, "logs"),
		APIBind:    "127.0.0.1:0",
	}
	cfg.Videos.DSN = filepath.Join(cfg.Paths.DataDir, "videos.db")
	cfg.Queue.RetryBaseDelaySeconds, cfg.Queue.RetryMaxDelaySeconds = 0, 0

	for _, opt := range opts {
		opt(t, base, &cfg)
	}
	return &cfg
}

// WithMaxAttempts sets the retry budget stamped on new jobs.
func WithMaxAttempts(n int) ConfigOption {
	return func(_ testing.TB, _ string, cfg *config.Config) {
		cfg.Queue.MaxAttempts = n
	}
}

// WithRetryBackoff turns retry backoff back on, in seconds.
func WithRetryBackoff(base, max int) ConfigOption {
	return func(_ testing.TB, _ string, cfg *config.Config) {
		cfg.Queue.RetryBaseDelaySeconds = base
		cfg.Queue.RetryMaxDelaySeconds = max
	}
}

// WithEncoderScripts installs shell scripts as the ffprobe and ffmpeg
// binaries. Both live in BinDir and answer -version with exit 0.
func WithEncoderScripts(probeBody, ffmpegBody string) ConfigOption {
	return func(t testing.TB, base string, cfg *config.Config) {
		t.Helper()
		dir := filepath.Join(base, "bin")
		cfg.Encoding.FFprobeBinary = WriteScript(t, dir, "ffprobe",
			"if [ \"$1\" = \"-version\" ]; then echo \"ffprobe version 7.0\"; exit 0; fi\n"+probeBody)
		cfg.Encoding.FFmpegBinary = WriteScript(t, dir, "ffmpeg", ffmpegBody)
	}
}

// BaseDir returns the temp directory NewConfig rooted cfg in.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}

// BinDir returns where WithEncoderScripts writes its scripts.
func BinDir(cfg *config.Config) string {
	return filepath.Join(BaseDir(cfg), "bin")
}
