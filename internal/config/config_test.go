package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"townhall/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("TOWNHALL_JWT_SECRET", "")
	t.Setenv("TOWNHALL_VIDEOS_DSN", "")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "townhall")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Paths.RawDir != filepath.Join(wantData, "raw") {
		t.Fatalf("unexpected raw dir: %q", cfg.Paths.RawDir)
	}
	if cfg.Paths.ServingDir != filepath.Join(wantData, "media") {
		t.Fatalf("unexpected serving dir: %q", cfg.Paths.ServingDir)
	}
	if cfg.Videos.DSN != filepath.Join(wantData, "videos.db") {
		t.Fatalf("expected sqlite dsn under data dir, got %q", cfg.Videos.DSN)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7480" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Queue.MaxAttempts != 3 {
		t.Fatalf("expected max attempts 3, got %d", cfg.Queue.MaxAttempts)
	}
	if cfg.Retention() != time.Hour {
		t.Fatalf("expected one hour retention, got %s", cfg.Retention())
	}
	if cfg.Worker.PollInterval != 5 || cfg.Worker.StatsInterval != 60 || cfg.Worker.ShutdownTimeout != 60 {
		t.Fatalf("unexpected worker timers: %+v", cfg.Worker)
	}
	if cfg.EncodeTimeout() != 0 {
		t.Fatalf("expected unbounded encode timeout by default, got %s", cfg.EncodeTimeout())
	}
	if cfg.Encoding.ClassifyPermanentFailures {
		t.Fatal("expected permanent failure classification disabled by default")
	}
	if len(cfg.Encoding.Renditions) != 4 {
		t.Fatalf("expected default ladder, got %d renditions", len(cfg.Encoding.Renditions))
	}
}

func TestLoadCustomConfigReplacesLadder(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(t.TempDir(), "config.toml")
	content := `
[paths]
data_dir = "~/townhall"
serving_dir = "/srv/townhall/media"

[storage]
public_base_url = "https://cdn.example.org/media/"

[queue]
max_attempts = 5

[[encoding.renditions]]
height = 540
video_bitrate = "1800k"
audio_bitrate = "128k"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: %q", resolved)
	}
	if cfg.Paths.DataDir != filepath.Join(tempHome, "townhall") {
		t.Fatalf("unexpected data dir: %q", cfg.Paths.DataDir)
	}
	if cfg.Paths.ServingDir != "/srv/townhall/media" {
		t.Fatalf("unexpected serving dir: %q", cfg.Paths.ServingDir)
	}
	if cfg.Storage.PublicBaseURL != "https://cdn.example.org/media" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Storage.PublicBaseURL)
	}
	if cfg.Queue.MaxAttempts != 5 {
		t.Fatalf("unexpected max attempts: %d", cfg.Queue.MaxAttempts)
	}
	if len(cfg.Encoding.Renditions) != 1 {
		t.Fatalf("expected file ladder to replace defaults, got %+v", cfg.Encoding.Renditions)
	}
	if cfg.Encoding.Renditions[0].Name != "540p" {
		t.Fatalf("expected derived rendition name, got %q", cfg.Encoding.Renditions[0].Name)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"zero attempts", func(c *config.Config) { c.Queue.MaxAttempts = 0 }, "queue.max_attempts"},
		{"zero poll", func(c *config.Config) { c.Worker.PollInterval = 0 }, "worker.poll_interval"},
		{"heartbeat beyond lease", func(c *config.Config) { c.Worker.HeartbeatInterval = c.Queue.LeaseSeconds }, "heartbeat_interval"},
		{"unknown driver", func(c *config.Config) { c.Videos.Driver = "mysql" }, "videos.driver"},
		{"postgres without dsn", func(c *config.Config) { c.Videos.Driver = "postgres"; c.Videos.DSN = "" }, "videos.dsn"},
		{"empty ladder", func(c *config.Config) { c.Encoding.Renditions = nil }, "encoding.renditions"},
		{"duplicate rung", func(c *config.Config) {
			c.Encoding.Renditions = append(c.Encoding.Renditions, c.Encoding.Renditions[0])
		}, "duplicate"},
		{"negative timeout", func(c *config.Config) { c.Encoding.TimeoutSeconds = -1 }, "encoding.timeout_seconds"},
		{"bad log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"backoff inverted", func(c *config.Config) {
			c.Queue.RetryBaseDelaySeconds = 60
			c.Queue.RetryMaxDelaySeconds = 10
		}, "retry_max_delay_seconds"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error containing %q", tc.want)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestDefaultConfigValidates(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestSampleConfigDecodes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var cfg config.Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("sample config does not decode: %v", err)
	}
	if len(cfg.Encoding.Renditions) != 4 {
		t.Fatalf("expected sample ladder with 4 rungs, got %d", len(cfg.Encoding.Renditions))
	}
	if cfg.Queue.MaxAttempts != 3 {
		t.Fatalf("unexpected sample max attempts: %d", cfg.Queue.MaxAttempts)
	}
}
