package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	RawDir     string `toml:"raw_dir"`
	ServingDir string `toml:"serving_dir"`
	LogDir     string `toml:"log_dir"`
	APIBind    string `toml:"api_bind"`
}

// API contains configuration for the daemon HTTP API.
type API struct {
	JWTSecret string `toml:"jwt_secret"`
	JWTIssuer string `toml:"jwt_issuer"`
}

// Storage contains configuration for the serving side of object storage.
type Storage struct {
	PublicBaseURL string `toml:"public_base_url"`
}

// Videos selects the backend that holds the persistent video records.
type Videos struct {
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
}

// Queue contains the encoding job retry and retention policy.
type Queue struct {
	MaxAttempts           int `toml:"max_attempts"`
	RetentionSeconds      int `toml:"retention_seconds"`
	LeaseSeconds          int `toml:"lease_seconds"`
	RetryBaseDelaySeconds int `toml:"retry_base_delay_seconds"`
	RetryMaxDelaySeconds  int `toml:"retry_max_delay_seconds"`
}

// Worker contains timer configuration for the encoding worker.
type Worker struct {
	PollInterval         int `toml:"poll_interval"`
	StatsInterval        int `toml:"stats_interval"`
	CleanupInterval      int `toml:"cleanup_interval"`
	ShutdownTimeout      int `toml:"shutdown_timeout"`
	ShutdownPollInterval int `toml:"shutdown_poll_interval"`
	ErrorRetryInterval   int `toml:"error_retry_interval"`
	HeartbeatInterval    int `toml:"heartbeat_interval"`
}

// Rendition describes one rung of the adaptive bitrate ladder.
type Rendition struct {
	Name         string `toml:"name"`
	Height       int    `toml:"height"`
	VideoBitrate string `toml:"video_bitrate"`
	AudioBitrate string `toml:"audio_bitrate"`
}

// Encoding contains configuration for the external encoder.
type Encoding struct {
	FFmpegBinary              string      `toml:"ffmpeg_binary"`
	FFprobeBinary             string      `toml:"ffprobe_binary"`
	ProbeTimeoutSeconds       int         `toml:"probe_timeout_seconds"`
	TimeoutSeconds            int         `toml:"timeout_seconds"`
	SegmentSeconds            int         `toml:"segment_seconds"`
	ClassifyPermanentFailures bool        `toml:"classify_permanent_failures"`
	ProgressiveHeight         int         `toml:"progressive_height"`
	ThumbnailOffsetSeconds    int         `toml:"thumbnail_offset_seconds"`
	Renditions                []Rendition `toml:"renditions"`
}

// Ingest contains configuration for the AMQP upload-event consumer.
type Ingest struct {
	AMQPURL   string `toml:"amqp_url"`
	QueueName string `toml:"queue_name"`
	Prefetch  int    `toml:"prefetch"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Encoding       bool   `toml:"encoding"`
	Fallback       bool   `toml:"fallback"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for townhall.
//
// Configuration sections by subsystem:
//   - Paths: data, raw upload, serving, and log directories plus the API bind address
//   - API: bearer token verification
//   - Storage: public URL prefix for served media
//   - Videos: video record backend (sqlite or postgres)
//   - Queue: retry budget, retention window, lease length, retry backoff
//   - Worker: poll/stats/cleanup timers and shutdown bounds
//   - Encoding: ffmpeg binaries, ladder, and failure classification
//   - Ingest: optional AMQP upload-event consumer
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	API           API           `toml:"api"`
	Storage       Storage       `toml:"storage"`
	Videos        Videos        `toml:"videos"`
	Queue         Queue         `toml:"queue"`
	Worker        Worker        `toml:"worker"`
	Encoding      Encoding      `toml:"encoding"`
	Ingest        Ingest        `toml:"ingest"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		// A ladder in the file replaces the default ladder rather than extending it.
		cfg.Encoding.Renditions = nil
		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("townhall.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.RawDir, c.Paths.ServingDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// QueueDBPath returns the location of the encoding job database.
func (c *Config) QueueDBPath() string {
	return filepath.Join(c.Paths.DataDir, "queue.db")
}

// LockPath returns the daemon single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "townhalld.lock")
}

// PIDPath returns the daemon pid file location.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.DataDir, "townhalld.pid")
}

// DaemonLogPath returns the daemon log file location.
func (c *Config) DaemonLogPath() string {
	return filepath.Join(c.Paths.LogDir, "townhalld.log")
}

// Retention returns the terminal job retention window.
func (c *Config) Retention() time.Duration {
	return seconds(c.Queue.RetentionSeconds)
}

// Lease returns how long a claim stays valid without a heartbeat.
func (c *Config) Lease() time.Duration {
	return seconds(c.Queue.LeaseSeconds)
}

// EncodeTimeout returns the wall-clock cap for one encode, or zero when unbounded.
func (c *Config) EncodeTimeout() time.Duration {
	return seconds(c.Encoding.TimeoutSeconds)
}

func seconds(value int) time.Duration {
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
