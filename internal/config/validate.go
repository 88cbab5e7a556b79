package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateWorker(); err != nil {
		return err
	}
	if err := c.validateVideos(); err != nil {
		return err
	}
	if err := c.validateEncoding(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateQueue() error {
	if err := ensurePositiveMap(map[string]int{
		"queue.max_attempts":      c.Queue.MaxAttempts,
		"queue.retention_seconds": c.Queue.RetentionSeconds,
		"queue.lease_seconds":     c.Queue.LeaseSeconds,
	}); err != nil {
		return err
	}
	if c.Queue.RetryBaseDelaySeconds < 0 {
		return errors.New("queue.retry_base_delay_seconds must be >= 0")
	}
	if c.Queue.RetryMaxDelaySeconds < c.Queue.RetryBaseDelaySeconds {
		return errors.New("queue.retry_max_delay_seconds must be >= queue.retry_base_delay_seconds")
	}
	return nil
}

func (c *Config) validateWorker() error {
	if err := ensurePositiveMap(map[string]int{
		"worker.poll_interval":          c.Worker.PollInterval,
		"worker.stats_interval":         c.Worker.StatsInterval,
		"worker.cleanup_interval":       c.Worker.CleanupInterval,
		"worker.shutdown_timeout":       c.Worker.ShutdownTimeout,
		"worker.shutdown_poll_interval": c.Worker.ShutdownPollInterval,
		"worker.error_retry_interval":   c.Worker.ErrorRetryInterval,
		"worker.heartbeat_interval":     c.Worker.HeartbeatInterval,
	}); err != nil {
		return err
	}
	if c.Worker.HeartbeatInterval >= c.Queue.LeaseSeconds {
		return errors.New("worker.heartbeat_interval must be less than queue.lease_seconds")
	}
	return nil
}

func (c *Config) validateVideos() error {
	switch c.Videos.Driver {
	case VideosDriverSQLite:
		return nil
	case VideosDriverPostgres:
		if c.Videos.DSN == "" {
			return errors.New("videos.dsn must be set when videos.driver is postgres (or set TOWNHALL_VIDEOS_DSN)")
		}
		return nil
	default:
		return fmt.Errorf("videos.driver %q is not supported (use sqlite or postgres)", c.Videos.Driver)
	}
}

func (c *Config) validateEncoding() error {
	if err := ensurePositiveMap(map[string]int{
		"encoding.probe_timeout_seconds": c.Encoding.ProbeTimeoutSeconds,
		"encoding.segment_seconds":       c.Encoding.SegmentSeconds,
		"encoding.progressive_height":    c.Encoding.ProgressiveHeight,
	}); err != nil {
		return err
	}
	if c.Encoding.TimeoutSeconds < 0 {
		return errors.New("encoding.timeout_seconds must be >= 0 (0 disables the cap)")
	}
	if c.Encoding.ThumbnailOffsetSeconds < 0 {
		return errors.New("encoding.thumbnail_offset_seconds must be >= 0")
	}
	if len(c.Encoding.Renditions) == 0 {
		return errors.New("encoding.renditions must include at least one rendition")
	}
	seen := make(map[string]struct{}, len(c.Encoding.Renditions))
	for _, r := range c.Encoding.Renditions {
		if r.Name == "" {
			return errors.New("encoding.renditions entries need a name or height")
		}
		if _, ok := seen[r.Name]; ok {
			return fmt.Errorf("encoding.renditions has duplicate name %q", r.Name)
		}
		seen[r.Name] = struct{}{}
		if r.Height <= 0 {
			return fmt.Errorf("encoding.renditions[%s].height must be positive", r.Name)
		}
		if r.VideoBitrate == "" || r.AudioBitrate == "" {
			return fmt.Errorf("encoding.renditions[%s] must set video_bitrate and audio_bitrate", r.Name)
		}
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if strings.TrimSpace(c.Notifications.NtfyTopic) == "" {
		return nil
	}
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q is not supported (use console or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not supported", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
