package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAPI()
	c.normalizeStorage()
	c.normalizeVideos()
	c.normalizeEncoding()
	c.normalizeIngest()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	derived := []struct {
		key   string
		value *string
		sub   string
	}{
		{"paths.raw_dir", &c.Paths.RawDir, "raw"},
		{"paths.serving_dir", &c.Paths.ServingDir, "media"},
		{"paths.log_dir", &c.Paths.LogDir, "logs"},
	}
	for _, entry := range derived {
		if strings.TrimSpace(*entry.value) == "" {
			*entry.value = filepath.Join(c.Paths.DataDir, entry.sub)
		}
		if *entry.value, err = expandPath(*entry.value); err != nil {
			return fmt.Errorf("%s: %w", entry.key, err)
		}
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeAPI() {
	c.API.JWTSecret = strings.TrimSpace(c.API.JWTSecret)
	if c.API.JWTSecret == "" {
		if value, ok := os.LookupEnv("TOWNHALL_JWT_SECRET"); ok {
			c.API.JWTSecret = strings.TrimSpace(value)
		}
	}
	c.API.JWTIssuer = strings.TrimSpace(c.API.JWTIssuer)
	if c.API.JWTIssuer == "" {
		c.API.JWTIssuer = defaultJWTIssuer
	}
}

func (c *Config) normalizeStorage() {
	base := strings.TrimSpace(c.Storage.PublicBaseURL)
	if base == "" {
		base = defaultPublicBaseURL
	}
	c.Storage.PublicBaseURL = strings.TrimRight(base, "/")
}

func (c *Config) normalizeVideos() {
	c.Videos.Driver = strings.ToLower(strings.TrimSpace(c.Videos.Driver))
	if c.Videos.Driver == "" {
		c.Videos.Driver = defaultVideosDriver
	}
	c.Videos.DSN = strings.TrimSpace(c.Videos.DSN)
	if c.Videos.DSN == "" {
		if value, ok := os.LookupEnv("TOWNHALL_VIDEOS_DSN"); ok {
			c.Videos.DSN = strings.TrimSpace(value)
		}
	}
	if c.Videos.DSN == "" && c.Videos.Driver == VideosDriverSQLite {
		c.Videos.DSN = filepath.Join(c.Paths.DataDir, "videos.db")
	}
}

func (c *Config) normalizeEncoding() {
	c.Encoding.FFmpegBinary = strings.TrimSpace(c.Encoding.FFmpegBinary)
	if c.Encoding.FFmpegBinary == "" {
		c.Encoding.FFmpegBinary = defaultFFmpegBinary
	}
	c.Encoding.FFprobeBinary = strings.TrimSpace(c.Encoding.FFprobeBinary)
	if c.Encoding.FFprobeBinary == "" {
		c.Encoding.FFprobeBinary = defaultFFprobeBinary
	}
	if len(c.Encoding.Renditions) == 0 {
		c.Encoding.Renditions = DefaultRenditions()
	}
	for i := range c.Encoding.Renditions {
		r := &c.Encoding.Renditions[i]
		r.Name = strings.TrimSpace(r.Name)
		if r.Name == "" && r.Height > 0 {
			r.Name = fmt.Sprintf("%dp", r.Height)
		}
		r.VideoBitrate = strings.TrimSpace(r.VideoBitrate)
		r.AudioBitrate = strings.TrimSpace(r.AudioBitrate)
	}
}

func (c *Config) normalizeIngest() {
	c.Ingest.AMQPURL = strings.TrimSpace(c.Ingest.AMQPURL)
	if c.Ingest.AMQPURL == "" {
		if value, ok := os.LookupEnv("TOWNHALL_AMQP_URL"); ok {
			c.Ingest.AMQPURL = strings.TrimSpace(value)
		}
	}
	c.Ingest.QueueName = strings.TrimSpace(c.Ingest.QueueName)
	if c.Ingest.QueueName == "" {
		c.Ingest.QueueName = defaultIngestQueueName
	}
	if c.Ingest.Prefetch <= 0 {
		c.Ingest.Prefetch = defaultIngestPrefetch
	}
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch format {
	case "", "console", "text":
		c.Logging.Format = "console"
	case "json":
		c.Logging.Format = "json"
	default:
		c.Logging.Format = format
	}
	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level
}
