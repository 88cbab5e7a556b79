package config

const (
	defaultConfigPath                = "~/.config/townhall/config.toml"
	defaultDataDir                   = "~/.local/share/townhall"
	defaultAPIBind                   = "127.0.0.1:7480"
	defaultJWTIssuer                 = "townhall"
	defaultPublicBaseURL             = "/media"
	defaultVideosDriver              = "sqlite"
	defaultQueueMaxAttempts          = 3
	defaultQueueRetentionSeconds     = 3600
	defaultQueueLeaseSeconds         = 120
	defaultRetryBaseDelaySeconds     = 10
	defaultRetryMaxDelaySeconds      = 300
	defaultWorkerPollInterval        = 5
	defaultWorkerStatsInterval       = 60
	defaultWorkerCleanupInterval     = 3600
	defaultWorkerShutdownTimeout     = 60
	defaultWorkerShutdownPoll        = 2
	defaultWorkerErrorRetryInterval  = 10
	defaultWorkerHeartbeatInterval   = 30
	defaultFFmpegBinary              = "ffmpeg"
	defaultFFprobeBinary             = "ffprobe"
	defaultProbeTimeoutSeconds       = 5
	defaultSegmentSeconds            = 6
	defaultProgressiveHeight         = 720
	defaultThumbnailOffsetSeconds    = 1
	defaultIngestQueueName           = "video.uploaded"
	defaultIngestPrefetch            = 4
	defaultNotifyRequestTimeout      = 10
	defaultLogFormat                 = "console"
	defaultLogLevel                  = "info"
	defaultClassifyPermanentFailures = false
)

// Supported video record backends.
const (
	VideosDriverSQLite   = "sqlite"
	VideosDriverPostgres = "postgres"
)

// DefaultRenditions is the adaptive ladder used when the config file names none.
func DefaultRenditions() []Rendition {
	return []Rendition{
		{Name: "1080p", Height: 1080, VideoBitrate: "5000k", AudioBitrate: "192k"},
		{Name: "720p", Height: 720, VideoBitrate: "2800k", AudioBitrate: "128k"},
		{Name: "480p", Height: 480, VideoBitrate: "1400k", AudioBitrate: "128k"},
		{Name: "360p", Height: 360, VideoBitrate: "800k", AudioBitrate: "96k"},
	}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			APIBind: defaultAPIBind,
		},
		API: API{
			JWTIssuer: defaultJWTIssuer,
		},
		Storage: Storage{
			PublicBaseURL: defaultPublicBaseURL,
		},
		Videos: Videos{
			Driver: defaultVideosDriver,
		},
		Queue: Queue{
			MaxAttempts:           defaultQueueMaxAttempts,
			RetentionSeconds:      defaultQueueRetentionSeconds,
			LeaseSeconds:          defaultQueueLeaseSeconds,
			RetryBaseDelaySeconds: defaultRetryBaseDelaySeconds,
			RetryMaxDelaySeconds:  defaultRetryMaxDelaySeconds,
		},
		Worker: Worker{
			PollInterval:         defaultWorkerPollInterval,
			StatsInterval:        defaultWorkerStatsInterval,
			CleanupInterval:      defaultWorkerCleanupInterval,
			ShutdownTimeout:      defaultWorkerShutdownTimeout,
			ShutdownPollInterval: defaultWorkerShutdownPoll,
			ErrorRetryInterval:   defaultWorkerErrorRetryInterval,
			HeartbeatInterval:    defaultWorkerHeartbeatInterval,
		},
		Encoding: Encoding{
			FFmpegBinary:              defaultFFmpegBinary,
			FFprobeBinary:             defaultFFprobeBinary,
			ProbeTimeoutSeconds:       defaultProbeTimeoutSeconds,
			SegmentSeconds:            defaultSegmentSeconds,
			ClassifyPermanentFailures: defaultClassifyPermanentFailures,
			ProgressiveHeight:         defaultProgressiveHeight,
			ThumbnailOffsetSeconds:    defaultThumbnailOffsetSeconds,
			Renditions:                DefaultRenditions(),
		},
		Ingest: Ingest{
			QueueName: defaultIngestQueueName,
			Prefetch:  defaultIngestPrefetch,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Encoding:       true,
			Fallback:       true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
