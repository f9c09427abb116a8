package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const (
	defaultConfigPath             = "~/.config/vidqueue/config.toml"
	defaultDataDir                = "~/.local/share/vidqueue"
	defaultLocalStorageDir        = "~/.local/share/vidqueue/uploads"
	defaultPublicBaseURL          = "http://localhost:3001/uploads"
	defaultSignTTLSeconds         = 900
	defaultAPIBind                = "127.0.0.1:7488"
	defaultMaxFileSize            = 100 * 1024 * 1024
	defaultMaxAttempts            = 3
	defaultRetryBaseDelayMillis   = 2000
	defaultPollIntervalMillis     = 1000
	defaultHeartbeatInterval      = 15
	defaultHeartbeatTimeout       = 120
	defaultRetainCompleted        = 10
	defaultRetainFailed           = 5
	defaultPruneInterval          = 60
	defaultRedisPrefix            = "vidqueue"
	defaultTargetHeight           = 480
	defaultVideoBitrate           = "500k"
	defaultAudioBitrate           = "128k"
	defaultPreset                 = "fast"
	defaultThumbnailWidth         = 320
	defaultThumbnailHeight        = 240
	defaultThumbnailOffsetPercent = 10
	defaultNtfyRequestTimeout     = 10
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
)

var defaultAllowedExtensions = []string{"mp4", "avi", "mov", "mkv"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			WorkDir: defaultWorkDir(),
			APIBind: defaultAPIBind,
		},
		Storage: Storage{
			Backend:        StorageLocal,
			LocalDir:       defaultLocalStorageDir,
			PublicBaseURL:  defaultPublicBaseURL,
			SignTTLSeconds: defaultSignTTLSeconds,
			Remote: Remote{
				UseSSL: true,
			},
		},
		Upload: Upload{
			MaxFileSize:       defaultMaxFileSize,
			AllowedExtensions: append([]string(nil), defaultAllowedExtensions...),
		},
		Workers: Workers{
			PoolSize:             defaultPoolSize(),
			MaxAttempts:          defaultMaxAttempts,
			RetryBaseDelayMillis: defaultRetryBaseDelayMillis,
			PollIntervalMillis:   defaultPollIntervalMillis,
			HeartbeatInterval:    defaultHeartbeatInterval,
			HeartbeatTimeout:     defaultHeartbeatTimeout,
			RetainCompleted:      defaultRetainCompleted,
			RetainFailed:         defaultRetainFailed,
			PruneInterval:        defaultPruneInterval,
		},
		Queue: Queue{
			Backend:     QueueSQLite,
			RedisPrefix: defaultRedisPrefix,
		},
		Media: Media{
			FFmpegBinary:           "ffmpeg",
			FFprobeBinary:          "ffprobe",
			TargetHeight:           defaultTargetHeight,
			VideoBitrate:           defaultVideoBitrate,
			AudioBitrate:           defaultAudioBitrate,
			Preset:                 defaultPreset,
			ThumbnailWidth:         defaultThumbnailWidth,
			ThumbnailHeight:        defaultThumbnailHeight,
			ThumbnailOffsetPercent: defaultThumbnailOffsetPercent,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyRequestTimeout,
			Completed:      true,
			Failures:       true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

// Transcodes are CPU-bound; more than two concurrent encodes rarely helps on
// a single host.
func defaultPoolSize() int {
	return min(2, runtime.NumCPU())
}

func defaultWorkDir() string {
	return filepath.Join(os.TempDir(), "video-processing")
}
