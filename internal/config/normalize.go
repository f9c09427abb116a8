package config

import (
	"fmt"
	"strconv"
	"strings"
)

type lookupFunc func(string) (string, bool)

// applyEnv overlays environment variables onto values read from the file.
// A variable that is set (even to an empty string for strings) wins.
func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	integer := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}
	boolean := func(key string, dst *bool) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = b
		return nil
	}

	if v, ok := lookup("USE_LOCAL_STORAGE"); ok && strings.TrimSpace(v) != "" {
		local, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("USE_LOCAL_STORAGE: %w", err)
		}
		if local {
			c.Storage.Backend = StorageLocal
		} else {
			c.Storage.Backend = StorageRemote
		}
	}
	str("STORAGE_BACKEND", &c.Storage.Backend)
	str("STORAGE_LOCAL_DIR", &c.Storage.LocalDir)
	str("STORAGE_PUBLIC_URL", &c.Storage.PublicBaseURL)
	str("S3_ENDPOINT", &c.Storage.Remote.Endpoint)
	str("S3_BUCKET", &c.Storage.Remote.Bucket)
	str("S3_REGION", &c.Storage.Remote.Region)
	str("S3_ACCESS_KEY", &c.Storage.Remote.AccessKey)
	str("S3_SECRET_KEY", &c.Storage.Remote.SecretKey)
	str("QUEUE_BACKEND", &c.Queue.Backend)
	str("REDIS_ADDR", &c.Queue.RedisAddr)
	str("REDIS_PASSWORD", &c.Queue.RedisPassword)
	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)
	str("VIDQUEUE_API_TOKEN", &c.Paths.APIToken)
	str("NTFY_TOPIC", &c.Notifications.NtfyTopic)

	if v, ok := lookup("MAX_FILE_SIZE"); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("MAX_FILE_SIZE: %w", err)
		}
		c.Upload.MaxFileSize = n
	}
	if v, ok := lookup("ALLOWED_VIDEO_FORMATS"); ok && strings.TrimSpace(v) != "" {
		c.Upload.AllowedExtensions = strings.Split(v, ",")
	}

	for _, step := range []func() error{
		func() error { return boolean("S3_USE_SSL", &c.Storage.Remote.UseSSL) },
		func() error { return integer("WORKER_POOL_SIZE", &c.Workers.PoolSize) },
		func() error { return integer("RETRY_ATTEMPTS", &c.Workers.MaxAttempts) },
		func() error { return integer("RETRY_BASE_DELAY_MS", &c.Workers.RetryBaseDelayMillis) },
		func() error { return integer("TARGET_HEIGHT", &c.Media.TargetHeight) },
		func() error { return integer("REDIS_DB", &c.Queue.RedisDB) },
	} {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeStorage()
	c.normalizeUpload()
	c.normalizeQueue()
	c.normalizeMedia()
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir()
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Storage.LocalDir, err = expandPath(c.Storage.LocalDir); err != nil {
		return fmt.Errorf("storage.local_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeStorage() {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = StorageLocal
	}
	c.Storage.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.Storage.PublicBaseURL), "/")
	if c.Storage.PublicBaseURL == "" {
		c.Storage.PublicBaseURL = defaultPublicBaseURL
	}
	if c.Storage.SignTTLSeconds <= 0 {
		c.Storage.SignTTLSeconds = defaultSignTTLSeconds
	}
	remote := &c.Storage.Remote
	remote.Endpoint = strings.TrimSpace(remote.Endpoint)
	remote.Bucket = strings.TrimSpace(remote.Bucket)
	remote.Region = strings.TrimSpace(remote.Region)
}

func (c *Config) normalizeUpload() {
	seen := make(map[string]struct{}, len(c.Upload.AllowedExtensions))
	exts := make([]string, 0, len(c.Upload.AllowedExtensions))
	for _, ext := range c.Upload.AllowedExtensions {
		ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
		if ext == "" {
			continue
		}
		if _, ok := seen[ext]; ok {
			continue
		}
		seen[ext] = struct{}{}
		exts = append(exts, ext)
	}
	c.Upload.AllowedExtensions = exts
}

func (c *Config) normalizeQueue() {
	c.Queue.Backend = strings.ToLower(strings.TrimSpace(c.Queue.Backend))
	if c.Queue.Backend == "" {
		c.Queue.Backend = QueueSQLite
	}
	c.Queue.RedisAddr = strings.TrimSpace(c.Queue.RedisAddr)
	if strings.TrimSpace(c.Queue.RedisPrefix) == "" {
		c.Queue.RedisPrefix = defaultRedisPrefix
	}
}

func (c *Config) normalizeMedia() {
	if strings.TrimSpace(c.Media.FFmpegBinary) == "" {
		c.Media.FFmpegBinary = "ffmpeg"
	}
	if strings.TrimSpace(c.Media.FFprobeBinary) == "" {
		c.Media.FFprobeBinary = "ffprobe"
	}
	if strings.TrimSpace(c.Media.VideoBitrate) == "" {
		c.Media.VideoBitrate = defaultVideoBitrate
	}
	if strings.TrimSpace(c.Media.AudioBitrate) == "" {
		c.Media.AudioBitrate = defaultAudioBitrate
	}
	if strings.TrimSpace(c.Media.Preset) == "" {
		c.Media.Preset = defaultPreset
	}
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch format {
	case "", "console":
		c.Logging.Format = "console"
	default:
		c.Logging.Format = format
	}
	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level
}
