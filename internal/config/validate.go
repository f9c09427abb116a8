package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	for _, check := range []func() error{
		c.validatePaths,
		c.validateStorage,
		c.validateUpload,
		c.validateWorkers,
		c.validateQueue,
		c.validateMedia,
		c.validateNotifications,
		c.validateLogging,
	} {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	if c.Paths.WorkDir == "" {
		return errors.New("paths.work_dir must be set")
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case StorageLocal:
		if c.Storage.LocalDir == "" {
			return errors.New("storage.local_dir must be set when storage.backend is local")
		}
	case StorageRemote:
		remote := c.Storage.Remote
		if remote.Endpoint == "" {
			return errors.New("storage.remote.endpoint must be set when storage.backend is remote (S3_ENDPOINT)")
		}
		if remote.Bucket == "" {
			return errors.New("storage.remote.bucket must be set when storage.backend is remote (S3_BUCKET)")
		}
		if remote.AccessKey == "" || remote.SecretKey == "" {
			return errors.New("storage.remote.access_key and secret_key must be set when storage.backend is remote")
		}
	default:
		return fmt.Errorf("storage.backend: unsupported value %q (want %q or %q)", c.Storage.Backend, StorageLocal, StorageRemote)
	}
	return nil
}

func (c *Config) validateUpload() error {
	if c.Upload.MaxFileSize <= 0 {
		return errors.New("upload.max_file_size must be positive")
	}
	if len(c.Upload.AllowedExtensions) == 0 {
		return errors.New("upload.allowed_extensions must list at least one extension")
	}
	return nil
}

func (c *Config) validateWorkers() error {
	w := c.Workers
	if w.PoolSize <= 0 {
		return errors.New("workers.pool_size must be positive")
	}
	if w.MaxAttempts <= 0 {
		return errors.New("workers.max_attempts must be positive")
	}
	if w.RetryBaseDelayMillis < 0 {
		return errors.New("workers.retry_base_delay_ms must be >= 0")
	}
	if w.PollIntervalMillis <= 0 {
		return errors.New("workers.poll_interval_ms must be positive")
	}
	if w.HeartbeatInterval <= 0 {
		return errors.New("workers.heartbeat_interval must be positive")
	}
	if w.HeartbeatTimeout <= w.HeartbeatInterval {
		return errors.New("workers.heartbeat_timeout must be greater than workers.heartbeat_interval")
	}
	if w.RetainCompleted < 0 || w.RetainFailed < 0 {
		return errors.New("workers.retain_completed and retain_failed must be >= 0")
	}
	if w.PruneInterval <= 0 {
		return errors.New("workers.prune_interval must be positive")
	}
	return nil
}

func (c *Config) validateQueue() error {
	switch c.Queue.Backend {
	case QueueSQLite:
	case QueueRedis:
		if c.Queue.RedisAddr == "" {
			return errors.New("queue.redis_addr must be set when queue.backend is redis (REDIS_ADDR)")
		}
	default:
		return fmt.Errorf("queue.backend: unsupported value %q (want %q or %q)", c.Queue.Backend, QueueSQLite, QueueRedis)
	}
	return nil
}

func (c *Config) validateMedia() error {
	m := c.Media
	if m.TargetHeight <= 0 || m.TargetHeight%2 != 0 {
		return fmt.Errorf("media.target_height must be a positive even number, got %d", m.TargetHeight)
	}
	if m.ThumbnailWidth <= 0 || m.ThumbnailHeight <= 0 {
		return errors.New("media.thumbnail_width and thumbnail_height must be positive")
	}
	if m.ThumbnailOffsetPercent < 0 || m.ThumbnailOffsetPercent >= 100 {
		return errors.New("media.thumbnail_offset_percent must be in [0, 100)")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout < 0 {
		return errors.New("notifications.request_timeout must be >= 0")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
