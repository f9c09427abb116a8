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

// Storage backend identifiers.
const (
	StorageLocal  = "local"
	StorageRemote = "remote"
)

// Queue backend identifiers.
const (
	QueueSQLite = "sqlite"
	QueueRedis  = "redis"
)

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	WorkDir  string `toml:"work_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Remote contains connection settings for an S3-compatible blob store.
type Remote struct {
	Endpoint     string `toml:"endpoint"`
	Bucket       string `toml:"bucket"`
	Region       string `toml:"region"`
	AccessKey    string `toml:"access_key"`
	SecretKey    string `toml:"secret_key"`
	UseSSL       bool   `toml:"use_ssl"`
	CreateBucket bool   `toml:"create_bucket"`
}

// Storage selects and configures the storage gateway backend.
type Storage struct {
	Backend        string `toml:"backend"`
	LocalDir       string `toml:"local_dir"`
	PublicBaseURL  string `toml:"public_base_url"`
	SignTTLSeconds int    `toml:"sign_ttl_seconds"`
	Remote         Remote `toml:"remote"`
}

// Upload contains submission limits.
type Upload struct {
	MaxFileSize       int64    `toml:"max_file_size"`
	AllowedExtensions []string `toml:"allowed_extensions"`
}

// Workers configures the worker pool and retry policy.
type Workers struct {
	PoolSize               int  `toml:"pool_size"`
	MaxAttempts            int  `toml:"max_attempts"`
	RetryBaseDelayMillis   int  `toml:"retry_base_delay_ms"`
	RetryPermanentFailures bool `toml:"retry_permanent_failures"`
	PollIntervalMillis     int  `toml:"poll_interval_ms"`
	HeartbeatInterval      int  `toml:"heartbeat_interval"`
	HeartbeatTimeout       int  `toml:"heartbeat_timeout"`
	RetainCompleted        int  `toml:"retain_completed"`
	RetainFailed           int  `toml:"retain_failed"`
	PruneInterval          int  `toml:"prune_interval"`
}

// Queue selects the processing job transport.
type Queue struct {
	Backend       string `toml:"backend"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	RedisPrefix   string `toml:"redis_prefix"`
}

// Media contains the external toolkit binaries and the low-res profile.
type Media struct {
	FFmpegBinary           string  `toml:"ffmpeg_binary"`
	FFprobeBinary          string  `toml:"ffprobe_binary"`
	TargetHeight           int     `toml:"target_height"`
	VideoBitrate           string  `toml:"video_bitrate"`
	AudioBitrate           string  `toml:"audio_bitrate"`
	Preset                 string  `toml:"preset"`
	ThumbnailWidth         int     `toml:"thumbnail_width"`
	ThumbnailHeight        int     `toml:"thumbnail_height"`
	ThumbnailOffsetPercent float64 `toml:"thumbnail_offset_percent"`
}

// Notifications contains configuration for ntfy push notifications about
// job outcomes.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Completed      bool   `toml:"completed"`
	Failures       bool   `toml:"failures"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for vidqueue.
//
// Configuration sections by subsystem:
//   - Paths: data/work directories and API bind address
//   - Storage: gateway backend selection (local or remote)
//   - Upload: submission size and extension limits
//   - Workers: pool size, retry policy, heartbeats, retention
//   - Queue: processing job transport (sqlite or redis)
//   - Media: ffmpeg/ffprobe binaries and the low-res profile
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Storage       Storage       `toml:"storage"`
	Upload        Upload        `toml:"upload"`
	Workers       Workers       `toml:"workers"`
	Queue         Queue         `toml:"queue"`
	Media         Media         `toml:"media"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. Environment
// overrides are applied after the file. The returned config has all path
// fields expanded and normalized.
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

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, "", false, err
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

	projectPath, err := filepath.Abs("vidqueue.toml")
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
	dirs := []string{c.Paths.DataDir, c.Paths.WorkDir}
	if c.Storage.Backend == StorageLocal {
		dirs = append(dirs, c.Storage.LocalDir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// JobsDBPath returns the location of the job record database.
func (c *Config) JobsDBPath() string {
	return filepath.Join(c.Paths.DataDir, "jobs.db")
}

// QueueDBPath returns the location of the SQLite queue transport database.
func (c *Config) QueueDBPath() string {
	return filepath.Join(c.Paths.DataDir, "queue.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "vidqueue.lock")
}

// LogPath returns the daemon log file.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.DataDir, "vidqueue.log")
}

// RetryBaseDelay returns the first backoff delay as a duration.
func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.Workers.RetryBaseDelayMillis) * time.Millisecond
}

// PollInterval returns how long an idle queue consumer waits between polls.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Workers.PollIntervalMillis) * time.Millisecond
}

// SignTTL returns the default lifetime of signed download URLs.
func (c *Config) SignTTL() time.Duration {
	return time.Duration(c.Storage.SignTTLSeconds) * time.Second
}

// ExtensionAllowed reports whether the file extension of name is accepted for upload.
func (c *Config) ExtensionAllowed(name string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if ext == "" {
		return false
	}
	for _, allowed := range c.Upload.AllowedExtensions {
		if allowed == ext {
			return true
		}
	}
	return false
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
