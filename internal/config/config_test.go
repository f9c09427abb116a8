package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vidqueue/internal/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"STORAGE_BACKEND", "USE_LOCAL_STORAGE", "STORAGE_LOCAL_DIR", "STORAGE_PUBLIC_URL",
		"S3_ENDPOINT", "S3_BUCKET", "S3_REGION", "S3_ACCESS_KEY", "S3_SECRET_KEY", "S3_USE_SSL",
		"MAX_FILE_SIZE", "ALLOWED_VIDEO_FORMATS", "WORKER_POOL_SIZE", "RETRY_ATTEMPTS",
		"RETRY_BASE_DELAY_MS", "TARGET_HEIGHT", "QUEUE_BACKEND", "REDIS_ADDR", "REDIS_PASSWORD",
		"REDIS_DB", "LOG_LEVEL", "LOG_FORMAT", "VIDQUEUE_API_TOKEN", "NTFY_TOPIC",
	} {
		if _, ok := os.LookupEnv(key); ok {
			value := os.Getenv(key)
			if err := os.Unsetenv(key); err != nil {
				t.Fatalf("unset %s: %v", key, err)
			}
			t.Cleanup(func() { _ = os.Setenv(key, value) })
		}
	}
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "missing.toml")

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected missing config file to report exists=false")
	}
	if resolved != path {
		t.Fatalf("expected resolved path %q, got %q", path, resolved)
	}
	if cfg.Storage.Backend != config.StorageLocal {
		t.Fatalf("expected local storage by default, got %q", cfg.Storage.Backend)
	}
	if cfg.Upload.MaxFileSize != 104857600 {
		t.Fatalf("unexpected max file size %d", cfg.Upload.MaxFileSize)
	}
	if cfg.Workers.MaxAttempts != 3 || cfg.RetryBaseDelay().Seconds() != 2 {
		t.Fatalf("unexpected retry policy: attempts=%d base=%s", cfg.Workers.MaxAttempts, cfg.RetryBaseDelay())
	}
	if cfg.Media.TargetHeight != 480 {
		t.Fatalf("unexpected target height %d", cfg.Media.TargetHeight)
	}
	if !filepath.IsAbs(cfg.Paths.DataDir) || !filepath.IsAbs(cfg.Storage.LocalDir) {
		t.Fatalf("expected expanded paths, got %q and %q", cfg.Paths.DataDir, cfg.Storage.LocalDir)
	}
}

func TestLoadReadsTOMLAndEnvOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
data_dir = "` + filepath.Join(dir, "data") + `"

[upload]
allowed_extensions = [".MP4", "webm", "mp4"]

[workers]
pool_size = 4

[media]
target_height = 360
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("WORKER_POOL_SIZE", "1")
	t.Setenv("RETRY_BASE_DELAY_MS", "50")
	t.Setenv("NTFY_TOPIC", " https://ntfy.example/jobs ")

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists=true")
	}
	if got := strings.Join(cfg.Upload.AllowedExtensions, ","); got != "mp4,webm" {
		t.Fatalf("unexpected normalized extensions %q", got)
	}
	if cfg.Workers.PoolSize != 1 {
		t.Fatalf("expected env override for pool size, got %d", cfg.Workers.PoolSize)
	}
	if cfg.Workers.RetryBaseDelayMillis != 50 {
		t.Fatalf("expected env override for base delay, got %d", cfg.Workers.RetryBaseDelayMillis)
	}
	if cfg.Notifications.NtfyTopic != "https://ntfy.example/jobs" || !cfg.Notifications.Failures {
		t.Fatalf("unexpected notifications %+v", cfg.Notifications)
	}
	if cfg.Media.TargetHeight != 360 {
		t.Fatalf("expected target height from file, got %d", cfg.Media.TargetHeight)
	}
	if cfg.JobsDBPath() != filepath.Join(dir, "data", "jobs.db") {
		t.Fatalf("unexpected jobs db path %q", cfg.JobsDBPath())
	}
}

func TestLegacyUseLocalStorageSelectsRemote(t *testing.T) {
	clearEnv(t)
	t.Setenv("USE_LOCAL_STORAGE", "false")
	_, _, _, err := config.Load(filepath.Join(t.TempDir(), "none.toml"))
	if err == nil {
		t.Fatal("expected remote backend without endpoint to fail validation")
	}
	if !strings.Contains(err.Error(), "storage.remote.endpoint") {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Setenv("S3_ENDPOINT", "minio:9000")
	t.Setenv("S3_BUCKET", "videos")
	t.Setenv("S3_ACCESS_KEY", "key")
	t.Setenv("S3_SECRET_KEY", "secret")
	t.Setenv("S3_USE_SSL", "false")
	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "none.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Storage.Backend != config.StorageRemote || cfg.Storage.Remote.UseSSL {
		t.Fatalf("unexpected remote settings: %+v", cfg.Storage)
	}
}

func TestLoadRejectsMalformedEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("RETRY_ATTEMPTS", "three")
	if _, _, _, err := config.Load(filepath.Join(t.TempDir(), "none.toml")); err == nil {
		t.Fatal("expected malformed RETRY_ATTEMPTS to fail")
	}
}

func TestValidateRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"unknown storage", func(c *config.Config) { c.Storage.Backend = "gcs" }, "storage.backend"},
		{"odd target height", func(c *config.Config) { c.Media.TargetHeight = 481 }, "target_height"},
		{"zero pool", func(c *config.Config) { c.Workers.PoolSize = 0 }, "pool_size"},
		{"zero attempts", func(c *config.Config) { c.Workers.MaxAttempts = 0 }, "max_attempts"},
		{"redis without addr", func(c *config.Config) { c.Queue.Backend = config.QueueRedis }, "redis_addr"},
		{"no extensions", func(c *config.Config) { c.Upload.AllowedExtensions = nil }, "allowed_extensions"},
		{"bad log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestExtensionAllowed(t *testing.T) {
	cfg := config.Default()
	for name, want := range map[string]bool{
		"clip.mp4":  true,
		"CLIP.MOV":  true,
		"clip.webm": false,
		"noext":     false,
	} {
		if got := cfg.ExtensionAllowed(name); got != want {
			t.Fatalf("ExtensionAllowed(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	path := filepath.Join(dir, "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config failed to load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample file to exist")
	}
	if cfg.Workers.RetainCompleted != 10 || cfg.Workers.RetainFailed != 5 {
		t.Fatalf("unexpected retention from sample: %+v", cfg.Workers)
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.WorkDir = filepath.Join(base, "work")
	cfg.Storage.LocalDir = filepath.Join(base, "uploads")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories returned error: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.WorkDir, cfg.Storage.LocalDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
}
