package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"vidqueue/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Retry delays and poll intervals are shortened so pool tests run quickly.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.WorkDir = filepath.Join(base, "work")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Storage.LocalDir = filepath.Join(base, "uploads")
	cfgVal.Workers.PoolSize = 1
	cfgVal.Workers.RetryBaseDelayMillis = 10
	cfgVal.Workers.PollIntervalMillis = 20
	cfgVal.Workers.HeartbeatInterval = 1
	cfgVal.Workers.HeartbeatTimeout = 60

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithPoolSize sets the number of workers.
func WithPoolSize(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workers.PoolSize = n
	}
}

// WithMaxAttempts sets the attempt budget per job.
func WithMaxAttempts(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workers.MaxAttempts = n
	}
}

// WithAPIToken sets the bearer token required by the HTTP API.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, ffmpeg and ffprobe are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		for _, name := range names {
			WriteScript(b.t, filepath.Join(binDir, name), "exit 0\n")
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
