package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vidqueue/internal/api"
	"vidqueue/internal/config"
	"vidqueue/internal/testsupport"
)

var configEnvKeys = []string{
	"STORAGE_BACKEND", "USE_LOCAL_STORAGE", "STORAGE_LOCAL_DIR", "STORAGE_PUBLIC_URL",
	"S3_ENDPOINT", "S3_BUCKET", "S3_REGION", "S3_ACCESS_KEY", "S3_SECRET_KEY", "S3_USE_SSL",
	"MAX_FILE_SIZE", "ALLOWED_VIDEO_FORMATS", "WORKER_POOL_SIZE", "RETRY_ATTEMPTS",
	"RETRY_BASE_DELAY_MS", "TARGET_HEIGHT", "QUEUE_BACKEND", "REDIS_ADDR", "REDIS_PASSWORD",
	"REDIS_DB", "LOG_LEVEL", "LOG_FORMAT", "VIDQUEUE_API_TOKEN", "NTFY_TOPIC",
}

func unsetConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range configEnvKeys {
		value, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("unset %s: %v", key, err)
		}
		t.Cleanup(func() { _ = os.Setenv(key, value) })
	}
}

type cliEnv struct {
	base       string
	configPath string
}

// newCLIEnv writes a config file rooted in a temp directory. The HTTP API is
// disabled so status falls back to local reads, and the media binaries point
// at stub scripts.
func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	unsetConfigEnv(t)

	base := t.TempDir()
	ffmpeg := testsupport.WriteScript(t, filepath.Join(base, "bin", "ffmpeg"), "exit 0\n")
	ffprobe := testsupport.WriteScript(t, filepath.Join(base, "bin", "ffprobe"), "exit 0\n")

	content := fmt.Sprintf(`[paths]
data_dir = %q
work_dir = %q
api_bind = ""
api_token = "top-secret"

[storage]
backend = "local"
local_dir = %q
public_base_url = "http://localhost:3001/uploads"

[upload]
max_file_size = 1024

[queue]
backend = "sqlite"

[media]
ffmpeg_binary = %q
ffprobe_binary = %q
`,
		filepath.Join(base, "data"),
		filepath.Join(base, "work"),
		filepath.Join(base, "uploads"),
		ffmpeg,
		ffprobe,
	)
	path := filepath.Join(base, "vidqueue.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return &cliEnv{base: base, configPath: path}
}

func (e *cliEnv) config(t *testing.T) *config.Config {
	t.Helper()
	cfg, _, _, err := config.Load(e.configPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}

func (e *cliEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return runCLI(t, args, e.configPath)
}

// writeVideo creates a small file with the given name in the env's temp dir.
func (e *cliEnv) writeVideo(t *testing.T, name string, size int64) string {
	t.Helper()
	path := filepath.Join(e.base, "inbox", name)
	testsupport.WriteFile(t, path, size)
	return path
}

func (e *cliEnv) submit(t *testing.T, path string) api.Job {
	t.Helper()
	stdout, stderr, err := e.run(t, "submit", "--json", path)
	if err != nil {
		t.Fatalf("submit failed: %v (stderr %q)", err, stderr)
	}
	var resp struct {
		Jobs []api.Job `json:"jobs"`
	}
	if err := json.Unmarshal([]byte(stdout), &resp); err != nil {
		t.Fatalf("decode submit output %q: %v", stdout, err)
	}
	if len(resp.Jobs) != 1 {
		t.Fatalf("expected one submitted job, got %+v", resp.Jobs)
	}
	return resp.Jobs[0]
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
