// Package daemonctl lets CLI commands observe a running daemon over its HTTP
// API and fall back to reading local state when the daemon is down.
package daemonctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"vidqueue/internal/api"
	"vidqueue/internal/config"
	"vidqueue/internal/jobs"
	"vidqueue/internal/preflight"
)

// ErrDaemonNotRunning indicates the daemon API is unreachable.
var ErrDaemonNotRunning = errors.New("daemon not running")

// Snapshot is a daemon status with an indication of where it came from.
type Snapshot struct {
	api.DaemonStatus
	// Live is true when the status was served by the running daemon.
	Live bool `json:"live"`
}

// BaseURL derives the loopback URL for the configured API bind address.
// Wildcard binds are reached through 127.0.0.1.
func BaseURL(bind string) (string, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return "", errors.New("api bind address not configured")
	}
	host, port, err := net.SplitHostPort(bind)
	if err != nil {
		return "", fmt.Errorf("parse api bind %q: %w", bind, err)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port), nil
}

// FetchStatus asks the running daemon for its status. A daemon with the
// HTTP API disabled is reported as ErrDaemonNotRunning.
func FetchStatus(ctx context.Context, cfg *config.Config) (*api.DaemonStatus, error) {
	if strings.TrimSpace(cfg.Paths.APIBind) == "" {
		return nil, ErrDaemonNotRunning
	}
	base, err := BaseURL(cfg.Paths.APIBind)
	if err != nil {
		return nil, err
	}
	reqCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, base+"/api/status", nil)
	if err != nil {
		return nil, err
	}
	if token := strings.TrimSpace(cfg.Paths.APIToken); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		if isDaemonUnavailable(err) {
			return nil, ErrDaemonNotRunning
		}
		return nil, fmt.Errorf("query daemon status: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("query daemon status: unexpected status %s", resp.Status)
	}
	var status api.DaemonStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode daemon status: %w", err)
	}
	return &status, nil
}

// BuildStatusSnapshot returns the live daemon status when reachable and
// otherwise reads job counts and dependency checks locally.
func BuildStatusSnapshot(ctx context.Context, cfg *config.Config) (Snapshot, error) {
	if cfg == nil {
		return Snapshot{}, errors.New("configuration not available")
	}
	live, err := FetchStatus(ctx, cfg)
	if err == nil {
		return Snapshot{DaemonStatus: *live, Live: true}, nil
	}
	if !errors.Is(err, ErrDaemonNotRunning) {
		return Snapshot{}, err
	}

	snap := Snapshot{DaemonStatus: api.DaemonStatus{
		JobsDBPath:     cfg.JobsDBPath(),
		LockFilePath:   cfg.LockPath(),
		StorageBackend: cfg.Storage.Backend,
		QueueBackend:   cfg.Queue.Backend,
		Dependencies:   api.FromDependencies(preflight.CheckSystemDeps(cfg)),
	}}
	snap.Running, snap.PID = ProcessInfo(cfg)

	if _, statErr := os.Stat(cfg.JobsDBPath()); statErr == nil {
		queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if store, openErr := jobs.Open(cfg); openErr == nil {
			if counts, countErr := store.Counts(queryCtx); countErr == nil {
				snap.Jobs = api.MergeJobCounts(counts)
			}
			_ = store.Close()
		}
	}
	return snap, nil
}

// ProcessInfo reports whether the daemon lock is held and, if so, the PID
// recorded next to it.
func ProcessInfo(cfg *config.Config) (bool, int) {
	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return false, 0
	}
	if ok {
		_ = lock.Unlock()
		return false, 0
	}
	data, err := os.ReadFile(filepath.Join(cfg.Paths.DataDir, "vidqueue.pid"))
	if err != nil {
		return true, 0
	}
	pid, _ := strconv.Atoi(strings.TrimSpace(string(data)))
	return true, pid
}

func isDaemonUnavailable(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, context.DeadlineExceeded)
}
