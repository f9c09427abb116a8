package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"vidqueue/internal/config"
	"vidqueue/internal/deps"
	"vidqueue/internal/queue"
	"vidqueue/internal/services"
	"vidqueue/internal/storage"
)

// storageCheckTimeout bounds a single backend health probe.
const storageCheckTimeout = 10 * time.Second

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if path == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckStorage runs the gateway health check with a bounded timeout.
func CheckStorage(ctx context.Context, gateway storage.Gateway) Result {
	name := "Storage (" + gateway.Backend() + ")"
	checkCtx, cancel := context.WithTimeout(ctx, storageCheckTimeout)
	defer cancel()
	if err := gateway.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeStorageError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "reachable"}
}

// CheckQueue verifies the queue transport answers a stats query.
func CheckQueue(ctx context.Context, backend string, transport queue.Transport) Result {
	name := "Queue (" + backend + ")"
	checkCtx, cancel := context.WithTimeout(ctx, storageCheckTimeout)
	defer cancel()
	stats, err := transport.Stats(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d queued, %d active", stats.Queued+stats.Delayed, stats.Active)}
}

// CheckSystemDeps evaluates the media toolkit binaries for the given config.
// Both the daemon and the CLI check command use this to avoid duplicating the
// requirements list.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	return deps.CheckMedia(cfg.Media)
}

func summarizeStorageError(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "health check timed out (backend unresponsive)"
	case errors.Is(err, services.ErrPermissionDenied):
		return "permission denied: " + err.Error()
	case errors.Is(err, services.ErrStorageNotFound):
		return "missing: " + err.Error()
	default:
		return err.Error()
	}
}
