package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"

	"vidqueue/internal/api"
	"vidqueue/internal/config"
	"vidqueue/internal/deps"
	"vidqueue/internal/jobs"
	"vidqueue/internal/logging"
	"vidqueue/internal/preflight"
	"vidqueue/internal/queue"
	"vidqueue/internal/staging"
	"vidqueue/internal/storage"
	"vidqueue/internal/workflow"
)

// staleRunAge is how old a leftover pipeline run directory must be before
// startup removes it.
const staleRunAge = time.Hour

// Components are the collaborators the daemon coordinates.
type Components struct {
	Jobs      *jobs.Store
	Transport queue.Transport
	Storage   storage.Gateway
	Workflow  *workflow.Manager
	Service   *api.Service
	Gatherer  prometheus.Gatherer
}

// Daemon coordinates the background processing services and enforces
// single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	comp   Components

	lockPath string
	lock     *flock.Flock

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
	api     *apiServer
	deps    []deps.Status

	// checkDeps is replaceable so tests do not need ffmpeg on PATH.
	checkDeps func(*config.Config) []deps.Status
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, comp Components, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || comp.Jobs == nil || comp.Transport == nil || comp.Storage == nil || comp.Workflow == nil || comp.Service == nil {
		return nil, errors.New("daemon requires config, job store, transport, storage, workflow manager, and service")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		comp:      comp,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
		checkDeps: preflight.CheckSystemDeps,
	}, nil
}

// Start acquires the daemon lock, recovers crash leftovers, verifies
// dependencies and launches the worker pool and HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another vidqueue daemon instance is already running")
	}

	if err := d.prepare(ctx); err != nil {
		_ = d.lock.Unlock()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.comp.Workflow.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}

	srv := newAPIServer(d.cfg, d, d.logger)
	if err := srv.start(runCtx); err != nil {
		cancel()
		d.comp.Workflow.Stop()
		_ = d.lock.Unlock()
		return err
	}

	d.api = srv
	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("vidqueue daemon started",
		logging.String(logging.FieldEventType, "daemon_start"),
		logging.String("lock", d.lockPath),
		logging.String("storage_backend", d.comp.Storage.Backend()),
		logging.String("queue_backend", d.cfg.Queue.Backend),
	)
	return nil
}

// prepare runs the startup checks that must pass before workers start.
func (d *Daemon) prepare(ctx context.Context) error {
	recovered, err := d.comp.Transport.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recover queue: %w", err)
	}
	if recovered > 0 {
		d.logger.Warn("requeued deliveries left active by a previous run",
			logging.String(logging.FieldEventType, "queue_recovered"),
			logging.Int64("count", recovered),
		)
	}

	cleanup := staging.CleanStale(ctx, d.cfg.Paths.WorkDir, staleRunAge, d.logger)
	for _, failure := range cleanup.Errors {
		d.logger.Warn("stale run cleanup failed", logging.String("path", failure.Path), logging.Error(failure.Error))
	}

	d.deps = d.checkDeps(d.cfg)
	for _, dep := range d.deps {
		d.logger.Info("dependency snapshot",
			logging.String(logging.FieldEventType, "dependency_snapshot"),
			logging.String("name", dep.Name),
			logging.String("command", dep.Command),
			logging.Bool("available", dep.Available),
		)
	}
	if err := deps.DescribeMissing(deps.MissingRequired(d.deps)); err != nil {
		return err
	}

	if failed := preflight.Failed(preflight.RunAll(ctx, d.cfg, d.comp.Storage)); len(failed) > 0 {
		for _, f := range failed {
			d.logger.Error("preflight check failed", logging.String("check", f.Name), logging.String("detail", f.Detail))
		}
		return fmt.Errorf("preflight failed: %s: %s", failed[0].Name, failed[0].Detail)
	}
	return nil
}

// Stop stops the HTTP API, drains in-flight jobs and releases the lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	d.logger.Info("vidqueue daemon draining in-flight jobs")
	d.api.stop()
	d.api = nil
	d.comp.Workflow.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("vidqueue daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// Addr returns the HTTP API listen address, or "" when the API is disabled.
func (d *Daemon) Addr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.api.addr()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) api.DaemonStatus {
	status := api.DaemonStatus{
		Running:        d.running.Load(),
		PID:            os.Getpid(),
		JobsDBPath:     d.cfg.JobsDBPath(),
		LockFilePath:   d.lockPath,
		StorageBackend: d.comp.Storage.Backend(),
		QueueBackend:   d.cfg.Queue.Backend,
		Workflow:       api.FromStatusSummary(d.comp.Workflow.Status(ctx)),
		Dependencies:   api.FromDependencies(d.deps),
	}
	if counts, err := d.comp.Jobs.Counts(ctx); err == nil {
		status.Jobs = api.MergeJobCounts(counts)
	} else {
		d.logger.Warn("failed to count jobs", logging.Error(err))
	}
	return status
}
