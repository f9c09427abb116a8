package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"vidqueue/internal/config"
	"vidqueue/internal/jobs"
	"vidqueue/internal/logging"
	"vidqueue/internal/notifications"
	"vidqueue/internal/pipeline"
	"vidqueue/internal/queue"
)

// Executor runs one pipeline attempt.
type Executor interface {
	Run(ctx context.Context, job pipeline.Job) (pipeline.Result, error)
}

// JobStore is the slice of the job record store the pool writes through.
type JobStore interface {
	Claim(ctx context.Context, id string) (*jobs.Record, error)
	Complete(ctx context.Context, id string, outcome jobs.Outcome) (*jobs.Record, error)
	Fail(ctx context.Context, id string, message string) (*jobs.Record, error)
}

// Manager owns the worker pool.
type Manager struct {
	cfg       *config.Config
	transport queue.Transport
	jobs      JobStore
	executor  Executor
	logger    *slog.Logger
	policy    RetryPolicy
	metrics   *Metrics
	notifier  notifications.Service

	heartbeat     *HeartbeatMonitor
	pruneInterval time.Duration
	retention     queue.Retention
	errorBackoff  time.Duration

	mu        sync.RWMutex
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	active    int
	lastErr   error
	lastJobID string
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithMetrics records pool activity in m.
func WithMetrics(m *Metrics) ManagerOption {
	return func(mgr *Manager) {
		if m != nil {
			mgr.metrics = m
		}
	}
}

// WithNotifier replaces the notifier built from configuration.
func WithNotifier(n notifications.Service) ManagerOption {
	return func(mgr *Manager) {
		if n != nil {
			mgr.notifier = n
		}
	}
}

// WithRetryPolicy overrides the policy derived from configuration.
func WithRetryPolicy(p RetryPolicy) ManagerOption {
	return func(mgr *Manager) { mgr.policy = p }
}

// NewManager constructs a new workflow manager.
func NewManager(cfg *config.Config, transport queue.Transport, store JobStore, executor Executor, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.With(logging.String(logging.FieldComponent, "workflow"))
	m := &Manager{
		cfg:       cfg,
		transport: transport,
		jobs:      store,
		executor:  executor,
		logger:    logger,
		policy:    PolicyFromConfig(cfg),
		metrics:   NewMetrics(nil),
		notifier:  notifications.NewService(cfg),
		heartbeat: NewHeartbeatMonitor(
			transport,
			logger,
			time.Duration(cfg.Workers.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Workers.HeartbeatTimeout)*time.Second,
		),
		pruneInterval: time.Duration(cfg.Workers.PruneInterval) * time.Second,
		retention: queue.Retention{
			Completed: cfg.Workers.RetainCompleted,
			Failed:    cfg.Workers.RetainFailed,
		},
		errorBackoff: max(cfg.PollInterval(), 100*time.Millisecond),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}
