package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vidqueue/internal/config"
)

// ErrAlreadyQueued is returned by Enqueue when the job already has a queued
// or active task.
var ErrAlreadyQueued = errors.New("job already queued")

// ErrStaleDelivery is returned when settling a delivery the transport no
// longer considers active (for example after it was reclaimed).
var ErrStaleDelivery = errors.New("delivery no longer active")

// Task is one Processing Job. Content is optional; when empty the worker
// fetches the original from storage.
type Task struct {
	JobID          string    `json:"job_id"`
	StoredFilename string    `json:"stored_filename"`
	Content        []byte    `json:"content,omitempty"`
	EnqueuedAt     time.Time `json:"enqueued_at"`
}

// Delivery is a Task handed to a worker. Attempt is 1-based and counts every
// delivery of the task, including the current one.
type Delivery struct {
	Task    Task
	Attempt int
	receipt string
}

// Retention bounds how many settled tasks the transport keeps.
type Retention struct {
	Completed int
	Failed    int
}

// Stats summarizes transport state.
type Stats struct {
	Queued    int `json:"queued"`
	Delayed   int `json:"delayed"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Transport moves tasks between producers and workers.
type Transport interface {
	// Enqueue accepts a task for asynchronous processing.
	Enqueue(ctx context.Context, task Task) error
	// Dequeue blocks until a task is available or ctx is done.
	Dequeue(ctx context.Context) (*Delivery, error)
	// Ack settles a delivery as processed.
	Ack(ctx context.Context, d *Delivery) error
	// Retry returns a delivery to the queue, visible again after delay.
	Retry(ctx context.Context, d *Delivery, delay time.Duration, cause error) error
	// Fail settles a delivery as permanently failed.
	Fail(ctx context.Context, d *Delivery, cause error) error
	// Heartbeat marks an active delivery as still being worked on.
	Heartbeat(ctx context.Context, d *Delivery) error
	// ReclaimStale requeues active deliveries whose last heartbeat is older than cutoff.
	ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error)
	// Recover requeues every active delivery. Call only when no worker is running.
	Recover(ctx context.Context) (int64, error)
	// Prune trims settled tasks down to the retention bounds.
	Prune(ctx context.Context, keep Retention) (int64, error)
	// Stats reports task counts per state.
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// Open constructs the transport selected by configuration.
func Open(ctx context.Context, cfg *config.Config) (Transport, error) {
	switch cfg.Queue.Backend {
	case config.QueueSQLite:
		return OpenSQLite(cfg.QueueDBPath(), cfg.PollInterval())
	case config.QueueRedis:
		return OpenRedis(ctx, RedisOptions{
			Addr:         cfg.Queue.RedisAddr,
			Password:     cfg.Queue.RedisPassword,
			DB:           cfg.Queue.RedisDB,
			Prefix:       cfg.Queue.RedisPrefix,
			PollInterval: cfg.PollInterval(),
		})
	default:
		return nil, fmt.Errorf("queue backend %q not supported", cfg.Queue.Backend)
	}
}

func causeMessage(cause error) string {
	if cause == nil {
		return ""
	}
	return cause.Error()
}
