package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"vidqueue/internal/jobs"
	"vidqueue/internal/logging"
	"vidqueue/internal/notifications"
	"vidqueue/internal/pipeline"
	"vidqueue/internal/queue"
	"vidqueue/internal/services"
)

// Start begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if m.transport == nil || m.jobs == nil || m.executor == nil {
		m.mu.Unlock()
		return errors.New("workflow dependencies not configured")
	}
	workers := max(m.cfg.Workers.PoolSize, 1)

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(workers + 1)
	m.mu.Unlock()

	for i := 1; i <= workers; i++ {
		go m.runWorker(runCtx, i)
	}
	go m.runMaintenance(runCtx)

	m.logger.Info("workflow started",
		logging.Int("workers", workers),
		logging.Int("max_attempts", m.policy.MaxAttempts),
		logging.Duration("retry_base_delay", m.policy.BaseDelay),
	)
	return nil
}

// Stop stops taking new deliveries and waits for in-flight jobs to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("workflow stopped")
}

func (m *Manager) runWorker(ctx context.Context, worker int) {
	defer m.wg.Done()
	logger := m.logger.With(logging.Int(logging.FieldWorker, worker))

	for {
		d, err := m.transport.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.setLastError(err)
			logger.Error("failed to fetch next delivery",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_fetch_failed"),
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(m.errorBackoff):
			}
			continue
		}
		// In-flight jobs are drained on shutdown, not aborted.
		m.process(context.WithoutCancel(ctx), logger, d)
	}
}

// process runs one delivery to a resolution.
func (m *Manager) process(ctx context.Context, logger *slog.Logger, d *queue.Delivery) {
	jobID := d.Task.JobID
	ctx = services.WithAttempt(services.WithJobID(ctx, jobID), d.Attempt)
	logger = logging.WithContext(ctx, logger)

	m.trackActive(jobID, 1)
	defer m.trackActive(jobID, -1)

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, d)
	defer func() {
		stopHeartbeat()
		hbWG.Wait()
	}()

	if _, err := m.jobs.Claim(ctx, jobID); err != nil {
		switch {
		case errors.Is(err, jobs.ErrAlreadyCompleted):
			logger.Info("duplicate delivery of completed job acknowledged",
				logging.String(logging.FieldEventType, "duplicate_delivery"))
			m.settle(ctx, logger, m.transport.Ack(ctx, d))
			m.metrics.Deliveries.WithLabelValues(OutcomeDuplicate).Inc()
		case errors.Is(err, services.ErrRecordNotFound):
			logger.Warn("delivery references unknown job; dropping",
				logging.String(logging.FieldErrorKind, string(services.KindRecordNotFound)))
			m.settle(ctx, logger, m.transport.Fail(ctx, d, err))
			m.metrics.Deliveries.WithLabelValues(OutcomeOrphaned).Inc()
		default:
			m.resolveFailure(ctx, logger, d, fmt.Errorf("claim job: %w", err))
		}
		return
	}

	if d.Attempt > m.policy.MaxAttempts {
		// Requeued only because the terminal failure could not be written.
		m.resolveFailure(ctx, logger, d, services.Wrap(services.ErrTransient, "workflow", "claim",
			fmt.Sprintf("abandoned after %d attempts", m.policy.MaxAttempts), nil))
		return
	}

	logger.Info("job processing started",
		logging.String(logging.FieldEventType, "job_start"),
		logging.String("stored_filename", d.Task.StoredFilename),
	)
	started := time.Now()
	result, err := m.executor.Run(ctx, pipeline.Job{
		ID:             jobID,
		StoredFilename: d.Task.StoredFilename,
		Content:        d.Task.Content,
	})
	m.metrics.RunDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		m.resolveFailure(ctx, logger, d, err)
		return
	}

	rec, err := m.jobs.Complete(ctx, jobID, result.Outcome())
	if err != nil {
		m.resolveFailure(ctx, logger, d, fmt.Errorf("record completion: %w", err))
		return
	}
	m.settle(ctx, logger, m.transport.Ack(ctx, d))
	m.metrics.Deliveries.WithLabelValues(OutcomeCompleted).Inc()
	elapsed := time.Since(started)
	logger.Info("job completed",
		logging.String(logging.FieldEventType, "job_complete"),
		logging.Duration("elapsed", elapsed),
	)
	m.notify(ctx, logger, notifications.EventJobCompleted, notifications.Payload{
		"jobID":   jobID,
		"name":    rec.OriginalName,
		"elapsed": elapsed,
	})
}

// resolveFailure either schedules a redelivery or records the terminal failure.
func (m *Manager) resolveFailure(ctx context.Context, logger *slog.Logger, d *queue.Delivery, cause error) {
	m.setLastError(cause)
	kind := services.KindOf(cause)
	if m.policy.ShouldRetry(d.Attempt, cause) {
		delay := m.policy.Backoff(d.Attempt)
		logger.Warn("job attempt failed; retry scheduled",
			logging.String(logging.FieldEventType, "job_retry"),
			logging.String(logging.FieldErrorKind, string(kind)),
			logging.String(logging.FieldStep, pipeline.FailedStep(cause)),
			logging.Duration("delay", delay),
			logging.Int("max_attempts", m.policy.MaxAttempts),
			logging.Error(cause),
		)
		m.settle(ctx, logger, m.transport.Retry(ctx, d, delay, cause))
		m.metrics.Deliveries.WithLabelValues(OutcomeRetried).Inc()
		return
	}

	logger.Error("job failed",
		logging.String(logging.FieldEventType, "job_failure"),
		logging.String(logging.FieldErrorKind, string(kind)),
		logging.String(logging.FieldStep, pipeline.FailedStep(cause)),
		logging.Error(cause),
	)
	payload := notifications.Payload{"jobID": d.Task.JobID, "error": failureMessage(cause)}
	rec, err := m.recordFailure(ctx, d.Task.JobID, failureMessage(cause))
	switch {
	case err == nil:
		payload["name"] = rec.OriginalName
	case errors.Is(err, jobs.ErrAlreadyCompleted):
		logger.Info("failed delivery of completed job acknowledged",
			logging.String(logging.FieldEventType, "duplicate_delivery"))
		m.settle(ctx, logger, m.transport.Ack(ctx, d))
		m.metrics.Deliveries.WithLabelValues(OutcomeDuplicate).Inc()
		return
	case errors.Is(err, services.ErrRecordNotFound):
		logger.Warn("failed job has no record", logging.Error(err))
	default:
		// The task stays queued so a later delivery writes the terminal state.
		m.setLastError(err)
		delay := m.policy.Backoff(d.Attempt)
		logger.Error("failed to persist job failure; delivery requeued",
			logging.String(logging.FieldEventType, "job_failure_unpersisted"),
			logging.Duration("delay", delay),
			logging.Error(err),
		)
		m.settle(ctx, logger, m.transport.Retry(ctx, d, delay, cause))
		m.metrics.Deliveries.WithLabelValues(OutcomeRetried).Inc()
		return
	}
	m.settle(ctx, logger, m.transport.Fail(ctx, d, cause))
	m.metrics.Deliveries.WithLabelValues(OutcomeFailed).Inc()
	m.notify(ctx, logger, notifications.EventJobFailed, payload)
}

// recordFailure writes the terminal failure. A record whose claim never
// persisted is moved through processing first.
func (m *Manager) recordFailure(ctx context.Context, id, message string) (*jobs.Record, error) {
	rec, err := m.jobs.Fail(ctx, id, message)
	if !errors.Is(err, jobs.ErrInvalidTransition) {
		return rec, err
	}
	if _, err := m.jobs.Claim(ctx, id); err != nil {
		return nil, err
	}
	return m.jobs.Fail(ctx, id, message)
}

// notify publishes an outcome event. Delivery problems never affect the job.
func (m *Manager) notify(ctx context.Context, logger *slog.Logger, event notifications.Event, payload notifications.Payload) {
	if err := m.notifier.Publish(ctx, event, payload); err != nil {
		logger.Warn("notification failed",
			logging.String(logging.FieldEventType, "notify_failed"),
			logging.String("event", string(event)),
			logging.Error(err),
		)
	}
}

// settle logs a failed Ack/Retry/Fail. A stale delivery means the lease was
// reclaimed and another worker owns the job now.
func (m *Manager) settle(_ context.Context, logger *slog.Logger, err error) {
	switch {
	case err == nil:
	case errors.Is(err, queue.ErrStaleDelivery):
		logger.Warn("delivery already reclaimed; result kept, queue state unchanged", logging.Error(err))
	default:
		m.setLastError(err)
		logger.Error("failed to settle delivery", logging.Error(err))
	}
}

func failureMessage(err error) string {
	if err == nil {
		return ""
	}
	return strings.TrimSpace(err.Error())
}

// runMaintenance reclaims stale deliveries and prunes settled tasks.
func (m *Manager) runMaintenance(ctx context.Context) {
	defer m.wg.Done()
	reclaimEvery := m.heartbeat.heartbeatInterval
	if reclaimEvery <= 0 {
		reclaimEvery = time.Minute
	}
	reclaim := time.NewTicker(reclaimEvery)
	defer reclaim.Stop()
	pruneEvery := m.pruneInterval
	if pruneEvery <= 0 {
		pruneEvery = time.Minute
	}
	prune := time.NewTicker(pruneEvery)
	defer prune.Stop()

	m.Maintain(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-reclaim.C:
			m.reclaim(ctx)
		case <-prune.C:
			m.Maintain(ctx)
		}
	}
}

func (m *Manager) reclaim(ctx context.Context) {
	n, err := m.heartbeat.ReclaimStale(ctx)
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Warn("reclaim stale deliveries failed", logging.Error(err))
		}
		return
	}
	m.metrics.Reclaimed.Add(float64(n))
}

// Maintain runs one reclaim and retention pass and refreshes queue gauges.
func (m *Manager) Maintain(ctx context.Context) {
	m.reclaim(ctx)
	pruned, err := m.transport.Prune(ctx, m.retention)
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Warn("queue retention pass failed", logging.Error(err))
		}
		return
	}
	if pruned > 0 {
		m.metrics.PrunedTasks.Add(float64(pruned))
		m.logger.Debug("pruned settled queue tasks", logging.Int64("count", pruned))
	}
	if stats, err := m.transport.Stats(ctx); err == nil {
		m.metrics.observeQueue(stats)
	}
}
