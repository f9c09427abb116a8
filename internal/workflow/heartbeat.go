package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"vidqueue/internal/logging"
	"vidqueue/internal/queue"
)

// HeartbeatMonitor keeps active deliveries alive and returns abandoned ones
// to the queue.
type HeartbeatMonitor struct {
	transport         queue.Transport
	logger            *slog.Logger
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
}

// NewHeartbeatMonitor creates a new monitor.
func NewHeartbeatMonitor(transport queue.Transport, logger *slog.Logger, interval, timeout time.Duration) *HeartbeatMonitor {
	return &HeartbeatMonitor{
		transport:         transport,
		logger:            logger,
		heartbeatInterval: interval,
		heartbeatTimeout:  timeout,
	}
}

// ReclaimStale requeues deliveries whose heartbeat is older than the timeout.
func (h *HeartbeatMonitor) ReclaimStale(ctx context.Context) (int64, error) {
	if h.heartbeatTimeout <= 0 {
		return 0, nil
	}
	reclaimed, err := h.transport.ReclaimStale(ctx, time.Now().Add(-h.heartbeatTimeout))
	if err != nil {
		return 0, err
	}
	if reclaimed > 0 {
		h.logger.Warn("reclaimed stale deliveries",
			logging.Int64("count", reclaimed),
			logging.String(logging.FieldEventType, "heartbeat_reclaim"),
		)
	}
	return reclaimed, nil
}

// StartLoop refreshes the heartbeat of d until ctx is cancelled.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, wg *sync.WaitGroup, d *queue.Delivery) {
	defer wg.Done()
	if h.heartbeatInterval <= 0 {
		return
	}
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, h.logger.With(logging.String(logging.FieldComponent, "workflow-heartbeat")))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := h.transport.Heartbeat(ctx, d)
			switch {
			case err == nil:
			case errors.Is(err, context.Canceled):
				return
			case errors.Is(err, queue.ErrStaleDelivery):
				logger.Warn("delivery lease lost; job may run again elsewhere", logging.Error(err))
				return
			default:
				logger.Warn("heartbeat update failed", logging.Error(err))
			}
		}
	}
}
