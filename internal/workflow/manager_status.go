package workflow

import (
	"context"

	"vidqueue/internal/logging"
	"vidqueue/internal/queue"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running    bool        `json:"running"`
	Workers    int         `json:"workers"`
	ActiveJobs int         `json:"active_jobs"`
	LastError  string      `json:"last_error,omitempty"`
	LastJobID  string      `json:"last_job_id,omitempty"`
	Queue      queue.Stats `json:"queue"`
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{
		Running:    m.running,
		Workers:    max(m.cfg.Workers.PoolSize, 1),
		ActiveJobs: m.active,
		LastJobID:  m.lastJobID,
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	m.mu.RUnlock()

	stats, err := m.transport.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read queue stats", logging.Error(err))
	}
	summary.Queue = stats
	return summary
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) trackActive(jobID string, delta int) {
	m.mu.Lock()
	m.active += delta
	if delta > 0 {
		m.lastJobID = jobID
	}
	m.mu.Unlock()
	m.metrics.ActiveJobs.Add(float64(delta))
}
