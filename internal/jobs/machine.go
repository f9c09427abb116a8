package jobs

import (
	"context"
	"fmt"
	"strings"
)

// Claim moves a record into processing when a worker picks up its job.
// Redelivery of a job that is already processing is accepted; a job that
// already completed yields ErrAlreadyCompleted so the caller can drop the
// duplicate.
func (s *Store) Claim(ctx context.Context, id string) (*Record, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status == StatusCompleted {
		return rec, fmt.Errorf("job %s: %w", id, ErrAlreadyCompleted)
	}
	return s.UpdateResult(ctx, id, ResultUpdate{Status: statusPtr(StatusProcessing)})
}

// Complete records a successful pipeline run. Applying the same outcome
// twice leaves the record unchanged apart from its update timestamp.
func (s *Store) Complete(ctx context.Context, id string, outcome Outcome) (*Record, error) {
	meta := outcome.Metadata
	return s.UpdateResult(ctx, id, ResultUpdate{
		Status:       statusPtr(StatusCompleted),
		LowResURL:    stringPtr(outcome.LowResURL),
		ThumbnailURL: stringPtr(outcome.ThumbnailURL),
		Metadata:     &meta,
	})
}

// Fail records a terminal failure.
func (s *Store) Fail(ctx context.Context, id string, message string) (*Record, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		message = "processing failed"
	}
	return s.UpdateResult(ctx, id, ResultUpdate{
		Status:       statusPtr(StatusFailed),
		ErrorMessage: stringPtr(message),
	})
}
