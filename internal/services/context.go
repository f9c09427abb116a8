package services

import "context"

type contextKey string

const (
	jobIDKey     contextKey = "job_id"
	stepKey      contextKey = "step"
	attemptKey   contextKey = "attempt"
	requestIDKey contextKey = "request_id"
)

// WithJobID annotates context with the job identifier.
func WithJobID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, jobIDKey, id)
}

// JobIDFromContext extracts the job identifier if present.
func JobIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(jobIDKey).(string)
	return v, ok && v != ""
}

// WithStep annotates context with the pipeline step name.
func WithStep(ctx context.Context, step string) context.Context {
	if step == "" {
		return ctx
	}
	return context.WithValue(ctx, stepKey, step)
}

// StepFromContext returns the step name if present.
func StepFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(stepKey).(string)
	return v, ok && v != ""
}

// WithAttempt annotates context with the 1-based delivery attempt.
func WithAttempt(ctx context.Context, attempt int) context.Context {
	if attempt <= 0 {
		return ctx
	}
	return context.WithValue(ctx, attemptKey, attempt)
}

// AttemptFromContext returns the delivery attempt if present.
func AttemptFromContext(ctx context.Context) (int, bool) {
	v, ok := ctx.Value(attemptKey).(int)
	return v, ok
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(requestIDKey).(string)
	return v, ok && v != ""
}
