package services_test

import (
	"context"
	"testing"

	"vidqueue/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithJobID(ctx, "0b7c")
	ctx = services.WithStep(ctx, "transcode")
	ctx = services.WithAttempt(ctx, 3)
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.JobIDFromContext(ctx); !ok || id != "0b7c" {
		t.Fatalf("unexpected job id: %v %v", id, ok)
	}
	if step, ok := services.StepFromContext(ctx); !ok || step != "transcode" {
		t.Fatalf("unexpected step: %v %v", step, ok)
	}
	if attempt, ok := services.AttemptFromContext(ctx); !ok || attempt != 3 {
		t.Fatalf("unexpected attempt: %v %v", attempt, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStep(ctx, "")
	ctx = services.WithJobID(ctx, "")
	ctx = services.WithAttempt(ctx, 0)
	if _, ok := services.StepFromContext(ctx); ok {
		t.Fatal("expected no step value")
	}
	if _, ok := services.JobIDFromContext(ctx); ok {
		t.Fatal("expected no job id value")
	}
	if _, ok := services.AttemptFromContext(ctx); ok {
		t.Fatal("expected no attempt value")
	}
}
