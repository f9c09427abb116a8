package workflow

import (
	"errors"
	"testing"
	"time"

	"vidqueue/internal/services"
)

func TestBackoffDoubles(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, BaseDelay: 2 * time.Second}
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	for i, w := range want {
		if got := p.Backoff(i + 1); got != w {
			t.Fatalf("Backoff(%d) = %s, want %s", i+1, got, w)
		}
	}
	if got := p.Backoff(0); got != 2*time.Second {
		t.Fatalf("Backoff(0) = %s", got)
	}
}

func TestShouldRetry(t *testing.T) {
	toolkit := services.Wrap(services.ErrToolkitFailure, "transcode", "ffmpeg", "", nil)
	defect := services.Wrap(services.ErrInputDefect, "probe", "ffprobe", "", nil)
	storage := services.Wrap(services.ErrStorageUnavailable, "upload", "put", "", nil)
	plain := errors.New("disk hiccup")

	tests := []struct {
		name      string
		policy    RetryPolicy
		attempt   int
		err       error
		wantRetry bool
	}{
		{"toolkit first attempt", RetryPolicy{MaxAttempts: 3}, 1, toolkit, true},
		{"storage second attempt", RetryPolicy{MaxAttempts: 3}, 2, storage, true},
		{"unmarked error", RetryPolicy{MaxAttempts: 3}, 1, plain, true},
		{"attempts exhausted", RetryPolicy{MaxAttempts: 3}, 3, toolkit, false},
		{"input defect", RetryPolicy{MaxAttempts: 3}, 1, defect, false},
		{"input defect blunt policy", RetryPolicy{MaxAttempts: 3, RetryPermanent: true}, 1, defect, true},
		{"blunt policy still bounded", RetryPolicy{MaxAttempts: 3, RetryPermanent: true}, 3, defect, false},
		{"single attempt", RetryPolicy{MaxAttempts: 1}, 1, toolkit, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.policy.ShouldRetry(tc.attempt, tc.err); got != tc.wantRetry {
				t.Fatalf("ShouldRetry = %v, want %v", got, tc.wantRetry)
			}
		})
	}
}
