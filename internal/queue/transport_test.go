package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func mustDequeue(t *testing.T, tr Transport) *Delivery {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	d, err := tr.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue returned error: %v", err)
	}
	return d
}

func mustEnqueue(t *testing.T, tr Transport, jobID string, content []byte) {
	t.Helper()
	err := tr.Enqueue(context.Background(), Task{JobID: jobID, StoredFilename: "1_" + jobID + ".mp4", Content: content})
	if err != nil {
		t.Fatalf("Enqueue(%s) returned error: %v", jobID, err)
	}
}

func mustStats(t *testing.T, tr Transport) Stats {
	t.Helper()
	stats, err := tr.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats returned error: %v", err)
	}
	return stats
}

// runTransportSuite exercises behaviour every Transport must share.
func runTransportSuite(t *testing.T, open func(t *testing.T) Transport) {
	t.Run("ack", func(t *testing.T) {
		tr := open(t)
		ctx := context.Background()
		mustEnqueue(t, tr, "job-a", []byte("video-bytes"))

		d := mustDequeue(t, tr)
		if d.Task.JobID != "job-a" || string(d.Task.Content) != "video-bytes" || d.Attempt != 1 {
			t.Fatalf("unexpected delivery: %+v", d)
		}
		if err := tr.Heartbeat(ctx, d); err != nil {
			t.Fatalf("Heartbeat returned error: %v", err)
		}
		if err := tr.Ack(ctx, d); err != nil {
			t.Fatalf("Ack returned error: %v", err)
		}
		if stats := mustStats(t, tr); stats.Completed != 1 || stats.Active != 0 || stats.Queued != 0 {
			t.Fatalf("unexpected stats after ack: %+v", stats)
		}
		if err := tr.Ack(ctx, d); !errors.Is(err, ErrStaleDelivery) {
			t.Fatalf("expected ErrStaleDelivery on double ack, got %v", err)
		}
	})

	t.Run("one pending task per job", func(t *testing.T) {
		tr := open(t)
		ctx := context.Background()
		mustEnqueue(t, tr, "job-b", nil)
		if err := tr.Enqueue(ctx, Task{JobID: "job-b", StoredFilename: "x.mp4"}); !errors.Is(err, ErrAlreadyQueued) {
			t.Fatalf("expected ErrAlreadyQueued while queued, got %v", err)
		}
		d := mustDequeue(t, tr)
		if err := tr.Enqueue(ctx, Task{JobID: "job-b", StoredFilename: "x.mp4"}); !errors.Is(err, ErrAlreadyQueued) {
			t.Fatalf("expected ErrAlreadyQueued while active, got %v", err)
		}
		if err := tr.Fail(ctx, d, errors.New("boom")); err != nil {
			t.Fatalf("Fail returned error: %v", err)
		}
		mustEnqueue(t, tr, "job-b", nil)
	})

	t.Run("retry then fail", func(t *testing.T) {
		tr := open(t)
		ctx := context.Background()
		mustEnqueue(t, tr, "job-c", []byte("payload"))

		first := mustDequeue(t, tr)
		if err := tr.Retry(ctx, first, 0, errors.New("transient")); err != nil {
			t.Fatalf("Retry returned error: %v", err)
		}
		second := mustDequeue(t, tr)
		if second.Attempt != 2 || string(second.Task.Content) != "payload" {
			t.Fatalf("unexpected redelivery: %+v", second)
		}
		if err := tr.Fail(ctx, second, errors.New("permanent")); err != nil {
			t.Fatalf("Fail returned error: %v", err)
		}
		if stats := mustStats(t, tr); stats.Failed != 1 || stats.Active != 0 {
			t.Fatalf("unexpected stats after fail: %+v", stats)
		}
	})

	t.Run("delayed retry is not visible early", func(t *testing.T) {
		tr := open(t)
		mustEnqueue(t, tr, "job-d", nil)
		d := mustDequeue(t, tr)
		if err := tr.Retry(context.Background(), d, time.Hour, errors.New("later")); err != nil {
			t.Fatalf("Retry returned error: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
		defer cancel()
		if _, err := tr.Dequeue(ctx); !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline exceeded, got %v", err)
		}
		if stats := mustStats(t, tr); stats.Delayed != 1 {
			t.Fatalf("expected one delayed task, got %+v", stats)
		}
	})

	t.Run("recover requeues active deliveries", func(t *testing.T) {
		tr := open(t)
		ctx := context.Background()
		mustEnqueue(t, tr, "job-e", nil)
		stale := mustDequeue(t, tr)

		n, err := tr.Recover(ctx)
		if err != nil || n != 1 {
			t.Fatalf("Recover = %d, %v; want 1, nil", n, err)
		}
		if err := tr.Ack(ctx, stale); !errors.Is(err, ErrStaleDelivery) {
			t.Fatalf("expected ErrStaleDelivery for recovered delivery, got %v", err)
		}
		again := mustDequeue(t, tr)
		if again.Task.JobID != "job-e" || again.Attempt != 2 {
			t.Fatalf("unexpected redelivery: %+v", again)
		}
	})

	t.Run("reclaim stale heartbeats", func(t *testing.T) {
		tr := open(t)
		ctx := context.Background()
		mustEnqueue(t, tr, "job-f", nil)
		mustDequeue(t, tr)

		if n, err := tr.ReclaimStale(ctx, time.Now().Add(-time.Hour)); err != nil || n != 0 {
			t.Fatalf("fresh heartbeat must not be reclaimed: %d, %v", n, err)
		}
		if n, err := tr.ReclaimStale(ctx, time.Now().Add(time.Minute)); err != nil || n != 1 {
			t.Fatalf("ReclaimStale = %d, %v; want 1, nil", n, err)
		}
		if stats := mustStats(t, tr); stats.Active != 0 || stats.Queued != 1 {
			t.Fatalf("unexpected stats after reclaim: %+v", stats)
		}
	})

	t.Run("prune keeps newest settled tasks", func(t *testing.T) {
		tr := open(t)
		ctx := context.Background()
		for i := 0; i < 3; i++ {
			mustEnqueue(t, tr, fmt.Sprintf("done-%d", i), nil)
			if err := tr.Ack(ctx, mustDequeue(t, tr)); err != nil {
				t.Fatalf("Ack: %v", err)
			}
		}
		for i := 0; i < 2; i++ {
			mustEnqueue(t, tr, fmt.Sprintf("bad-%d", i), nil)
			if err := tr.Fail(ctx, mustDequeue(t, tr), errors.New("x")); err != nil {
				t.Fatalf("Fail: %v", err)
			}
		}
		removed, err := tr.Prune(ctx, Retention{Completed: 1, Failed: 0})
		if err != nil {
			t.Fatalf("Prune returned error: %v", err)
		}
		if removed != 4 {
			t.Fatalf("expected 4 pruned tasks, got %d", removed)
		}
		if stats := mustStats(t, tr); stats.Completed != 1 || stats.Failed != 0 {
			t.Fatalf("unexpected stats after prune: %+v", stats)
		}
	})
}
