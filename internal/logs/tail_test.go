package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"vidqueue/internal/logs"
)

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vidqueue.log")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func TestTailLastLines(t *testing.T) {
	path := writeLog(t, "a\nb\nc\n")

	result, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: -1, Limit: 2})
	if err != nil {
		t.Fatalf("tail returned error: %v", err)
	}
	if len(result.Lines) != 2 || result.Lines[0] != "b" || result.Lines[1] != "c" {
		t.Fatalf("unexpected lines: %#v", result.Lines)
	}
	if result.Offset != 6 {
		t.Fatalf("expected offset 6, got %d", result.Offset)
	}
}

func TestTailMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.log")
	result, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: -1, Limit: 10})
	if err != nil {
		t.Fatalf("tail returned error: %v", err)
	}
	if len(result.Lines) != 0 || result.Offset != 0 {
		t.Fatalf("expected empty result, got %#v", result)
	}
}

func TestTailFiltersByJob(t *testing.T) {
	content := "2026-01-02 10:00:00 INFO [workflow] job started job_id=aaa\n" +
		"2026-01-02 10:00:01 INFO [workflow] job started job_id=bbb\n" +
		`{"ts":"2026-01-02T10:00:02Z","level":"error","msg":"job failed","job_id":"aaa"}` + "\n"
	path := writeLog(t, content)

	result, err := logs.Tail(context.Background(), path, logs.TailOptions{
		Offset: -1,
		Limit:  10,
		Filter: logs.Filter{JobID: "aaa"},
	})
	if err != nil {
		t.Fatalf("tail returned error: %v", err)
	}
	if len(result.Lines) != 2 {
		t.Fatalf("expected 2 lines for job aaa, got %#v", result.Lines)
	}

	result, err = logs.Tail(context.Background(), path, logs.TailOptions{
		Offset: 0,
		Filter: logs.Filter{JobID: "aaa", Level: "error"},
	})
	if err != nil {
		t.Fatalf("tail returned error: %v", err)
	}
	if len(result.Lines) != 1 || result.Lines[0][0] != '{' {
		t.Fatalf("expected the JSON error line, got %#v", result.Lines)
	}
}

func TestTailResetsOffsetAfterTruncate(t *testing.T) {
	path := writeLog(t, "fresh\n")
	result, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: 4096})
	if err != nil {
		t.Fatalf("tail returned error: %v", err)
	}
	if len(result.Lines) != 1 || result.Lines[0] != "fresh" {
		t.Fatalf("expected to reread truncated file, got %#v", result.Lines)
	}
}

func TestTailFollowWaits(t *testing.T) {
	path := writeLog(t, "start\n")

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	result, err := logs.Tail(ctx, path, logs.TailOptions{Offset: -1, Limit: 1})
	if err != nil {
		t.Fatalf("initial tail: %v", err)
	}
	if len(result.Lines) != 1 {
		t.Fatalf("expected initial line, got %#v", result.Lines)
	}

	done := make(chan struct{})
	go func(offset int64) {
		defer close(done)
		res, err := logs.Tail(ctx, path, logs.TailOptions{Offset: offset, Follow: true, Wait: 5 * time.Second})
		if err != nil {
			t.Errorf("follow tail error: %v", err)
		}
		if len(res.Lines) != 1 || res.Lines[0] != "later" {
			t.Errorf("unexpected follow lines: %#v", res.Lines)
		}
	}(result.Offset)

	time.Sleep(200 * time.Millisecond)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	if _, err := f.WriteString("later\n"); err != nil {
		t.Fatalf("append log: %v", err)
	}
	_ = f.Close()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("tail follow did not return")
	}
}
