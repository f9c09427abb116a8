package api

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vidqueue/internal/config"
	"vidqueue/internal/jobs"
	"vidqueue/internal/queue"
	"vidqueue/internal/services"
	"vidqueue/internal/storage"
	"vidqueue/internal/testsupport"
)

type fixture struct {
	cfg       *config.Config
	store     *jobs.Store
	gateway   storage.Gateway
	transport queue.Transport
	svc       *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	f := &fixture{
		cfg:       cfg,
		store:     testsupport.MustOpenJobs(t, cfg),
		gateway:   testsupport.MustOpenStorage(t, cfg),
		transport: testsupport.MustOpenQueue(t, cfg),
	}
	f.svc = NewService(cfg, f.store, f.gateway, f.transport, nil)
	f.svc.now = func() time.Time { return time.UnixMilli(1700000000123) }
	f.svc.keyToken = func() string { return "k1" }
	return f
}

func (f *fixture) dequeue(t *testing.T) *queue.Delivery {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	d, err := f.transport.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue returned error: %v", err)
	}
	return d
}

func (f *fixture) failedJob(t *testing.T, name string) *jobs.Record {
	t.Helper()
	ctx := context.Background()
	rec := testsupport.NewJob(t, f.store, name)
	if _, err := f.store.Claim(ctx, rec.ID); err != nil {
		t.Fatal(err)
	}
	failed, err := f.store.Fail(ctx, rec.ID, "transcode failed: toolkit failure")
	if err != nil {
		t.Fatal(err)
	}
	return failed
}

func TestSubmitStoresOriginalAndEnqueues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	job, err := f.svc.Submit(ctx, SubmitRequest{Name: "clip.mp4", Content: []byte("video bytes")})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if job.Status != string(jobs.StatusUploading) {
		t.Fatalf("unexpected status %q", job.Status)
	}
	if job.StoredFilename != "1700000000123_k1_clip.mp4" {
		t.Fatalf("unexpected stored filename %q", job.StoredFilename)
	}
	if job.MimeType != "video/mp4" || job.SizeBytes != 11 || job.OriginalName != "clip.mp4" {
		t.Fatalf("unexpected job %+v", job)
	}
	if job.OriginalURL != "http://localhost:3001/uploads/1700000000123_k1_clip.mp4" {
		t.Fatalf("unexpected original url %q", job.OriginalURL)
	}

	stored, err := f.gateway.Get(ctx, job.StoredFilename)
	if err != nil || string(stored) != "video bytes" {
		t.Fatalf("original not stored: %q %v", stored, err)
	}

	d := f.dequeue(t)
	if d.Task.JobID != job.ID || d.Task.StoredFilename != job.StoredFilename || string(d.Task.Content) != "video bytes" {
		t.Fatalf("unexpected task %+v", d.Task)
	}
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)
	f.cfg.Upload.MaxFileSize = 8

	tests := []struct {
		name string
		req  SubmitRequest
		want string
	}{
		{"too large", SubmitRequest{Name: "big.mp4", Content: []byte("123456789")}, "exceeds limit"},
		{"extension", SubmitRequest{Name: "notes.txt", Content: []byte("x")}, "not allowed"},
		{"no extension", SubmitRequest{Name: "clip", Content: []byte("x")}, "not allowed"},
		{"empty", SubmitRequest{Name: "clip.mp4"}, "empty"},
		{"no name", SubmitRequest{Name: " ", Content: []byte("x")}, "name is required"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Submit(context.Background(), tc.req)
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}

	list, err := f.svc.List(context.Background(), jobs.ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Fatalf("rejected submissions must not create records, got %d", len(list))
	}
}

func TestSubmitExtensionIsCaseInsensitive(t *testing.T) {
	f := newFixture(t)
	job, err := f.svc.Submit(context.Background(), SubmitRequest{Name: "CLIP.MOV", Content: []byte("x")})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if job.MimeType != "video/quicktime" {
		t.Fatalf("unexpected mime type %q", job.MimeType)
	}
}

func TestSubmitRollsBackWhenQueueRefuses(t *testing.T) {
	f := newFixture(t)
	if err := f.transport.Close(); err != nil {
		t.Fatal(err)
	}

	_, err := f.svc.Submit(context.Background(), SubmitRequest{Name: "clip.mp4", Content: []byte("x")})
	if err == nil {
		t.Fatal("expected enqueue error")
	}
	list, err := f.store.List(context.Background(), jobs.ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Fatalf("expected record to be removed, got %d", len(list))
	}
	if ok, _ := f.gateway.Exists(context.Background(), "1700000000123_k1_clip.mp4"); ok {
		t.Fatal("expected original to be removed")
	}
}

func TestSubmitSameNameSameMillisecondKeepsBothOriginals(t *testing.T) {
	f := newFixture(t)
	f.svc.keyToken = storage.NewKeyToken
	ctx := context.Background()

	first, err := f.svc.Submit(ctx, SubmitRequest{Name: "a/clip.mp4", Content: []byte("FIRST")})
	if err != nil {
		t.Fatalf("first Submit returned error: %v", err)
	}
	second, err := f.svc.Submit(ctx, SubmitRequest{Name: "b/clip.mp4", Content: []byte("SECOND")})
	if err != nil {
		t.Fatalf("second Submit returned error: %v", err)
	}
	if first.StoredFilename == second.StoredFilename {
		t.Fatalf("expected distinct stored filenames, both %q", first.StoredFilename)
	}
	for _, tc := range []struct {
		key  string
		want string
	}{{first.StoredFilename, "FIRST"}, {second.StoredFilename, "SECOND"}} {
		got, err := f.gateway.Get(ctx, tc.key)
		if err != nil || string(got) != tc.want {
			t.Fatalf("original %s = %q (%v), want %q", tc.key, got, err, tc.want)
		}
	}
}

func TestSubmitRemovesOriginalWhenRecordFails(t *testing.T) {
	f := newFixture(t)
	if err := f.store.Close(); err != nil {
		t.Fatal(err)
	}

	_, err := f.svc.Submit(context.Background(), SubmitRequest{Name: "clip.mp4", Content: []byte("x")})
	if err == nil || !strings.Contains(err.Error(), "create job record") {
		t.Fatalf("expected record creation error, got %v", err)
	}
	if ok, _ := f.gateway.Exists(context.Background(), "1700000000123_k1_clip.mp4"); ok {
		t.Fatal("expected original to be removed")
	}
}

func TestSubmitFile(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(t.TempDir(), "holiday.mkv")
	if err := os.WriteFile(path, []byte("matroska"), 0o644); err != nil {
		t.Fatal(err)
	}

	job, err := f.svc.SubmitFile(context.Background(), path)
	if err != nil {
		t.Fatalf("SubmitFile returned error: %v", err)
	}
	if job.OriginalName != "holiday.mkv" || job.MimeType != "video/x-matroska" {
		t.Fatalf("unexpected job %+v", job)
	}

	f.cfg.Upload.MaxFileSize = 3
	if _, err := f.svc.SubmitFile(context.Background(), path); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected size validation error, got %v", err)
	}
	if _, err := f.svc.SubmitFile(context.Background(), t.TempDir()); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected directory to be rejected, got %v", err)
	}
}

func TestLinks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := testsupport.NewJob(t, f.store, "clip.mp4")

	links, err := f.svc.Links(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Links returned error: %v", err)
	}
	if !strings.HasSuffix(links.Original, "/1700000000000_clip.mp4") || links.LowRes != "" || links.Thumbnail != "" {
		t.Fatalf("unexpected links for pending job %+v", links)
	}
	if links.ExpiresIn != 900 {
		t.Fatalf("unexpected expiry %d", links.ExpiresIn)
	}

	if _, err := f.store.Claim(ctx, rec.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.store.Complete(ctx, rec.ID, jobs.Outcome{Metadata: jobs.Metadata{DurationSeconds: 30, Width: 1920, Height: 1080}}); err != nil {
		t.Fatal(err)
	}
	links, err = f.svc.Links(ctx, rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(links.LowRes, "/1700000000000_clip_low.mp4") {
		t.Fatalf("unexpected low-res link %q", links.LowRes)
	}
	if !strings.HasSuffix(links.Thumbnail, "/1700000000000_clip_thumb.jpg") {
		t.Fatalf("unexpected thumbnail link %q", links.Thumbnail)
	}

	if _, err := f.svc.Links(ctx, "missing"); !errors.Is(err, services.ErrRecordNotFound) {
		t.Fatalf("expected record not found, got %v", err)
	}
}

func TestResubmit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pending := testsupport.NewJob(t, f.store, "pending.mp4")
	if _, err := f.svc.Resubmit(ctx, pending.ID); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for non-failed job, got %v", err)
	}

	failed := f.failedJob(t, "broken.mp4")
	if _, err := f.svc.Resubmit(ctx, failed.ID); !errors.Is(err, services.ErrStorageNotFound) {
		t.Fatalf("expected missing original error, got %v", err)
	}

	if _, err := f.gateway.Put(ctx, failed.StoredFilename, []byte("video"), "video/mp4"); err != nil {
		t.Fatal(err)
	}
	job, err := f.svc.Resubmit(ctx, failed.ID)
	if err != nil {
		t.Fatalf("Resubmit returned error: %v", err)
	}
	if job.Status != string(jobs.StatusFailed) {
		t.Fatalf("record should stay failed until a worker claims it, got %q", job.Status)
	}
	if _, err := f.svc.Resubmit(ctx, failed.ID); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected already queued to be rejected, got %v", err)
	}

	d := f.dequeue(t)
	if d.Task.JobID != failed.ID || len(d.Task.Content) != 0 {
		t.Fatalf("unexpected resubmitted task %+v", d.Task)
	}
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := testsupport.NewJob(t, f.store, "clip.mp4")
	for _, key := range []string{rec.StoredFilename, storage.LowResKey(rec.StoredFilename)} {
		if _, err := f.gateway.Put(ctx, key, []byte("x"), "video/mp4"); err != nil {
			t.Fatal(err)
		}
	}

	result, err := f.svc.Delete(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if len(result.RemovedObjects) != 2 {
		t.Fatalf("expected 2 objects removed, got %v", result.RemovedObjects)
	}
	if _, err := f.store.Get(ctx, rec.ID); !errors.Is(err, services.ErrRecordNotFound) {
		t.Fatalf("record should be gone, got %v", err)
	}
	if _, err := f.svc.Delete(ctx, rec.ID); !errors.Is(err, services.ErrRecordNotFound) {
		t.Fatalf("expected record not found on second delete, got %v", err)
	}
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Submit(ctx, SubmitRequest{Name: "a.mp4", Content: []byte("x")}); err != nil {
		t.Fatal(err)
	}
	f.failedJob(t, "b.mp4")

	stats, err := f.svc.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats returned error: %v", err)
	}
	if stats.Jobs["uploading"] != 1 || stats.Jobs["failed"] != 1 || stats.Jobs["completed"] != 0 {
		t.Fatalf("unexpected job counts %v", stats.Jobs)
	}
	if _, ok := stats.Jobs["processing"]; !ok {
		t.Fatal("expected zero entries for every status")
	}
	if stats.Queue.Queued != 1 {
		t.Fatalf("unexpected queue stats %+v", stats.Queue)
	}
}
