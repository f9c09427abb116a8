package jobs_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"vidqueue/internal/jobs"
	"vidqueue/internal/services"
)

func openStore(t *testing.T) *jobs.Store {
	t.Helper()
	store, err := jobs.OpenPath(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("OpenPath returned error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func createJob(t *testing.T, store *jobs.Store, stored string) *jobs.Record {
	t.Helper()
	rec, err := store.Create(context.Background(), jobs.NewRecord{
		OriginalName:   "clip.mp4",
		StoredFilename: stored,
		SizeBytes:      1024,
		MimeType:       "video/mp4",
		OriginalURL:    "http://localhost:3001/uploads/" + stored,
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	return rec
}

func TestCreateAndGet(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	rec := createJob(t, store, "1700000000000_clip.mp4")
	if rec.ID == "" || rec.Status != jobs.StatusUploading {
		t.Fatalf("unexpected new record: %+v", rec)
	}

	got, err := store.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got.StoredFilename != rec.StoredFilename || got.SizeBytes != 1024 || got.MimeType != "video/mp4" {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.Metadata != nil || got.ErrorMessage != "" {
		t.Fatalf("new record must not carry metadata or error: %+v", got)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Fatalf("expected timestamps, got %+v", got)
	}
}

func TestCreateRejectsBlankNames(t *testing.T) {
	store := openStore(t)
	_, err := store.Create(context.Background(), jobs.NewRecord{OriginalName: "clip.mp4"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGetUnknownReturnsRecordNotFound(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	if _, err := store.Get(ctx, "missing"); !errors.Is(err, services.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
	if _, err := store.Claim(ctx, "missing"); !errors.Is(err, services.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound from Claim, got %v", err)
	}
	if err := store.Delete(ctx, "missing"); !errors.Is(err, services.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound from Delete, got %v", err)
	}
}

func TestLifecycleCompleted(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	rec := createJob(t, store, "1_a.mp4")

	claimed, err := store.Claim(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Claim returned error: %v", err)
	}
	if claimed.Status != jobs.StatusProcessing {
		t.Fatalf("expected processing, got %s", claimed.Status)
	}

	outcome := jobs.Outcome{
		LowResURL:    "http://localhost:3001/uploads/1_a_low.mp4",
		ThumbnailURL: "http://localhost:3001/uploads/1_a_thumb.jpg",
		Metadata:     jobs.Metadata{DurationSeconds: 30, Width: 1920, Height: 1080},
	}
	first, err := store.Complete(ctx, rec.ID, outcome)
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	second, err := store.Complete(ctx, rec.ID, outcome)
	if err != nil {
		t.Fatalf("duplicate Complete returned error: %v", err)
	}

	for _, got := range []*jobs.Record{first, second} {
		if got.Status != jobs.StatusCompleted || got.Metadata == nil || *got.Metadata != outcome.Metadata {
			t.Fatalf("unexpected completed record: %+v", got)
		}
		if got.LowResURL != outcome.LowResURL || got.ThumbnailURL != outcome.ThumbnailURL || got.ErrorMessage != "" {
			t.Fatalf("unexpected outputs: %+v", got)
		}
	}
	if *first.Metadata != *second.Metadata || first.LowResURL != second.LowResURL || first.Status != second.Status {
		t.Fatalf("duplicate completion changed record: %+v vs %+v", first, second)
	}

	if _, err := store.Claim(ctx, rec.ID); !errors.Is(err, jobs.ErrAlreadyCompleted) {
		t.Fatalf("expected ErrAlreadyCompleted on redelivery, got %v", err)
	}
	if _, err := store.Fail(ctx, rec.ID, "late failure"); !errors.Is(err, jobs.ErrInvalidTransition) {
		t.Fatalf("completed record must not become failed, got %v", err)
	}
}

func TestLifecycleFailedAndResubmitted(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	rec := createJob(t, store, "2_b.mp4")

	if _, err := store.Claim(ctx, rec.ID); err != nil {
		t.Fatalf("Claim returned error: %v", err)
	}
	failed, err := store.Fail(ctx, rec.ID, "input defect: probe: no video stream")
	if err != nil {
		t.Fatalf("Fail returned error: %v", err)
	}
	if failed.Status != jobs.StatusFailed || failed.ErrorMessage == "" {
		t.Fatalf("unexpected failed record: %+v", failed)
	}
	if failed.Metadata != nil || failed.LowResURL != "" || failed.ThumbnailURL != "" {
		t.Fatalf("failed record must not expose outputs: %+v", failed)
	}

	reclaimed, err := store.Claim(ctx, rec.ID)
	if err != nil {
		t.Fatalf("re-submission Claim returned error: %v", err)
	}
	if reclaimed.Status != jobs.StatusProcessing || reclaimed.ErrorMessage != "" {
		t.Fatalf("expected error cleared on re-run, got %+v", reclaimed)
	}
}

func TestFailDefaultsMessage(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	rec := createJob(t, store, "3_c.mp4")
	if _, err := store.Claim(ctx, rec.ID); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	failed, err := store.Fail(ctx, rec.ID, "  ")
	if err != nil {
		t.Fatalf("Fail returned error: %v", err)
	}
	if failed.ErrorMessage == "" {
		t.Fatal("expected non-empty error message")
	}
}

func TestUpdateStatusValidatesTransitions(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	rec := createJob(t, store, "4_d.mp4")

	if _, err := store.UpdateStatus(ctx, rec.ID, jobs.Status("archived")); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for unknown status, got %v", err)
	}
	if _, err := store.UpdateStatus(ctx, rec.ID, jobs.StatusCompleted); !errors.Is(err, jobs.ErrInvalidTransition) {
		t.Fatalf("uploading -> completed must be rejected, got %v", err)
	}
	if _, err := store.UpdateStatus(ctx, rec.ID, jobs.StatusProcessing); err != nil {
		t.Fatalf("uploading -> processing returned error: %v", err)
	}
	if _, err := store.UpdateStatus(ctx, rec.ID, jobs.StatusCompleted); err == nil {
		t.Fatal("completed without metadata must be rejected")
	}
}

func TestListAndCounts(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	a := createJob(t, store, "5_a.mp4")
	createJob(t, store, "5_b.mp4")
	createJob(t, store, "5_c.mp4")
	if _, err := store.Claim(ctx, a.ID); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	uploading, err := store.ListByStatus(ctx, jobs.StatusUploading)
	if err != nil {
		t.Fatalf("ListByStatus returned error: %v", err)
	}
	if len(uploading) != 2 {
		t.Fatalf("expected 2 uploading records, got %d", len(uploading))
	}

	page, err := store.List(ctx, jobs.ListOptions{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(page) != 1 {
		t.Fatalf("expected 1 record on second page, got %d", len(page))
	}

	counts, err := store.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts returned error: %v", err)
	}
	if counts[jobs.StatusUploading] != 2 || counts[jobs.StatusProcessing] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}

	if err := store.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, err := store.Get(ctx, a.ID); !errors.Is(err, services.ErrRecordNotFound) {
		t.Fatalf("expected deleted record to be gone, got %v", err)
	}
}
