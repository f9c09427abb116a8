package api

import (
	"testing"
	"time"

	"vidqueue/internal/deps"
	"vidqueue/internal/jobs"
)

func TestFromRecord(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 30, 0, 250_000_000, time.FixedZone("x", 3600))
	rec := &jobs.Record{
		ID:             "abc",
		OriginalName:   "clip.mp4",
		StoredFilename: "1_clip.mp4",
		Status:         jobs.StatusCompleted,
		Metadata:       &jobs.Metadata{DurationSeconds: 30, Width: 1920, Height: 1080},
		CreatedAt:      created,
	}
	dto := FromRecord(rec)
	if dto.CreatedAt != "2024-05-01T11:30:00.250Z" {
		t.Fatalf("unexpected created timestamp %q", dto.CreatedAt)
	}
	if dto.UpdatedAt != "" {
		t.Fatalf("zero timestamps should be omitted, got %q", dto.UpdatedAt)
	}
	if dto.Metadata == nil || dto.Metadata.Width != 1920 || dto.Status != "completed" {
		t.Fatalf("unexpected dto %+v", dto)
	}
	if got := FromRecord(nil); got.ID != "" {
		t.Fatalf("expected zero value for nil record")
	}
	if got := FromRecords([]*jobs.Record{nil, rec}); len(got) != 1 {
		t.Fatalf("expected nil entries skipped, got %d", len(got))
	}
}

func TestFromDependencies(t *testing.T) {
	got := FromDependencies([]deps.Status{{Name: "FFmpeg", Command: "/usr/bin/ffmpeg", Available: true}})
	if len(got) != 1 || !got[0].Available || got[0].Command != "/usr/bin/ffmpeg" {
		t.Fatalf("unexpected conversion %+v", got)
	}
}

func TestMimeTypeFor(t *testing.T) {
	tests := map[string]string{
		"a.mkv": "video/x-matroska",
		"a.AVI": "video/x-msvideo",
		"a.mov": "video/quicktime",
		"a.mp4": "video/mp4",
		"a":     "application/octet-stream",
	}
	for name, want := range tests {
		if got := mimeTypeFor(name); got != want {
			t.Errorf("mimeTypeFor(%q) = %q, want %q", name, got, want)
		}
	}
}
