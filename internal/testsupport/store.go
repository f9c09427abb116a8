package testsupport

import (
	"context"
	"testing"

	"vidqueue/internal/config"
	"vidqueue/internal/jobs"
	"vidqueue/internal/queue"
	"vidqueue/internal/storage"
)

// MustOpenJobs opens a jobs.Store for tests and registers cleanup.
func MustOpenJobs(t testing.TB, cfg *config.Config) *jobs.Store {
	t.Helper()

	store, err := jobs.Open(cfg)
	if err != nil {
		t.Fatalf("jobs.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenQueue opens the configured queue transport and registers cleanup.
func MustOpenQueue(t testing.TB, cfg *config.Config) queue.Transport {
	t.Helper()

	transport, err := queue.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		transport.Close()
	})
	return transport
}

// MustOpenStorage opens the configured storage gateway.
func MustOpenStorage(t testing.TB, cfg *config.Config) storage.Gateway {
	t.Helper()

	gw, err := storage.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	return gw
}

// NewJob creates a job record in uploading state.
func NewJob(t testing.TB, store *jobs.Store, name string) *jobs.Record {
	t.Helper()

	rec, err := store.Create(context.Background(), jobs.NewRecord{
		OriginalName:   name,
		StoredFilename: "1700000000000_" + name,
		SizeBytes:      5,
		MimeType:       "video/mp4",
	})
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return rec
}
