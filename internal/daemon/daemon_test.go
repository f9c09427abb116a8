package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"

	"vidqueue/internal/api"
	"vidqueue/internal/config"
	"vidqueue/internal/deps"
	"vidqueue/internal/jobs"
	"vidqueue/internal/pipeline"
	"vidqueue/internal/queue"
	"vidqueue/internal/testsupport"
	"vidqueue/internal/workflow"
)

type stubExecutor struct{}

func (stubExecutor) Run(_ context.Context, job pipeline.Job) (pipeline.Result, error) {
	return pipeline.Result{
		LowResURL:    "http://localhost:3001/uploads/" + job.StoredFilename,
		ThumbnailURL: "http://localhost:3001/uploads/thumb.jpg",
		Metadata:     jobs.Metadata{DurationSeconds: 30, Width: 1920, Height: 1080},
	}, nil
}

type fixture struct {
	cfg       *config.Config
	store     *jobs.Store
	transport queue.Transport
	daemon    *Daemon
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenJobs(t, cfg)
	transport := testsupport.MustOpenQueue(t, cfg)
	gateway := testsupport.MustOpenStorage(t, cfg)
	registry := prometheus.NewRegistry()
	manager := workflow.NewManager(cfg, transport, store, stubExecutor{}, nil,
		workflow.WithMetrics(workflow.NewMetrics(registry)))

	d, err := New(cfg, Components{
		Jobs:      store,
		Transport: transport,
		Storage:   gateway,
		Workflow:  manager,
		Service:   api.NewService(cfg, store, gateway, transport, nil),
		Gatherer:  registry,
	}, nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	d.checkDeps = func(*config.Config) []deps.Status {
		return []deps.Status{{Name: "FFmpeg", Command: "ffmpeg", Available: true}}
	}
	t.Cleanup(d.Stop)
	return &fixture{cfg: cfg, store: store, transport: transport, daemon: d}
}

func TestNewRequiresComponents(t *testing.T) {
	if _, err := New(testsupport.NewConfig(t), Components{}, nil); err == nil {
		t.Fatal("expected error for missing components")
	}
}

func TestDaemonStartStopReleasesLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.daemon.Start(ctx); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if err := f.daemon.Start(ctx); err == nil {
		t.Fatal("expected error when starting twice")
	}

	other := flock.New(f.cfg.LockPath())
	if ok, err := other.TryLock(); err != nil || ok {
		t.Fatalf("lock should be held while running (ok=%v err=%v)", ok, err)
	}

	status := f.daemon.Status(ctx)
	if !status.Running || !status.Workflow.Running || status.StorageBackend != config.StorageLocal {
		t.Fatalf("unexpected status %+v", status)
	}

	f.daemon.Stop()
	if f.daemon.Status(ctx).Running {
		t.Fatal("daemon should report stopped")
	}
	if ok, err := other.TryLock(); err != nil || !ok {
		t.Fatalf("lock should be released after stop (ok=%v err=%v)", ok, err)
	}
	_ = other.Unlock()
}

func TestDaemonRefusesSecondInstance(t *testing.T) {
	f := newFixture(t)
	holder := flock.New(f.cfg.LockPath())
	if ok, err := holder.TryLock(); err != nil || !ok {
		t.Fatalf("TryLock: ok=%v err=%v", ok, err)
	}
	defer holder.Unlock()

	err := f.daemon.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected already running error, got %v", err)
	}
}

func TestDaemonStartFailsWithoutMediaToolkit(t *testing.T) {
	f := newFixture(t)
	f.daemon.checkDeps = func(*config.Config) []deps.Status {
		return []deps.Status{{Name: "FFprobe", Command: "ffprobe", Detail: `binary "ffprobe" not found`}}
	}

	err := f.daemon.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "FFprobe") {
		t.Fatalf("expected missing dependency error, got %v", err)
	}
	holder := flock.New(f.cfg.LockPath())
	if ok, _ := holder.TryLock(); !ok {
		t.Fatal("lock should be released after a failed start")
	}
	_ = holder.Unlock()
}

func TestDaemonRecoversDeliveriesLeftActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := testsupport.NewJob(t, f.store, "crashed.mp4")
	if err := f.transport.Enqueue(ctx, queue.Task{JobID: rec.ID, StoredFilename: rec.StoredFilename}); err != nil {
		t.Fatal(err)
	}
	dctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := f.transport.Dequeue(dctx); err != nil {
		t.Fatal(err)
	}

	if err := f.daemon.Start(ctx); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		got, err := f.store.Get(ctx, rec.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status == jobs.StatusCompleted {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("recovered delivery was not processed")
}

func TestDaemonServesStatusOverHTTP(t *testing.T) {
	f := newFixture(t)
	if err := f.daemon.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	addr := f.daemon.Addr()
	if addr == "" {
		t.Fatal("expected API listen address")
	}

	resp, err := http.Get("http://" + addr + "/api/status")
	if err != nil {
		t.Fatalf("GET /api/status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status code %d", resp.StatusCode)
	}
	var status api.DaemonStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Running || status.QueueBackend != config.QueueSQLite || len(status.Dependencies) != 1 {
		t.Fatalf("unexpected status payload %+v", status)
	}
}
