package main

import (
	"encoding/json"
	"testing"

	"vidqueue/internal/api"
	"vidqueue/internal/daemonctl"
)

func TestStatusOffline(t *testing.T) {
	env := newCLIEnv(t)
	env.submit(t, env.writeVideo(t, "s.mp4", 10))

	stdout, _, err := env.run(t, "status")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	requireContains(t, stdout, "== System Status ==")
	requireContains(t, stdout, "[ERROR] Not running")
	requireContains(t, stdout, "[OK] Ready (command: ")
	requireContains(t, stdout, "Uploading")

	stdout, _, err = env.run(t, "status", "--json")
	if err != nil {
		t.Fatalf("status --json failed: %v", err)
	}
	var snap daemonctl.Snapshot
	if err := json.Unmarshal([]byte(stdout), &snap); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if snap.Live || snap.Jobs["uploading"] != 1 || snap.QueueBackend != "sqlite" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestDaemonLinesLive(t *testing.T) {
	snap := daemonctl.Snapshot{Live: true}
	snap.PID = 99
	snap.Workflow = api.WorkflowStatus{Running: true, Workers: 2, ActiveJobs: 1, LastError: "boom", LastJobID: "j1"}

	lines := daemonLines(snap, false)
	joined := ""
	for _, l := range lines {
		joined += l + "\n"
	}
	requireContains(t, joined, "[OK] Running (pid 99)")
	requireContains(t, joined, "2 running, 1 active jobs")
	requireContains(t, joined, "[WARN] boom (job j1)")
}
