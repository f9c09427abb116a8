package main

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"vidqueue/internal/api"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Daemon", statusError, "Not running", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Daemon:", "[ERROR] Not running")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("Daemon", statusOK, "Running", true)
	if !strings.HasPrefix(got, ansiGreen) {
		t.Fatalf("expected green prefix, got %q", got)
	}
	if !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected reset suffix, got %q", got)
	}
}

func TestDependencyLines(t *testing.T) {
	deps := []api.DependencyStatus{
		{Name: "FFprobe", Available: false, Detail: "not found in PATH"},
		{Name: "FFmpeg", Available: true, Command: "ffmpeg"},
	}
	lines := dependencyLines(deps, false)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %v", len(lines), lines)
	}
	if !strings.Contains(lines[0], "[ERROR] not found in PATH") {
		t.Fatalf("expected error detail first, got %q", lines[0])
	}
	if !strings.Contains(lines[1], "[OK] Ready (command: ffmpeg)") {
		t.Fatalf("expected ready detail second, got %q", lines[1])
	}
	if !strings.Contains(lines[2], "Missing dependencies:") || !strings.Contains(lines[2], "FFprobe") {
		t.Fatalf("expected missing dependencies summary, got %q", lines[2])
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
}
