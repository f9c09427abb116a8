package deps

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vidqueue/internal/config"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	notExec := filepath.Join(binDir, "plain")
	if err := os.WriteFile(notExec, script, 0o644); err != nil {
		t.Fatalf("write plain file: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Plain", Command: notExec},
		{Name: "Empty", Command: "  "},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Detail != "" {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary to be unavailable with detail, got %#v", results[1])
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}
	if results[2].Available || !strings.Contains(results[2].Detail, "not executable") {
		t.Fatalf("expected non-executable file to be rejected, got %#v", results[2])
	}
	if results[3].Available || results[3].Detail != "command not configured" {
		t.Fatalf("unexpected empty command result %#v", results[3])
	}
}

func TestCheckBinariesResolvesFromPath(t *testing.T) {
	binDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(binDir, "ffprobe"), []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	t.Setenv("PATH", binDir)

	results := CheckMedia(config.Media{FFprobeBinary: "ffprobe", FFmpegBinary: "ffmpeg"})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !results[0].Available || results[0].Command != filepath.Join(binDir, "ffprobe") {
		t.Fatalf("expected ffprobe resolved from PATH, got %#v", results[0])
	}
	if results[1].Available {
		t.Fatalf("expected ffmpeg to be missing")
	}

	missing := MissingRequired(results)
	if len(missing) != 1 || missing[0].Name != "FFmpeg" {
		t.Fatalf("unexpected missing set %#v", missing)
	}
	err := DescribeMissing(missing)
	if err == nil || !strings.Contains(err.Error(), "FFmpeg") {
		t.Fatalf("expected error naming FFmpeg, got %v", err)
	}
	if DescribeMissing(nil) != nil {
		t.Fatal("expected nil error when nothing is missing")
	}
}

func TestMissingRequiredSkipsOptional(t *testing.T) {
	results := []Status{
		{Name: "a", Optional: true},
		{Name: "b", Available: true},
	}
	if got := MissingRequired(results); len(got) != 0 {
		t.Fatalf("expected no missing required deps, got %#v", got)
	}
}
