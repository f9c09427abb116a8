// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Inspect runs ffprobe and decodes streams and container format. Helpers on
// Result pick the primary picture stream (skipping cover art), report audio
// presence and resolve duration with a per-stream fallback.
package ffprobe
