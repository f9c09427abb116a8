// Package ffmpeg adapts the external ffprobe/ffmpeg binaries into typed
// probe, transcode and thumbnail operations.
//
// Every call is synchronous and returns a typed result or an error tagged with
// a services marker: unreadable or video-less input is services.ErrInputDefect,
// any other non-zero exit is services.ErrToolkitFailure. Partially written
// output files are never reported as valid, but removing them is left to the
// caller. Transcode progress is reported on an optional one-way channel.
package ffmpeg
