// Package daemon coordinates the long-running vidqueue process.
//
// It wires the job store, queue transport, storage gateway and workflow
// manager into a single lifecycle with flock-based locking to prevent two
// instances sharing one data directory. Startup requeues deliveries left
// active by a crash, clears stale pipeline run directories and refuses to
// start workers when the media toolkit or storage backend is unusable.
//
// The daemon also serves a small read-only HTTP API (status, job listing, job
// detail with signed links) and the Prometheus metrics endpoint.
//
// Keep orchestration logic here: pipeline steps and retry decisions live in
// their own packages while the daemon focuses on startup, shutdown and
// exposure.
package daemon
