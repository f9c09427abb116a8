// Package api is the submission and administration layer shared by the CLI
// and the daemon's HTTP handlers. It translates job records into
// transport-friendly DTOs and owns the write paths that sit outside the
// worker pool.
//
// # Operations
//
// Submit: validate size and extension, store the original under a
// timestamped key, create the record in uploading, enqueue the processing job.
//
// Resubmit: enqueue a content-less processing job for a failed record; the
// pipeline fetches the original back from storage.
//
// Links: sign the original and, for completed jobs, the derived low-res and
// thumbnail keys.
//
// Delete: remove the record and best-effort remove its stored objects.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Timestamps use RFC3339 with milliseconds.
// Derived keys always come from the storage package helpers so readers and the
// pipeline agree on object names.
package api
