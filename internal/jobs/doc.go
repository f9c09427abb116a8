// Package jobs persists Job Records and enforces their lifecycle.
//
// A record is created in StatusUploading by the submission path, claimed into
// StatusProcessing by a worker, and finished in exactly one of the terminal
// states. Every write goes through UpdateResult, which validates the
// transition and re-establishes the record invariants: metadata exists only
// on completed records, an error message only on failed ones, and failed
// records never expose output references.
//
// The store is backed by SQLite (modernc.org/sqlite) and is safe for
// concurrent use by the worker pool and the CLI.
package jobs
