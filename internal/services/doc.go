// Package services defines shared utilities consumed by the pipeline, the
// worker coordinator, and the storage and record layers.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, pipeline step names, attempts, and
//     correlation identifiers for logging.
//   - The failure taxonomy (input defects, toolkit failures, storage and
//     record errors) plus the Wrap helper that tags an error with its kind and
//     the step that produced it.
//   - Retryable, which the coordinator consults to decide between a delayed
//     redelivery and a terminal failure.
package services
