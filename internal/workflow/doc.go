// Package workflow coordinates the worker pool that drains the processing
// queue.
//
// The Manager runs a fixed number of workers. Each worker blocks on the queue
// transport, claims the job record, runs the pipeline and resolves the
// delivery: acknowledge on success, redeliver with exponential backoff while
// attempts remain and the failure is retryable, otherwise mark the record
// failed. Duplicate deliveries of completed jobs are acknowledged without
// re-running.
//
// While a job runs its delivery is heart-beaten; a maintenance loop returns
// deliveries with expired heartbeats to the queue and prunes settled tasks to
// the configured retention. Stop lets in-flight jobs finish before returning.
package workflow
