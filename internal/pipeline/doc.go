// Package pipeline runs the processing steps for one job: stage the input,
// probe it, transcode and extract a thumbnail concurrently, then upload both
// outputs under keys derived from the stored filename.
//
// Every temporary file a run creates lives in a private directory below the
// work dir and is removed on every exit path. Cleanup problems are logged and
// never turn a run into a failure. A failing step aborts the run with a
// *StepError naming it; uploads that already succeeded are left in place and
// are overwritten by the next successful attempt.
package pipeline
