// Package main hosts the vidqueue CLI entrypoint and command graph.
//
// The Cobra-based command tree runs the processing daemon, submits local
// files for processing, and inspects or administers job records and the
// queue transport. Commands that only read state work whether or not the
// daemon is running; status prefers the daemon's HTTP API and falls back to
// reading the local stores.
//
// Keep this package lean: business rules live in internal/api and the
// workflow packages, and commands here only translate flags into calls and
// render results.
package main
