// Package logs reads the daemon log file for the CLI.
//
// Tail returns the last N lines (negative offset) or everything after a byte
// offset, optionally waiting for new lines in follow mode. A Filter narrows
// the output to one job's entries in either console or JSON log format.
package logs
