// Package sqlitex holds the SQLite plumbing shared by the job record store
// and the SQLite queue transport: connection setup with WAL pragmas, schema
// versioning, busy-retry, and nullable column helpers.
package sqlitex
