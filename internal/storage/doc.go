// Package storage implements the storage gateway: put, get, delete, exists,
// sign and health-check operations over either the local filesystem or an
// S3-compatible blob store.
//
// Exactly one backend is selected by Open from configuration at startup.
// Misconfiguration is reported as an error; there is no silent fallback from
// remote to local. Derived object keys for pipeline outputs are produced by
// LowResKey and ThumbnailKey and nowhere else.
package storage
