// Package textutil provides filename sanitization shared by the submission
// path and the storage gateway.
//
// Stored object keys are derived from user-supplied names, so anything that
// could escape a directory or confuse a shell is normalised away before a key
// is assigned.
package textutil
