// Package preflight provides readiness checks for the filesystem paths and
// backends vidqueue depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and refuses to start workers when a
//     check fails, so jobs are not burned through retries against a broken
//     backend.
//   - The CLI "vidqueue check" command renders every result, including the
//     media toolkit dependencies.
package preflight
