// Package config loads, normalizes, and validates vidqueue configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and applies environment overrides such as
// STORAGE_BACKEND or WORKER_POOL_SIZE. The Config type centralizes every knob
// the daemon and CLI need: storage backend selection, upload limits, worker
// pool sizing, retry policy, and the low-resolution encoding profile.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical enumerations, and clear validation errors.
package config
