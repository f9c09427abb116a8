package preflight

import (
	"context"

	"vidqueue/internal/config"
	"vidqueue/internal/storage"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the directory checks and, when a gateway is provided, the
// storage health check.
func RunAll(ctx context.Context, cfg *config.Config, gateway storage.Gateway) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
	}
	if cfg.Storage.Backend == config.StorageLocal {
		results = append(results, CheckDirectoryAccess("Local storage", cfg.Storage.LocalDir))
	}
	if gateway != nil {
		results = append(results, CheckStorage(ctx, gateway))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
