package preflight

import (
	"context"

	"vidqueue/internal/config"
	"vidqueue/internal/queue"
	"vidqueue/internal/storage"
)

// CheckStorageFromConfig opens the configured gateway and checks its health.
// Used by the CLI, which has no long-lived gateway.
func CheckStorageFromConfig(ctx context.Context, cfg *config.Config) Result {
	name := "Storage (" + cfg.Storage.Backend + ")"
	gateway, err := storage.Open(ctx, cfg)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return CheckStorage(ctx, gateway)
}

// CheckQueueFromConfig opens the configured queue transport and queries it.
func CheckQueueFromConfig(ctx context.Context, cfg *config.Config) Result {
	transport, err := queue.Open(ctx, cfg)
	if err != nil {
		return Result{Name: "Queue (" + cfg.Queue.Backend + ")", Detail: err.Error()}
	}
	defer transport.Close()
	return CheckQueue(ctx, cfg.Queue.Backend, transport)
}
