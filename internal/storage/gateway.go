package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"vidqueue/internal/config"
	"vidqueue/internal/services"
)

// Gateway is the uniform interface over the configured storage backend.
//
// Put is atomic from the caller's perspective: a failed Put leaves nothing
// visible under key. Get and Delete report services.ErrStorageNotFound for
// absent keys. Sign may return a stable public URL when the backend has no
// expiring-URL capability. Gateways never retry internally.
type Gateway interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Sign(ctx context.Context, key string, ttl time.Duration) (string, error)
	HealthCheck(ctx context.Context) error
	Backend() string
}

// Open constructs the gateway selected by cfg.Storage.Backend.
func Open(ctx context.Context, cfg *config.Config) (Gateway, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "storage", "open", "configuration unavailable", nil)
	}
	switch cfg.Storage.Backend {
	case config.StorageLocal:
		return NewLocal(cfg.Storage.LocalDir, cfg.Storage.PublicBaseURL)
	case config.StorageRemote:
		return NewRemote(ctx, cfg.Storage.Remote)
	default:
		return nil, services.Wrap(services.ErrConfiguration, "storage", "open",
			fmt.Sprintf("unsupported backend %q", cfg.Storage.Backend), nil)
	}
}

func validateKey(op, key string) error {
	if strings.TrimSpace(key) == "" {
		return services.Wrap(services.ErrValidation, "storage", op, "object key is required", nil)
	}
	return nil
}
