package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"vidqueue/internal/config"
	"vidqueue/internal/services"
)

func TestOpenSelectsConfiguredBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.LocalDir = filepath.Join(t.TempDir(), "uploads")

	gw, err := Open(context.Background(), &cfg)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if gw.Backend() != config.StorageLocal {
		t.Fatalf("expected local backend, got %s", gw.Backend())
	}

	cfg.Storage.Backend = config.StorageRemote
	if _, err := Open(context.Background(), &cfg); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected misconfigured remote to fail loudly, got %v", err)
	}

	cfg.Storage.Backend = "ftp"
	if _, err := Open(context.Background(), &cfg); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected unsupported backend error, got %v", err)
	}
}
