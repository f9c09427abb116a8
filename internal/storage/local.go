package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vidqueue/internal/config"
	"vidqueue/internal/fileutil"
	"vidqueue/internal/services"
)

// Local stores objects as files below a root directory and serves them from a
// fixed public base URL.
type Local struct {
	root    string
	baseURL string
}

// NewLocal prepares a filesystem gateway rooted at root.
func NewLocal(root, baseURL string) (*Local, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, services.Wrap(services.ErrConfiguration, "storage", "open", "storage.local_dir is required", nil)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, services.Wrap(classifyFS(err), "storage", "open", "create "+root, err)
	}
	return &Local{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (l *Local) Backend() string { return config.StorageLocal }

// Root returns the directory objects are written under.
func (l *Local) Root() string { return l.root }

// resolve maps a key onto a path inside root, refusing keys that would escape it.
func (l *Local) resolve(op, key string) (string, error) {
	if err := validateKey(op, key); err != nil {
		return "", err
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", services.Wrap(services.ErrValidation, "storage", op, fmt.Sprintf("invalid object key %q", key), nil)
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return "", services.Wrap(services.ErrValidation, "storage", op, fmt.Sprintf("invalid object key %q", key), nil)
		}
	}
	return filepath.Join(l.root, filepath.FromSlash(key)), nil
}

func (l *Local) Put(ctx context.Context, key string, data []byte, _ string) (string, error) {
	target, err := l.resolve("put", key)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := fileutil.WriteAtomic(target, data, 0o644); err != nil {
		return "", services.Wrap(classifyFS(err), "storage", "put", key, err)
	}
	return l.URL(key), nil
}

func (l *Local) Get(ctx context.Context, key string) ([]byte, error) {
	target, err := l.resolve("get", key)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(target)
	if err != nil {
		return nil, services.Wrap(classifyFS(err), "storage", "get", key, err)
	}
	return data, nil
}

func (l *Local) Delete(ctx context.Context, key string) error {
	target, err := l.resolve("delete", key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(target); err != nil {
		return services.Wrap(classifyFS(err), "storage", "delete", key, err)
	}
	return nil
}

func (l *Local) Exists(ctx context.Context, key string) (bool, error) {
	target, err := l.resolve("exists", key)
	if err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	info, err := os.Stat(target)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, services.Wrap(classifyFS(err), "storage", "exists", key, err)
	}
	return info.Mode().IsRegular(), nil
}

// Sign returns the stable public URL; the filesystem backend has no expiring links.
func (l *Local) Sign(_ context.Context, key string, _ time.Duration) (string, error) {
	if _, err := l.resolve("sign", key); err != nil {
		return "", err
	}
	return l.URL(key), nil
}

// HealthCheck verifies the root directory accepts writes.
func (l *Local) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Stat(l.root)
	if err != nil {
		return services.Wrap(classifyFS(err), "storage", "health", l.root, err)
	}
	if !info.IsDir() {
		return services.Wrap(services.ErrConfiguration, "storage", "health", l.root+" is not a directory", nil)
	}
	probe, err := os.CreateTemp(l.root, ".health-*")
	if err != nil {
		return services.Wrap(classifyFS(err), "storage", "health", "write probe", err)
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return nil
}

// URL returns the public URL for key.
func (l *Local) URL(key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return l.baseURL + "/" + strings.Join(segments, "/")
}

func classifyFS(err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return services.ErrStorageNotFound
	case errors.Is(err, fs.ErrPermission):
		return services.ErrPermissionDenied
	default:
		return services.ErrStorageUnavailable
	}
}
