package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"vidqueue/internal/config"
	"vidqueue/internal/services"
)

const (
	minSignTTL = time.Second
	maxSignTTL = 7 * 24 * time.Hour
)

// Remote stores objects in an S3-compatible bucket.
type Remote struct {
	client *minio.Client
	bucket string
	host   string
	secure bool
}

// NewRemote builds a client for the configured bucket. When CreateBucket is
// set the bucket is created if it does not exist; otherwise no request is
// made until the first operation or HealthCheck.
func NewRemote(ctx context.Context, cfg config.Remote) (*Remote, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" || strings.TrimSpace(cfg.Bucket) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "storage", "open", "remote endpoint and bucket are required", nil)
	}
	host, secure := splitEndpoint(cfg.Endpoint, cfg.UseSSL)
	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "storage", "open", "remote client", err)
	}
	r := &Remote{client: client, bucket: cfg.Bucket, host: host, secure: secure}
	if cfg.CreateBucket {
		if err := r.ensureBucket(ctx, cfg.Region); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// splitEndpoint accepts either "host:port" or a URL and reports whether TLS applies.
func splitEndpoint(endpoint string, useSSL bool) (string, bool) {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		return strings.TrimPrefix(endpoint, "https://"), true
	case strings.HasPrefix(endpoint, "http://"):
		return strings.TrimPrefix(endpoint, "http://"), false
	default:
		return endpoint, useSSL
	}
}

func (r *Remote) ensureBucket(ctx context.Context, region string) error {
	exists, err := r.client.BucketExists(ctx, r.bucket)
	if err != nil {
		return classifyRemote("open", r.bucket, err)
	}
	if exists {
		return nil
	}
	if err := r.client.MakeBucket(ctx, r.bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return classifyRemote("open", "create bucket "+r.bucket, err)
	}
	return nil
}

func (r *Remote) Backend() string { return config.StorageRemote }

func (r *Remote) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := validateKey("put", key); err != nil {
		return "", err
	}
	opts := minio.PutObjectOptions{ContentType: contentType}
	if opts.ContentType == "" {
		opts.ContentType = "application/octet-stream"
	}
	if _, err := r.client.PutObject(ctx, r.bucket, key, bytes.NewReader(data), int64(len(data)), opts); err != nil {
		return "", classifyRemote("put", key, err)
	}
	return r.ObjectURL(key), nil
}

func (r *Remote) Get(ctx context.Context, key string) ([]byte, error) {
	if err := validateKey("get", key); err != nil {
		return nil, err
	}
	obj, err := r.client.GetObject(ctx, r.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, classifyRemote("get", key, err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, classifyRemote("get", key, err)
	}
	return data, nil
}

// Delete reports ErrStorageNotFound for absent keys; S3 itself treats removal
// of a missing object as success.
func (r *Remote) Delete(ctx context.Context, key string) error {
	if err := validateKey("delete", key); err != nil {
		return err
	}
	if _, err := r.client.StatObject(ctx, r.bucket, key, minio.StatObjectOptions{}); err != nil {
		return classifyRemote("delete", key, err)
	}
	if err := r.client.RemoveObject(ctx, r.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return classifyRemote("delete", key, err)
	}
	return nil
}

func (r *Remote) Exists(ctx context.Context, key string) (bool, error) {
	if err := validateKey("exists", key); err != nil {
		return false, err
	}
	if _, err := r.client.StatObject(ctx, r.bucket, key, minio.StatObjectOptions{}); err != nil {
		wrapped := classifyRemote("exists", key, err)
		if services.KindOf(wrapped) == services.KindStorageNotFound {
			return false, nil
		}
		return false, wrapped
	}
	return true, nil
}

// Sign returns a presigned GET URL. ttl is clamped to the range S3 accepts.
func (r *Remote) Sign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if err := validateKey("sign", key); err != nil {
		return "", err
	}
	ttl = min(max(ttl, minSignTTL), maxSignTTL)
	u, err := r.client.PresignedGetObject(ctx, r.bucket, key, ttl, nil)
	if err != nil {
		return "", classifyRemote("sign", key, err)
	}
	return u.String(), nil
}

func (r *Remote) HealthCheck(ctx context.Context) error {
	exists, err := r.client.BucketExists(ctx, r.bucket)
	if err != nil {
		return classifyRemote("health", r.bucket, err)
	}
	if !exists {
		return services.Wrap(services.ErrConfiguration, "storage", "health", fmt.Sprintf("bucket %q does not exist", r.bucket), nil)
	}
	return nil
}

// ObjectURL returns the unsigned URL of key.
func (r *Remote) ObjectURL(key string) string {
	scheme := "http"
	if r.secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, r.host, r.bucket, key)
}

var credentialCodes = map[string]bool{
	"InvalidAccessKeyId":    true,
	"SignatureDoesNotMatch": true,
	"ExpiredToken":          true,
	"InvalidToken":          true,
	"RequestTimeTooSkewed":  true,
}

func classifyRemote(op, key string, err error) error {
	resp := minio.ToErrorResponse(err)
	marker := services.ErrStorageUnavailable
	switch {
	case resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" || resp.StatusCode == http.StatusNotFound:
		marker = services.ErrStorageNotFound
	case credentialCodes[resp.Code]:
		// Rejected credentials come back as 403 but count as unavailable.
	case resp.Code == "AccessDenied" || resp.StatusCode == http.StatusForbidden:
		marker = services.ErrPermissionDenied
	}
	return services.Wrap(marker, "storage", op, key, err)
}
