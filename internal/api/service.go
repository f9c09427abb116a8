package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vidqueue/internal/config"
	"vidqueue/internal/jobs"
	"vidqueue/internal/logging"
	"vidqueue/internal/queue"
	"vidqueue/internal/services"
	"vidqueue/internal/storage"
)

// Service implements the write paths that sit in front of the worker pool.
type Service struct {
	cfg       *config.Config
	jobs      *jobs.Store
	storage   storage.Gateway
	transport queue.Transport
	logger    *slog.Logger
	now       func() time.Time
	keyToken  func() string
}

// NewService wires the submission layer to its collaborators.
func NewService(cfg *config.Config, store *jobs.Store, gateway storage.Gateway, transport queue.Transport, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		cfg:       cfg,
		jobs:      store,
		storage:   gateway,
		transport: transport,
		logger:    logging.NewComponentLogger(logger, "api"),
		now:       time.Now,
		keyToken:  storage.NewKeyToken,
	}
}

// SubmitRequest carries one uploaded file.
type SubmitRequest struct {
	Name     string
	MimeType string
	Content  []byte
}

// Submit stores the original, creates its record and enqueues processing.
// Validation failures carry services.ErrValidation.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (Job, error) {
	if err := s.validate(req.Name, int64(len(req.Content))); err != nil {
		return Job{}, err
	}
	mimeType := strings.TrimSpace(req.MimeType)
	if mimeType == "" {
		mimeType = mimeTypeFor(req.Name)
	}

	stored := storage.StoredName(s.now(), s.keyToken(), req.Name)
	locator, err := s.storage.Put(ctx, stored, req.Content, mimeType)
	if err != nil {
		return Job{}, fmt.Errorf("store original: %w", err)
	}

	rec, err := s.jobs.Create(ctx, jobs.NewRecord{
		OriginalName:   filepath.Base(req.Name),
		StoredFilename: stored,
		SizeBytes:      int64(len(req.Content)),
		MimeType:       mimeType,
		OriginalURL:    locator,
	})
	if err != nil {
		if delErr := s.storage.Delete(ctx, stored); delErr != nil {
			s.logger.Warn("failed to remove unrecorded original", logging.String("key", stored), logging.Error(delErr))
		}
		return Job{}, fmt.Errorf("create job record: %w", err)
	}

	logger := logging.WithContext(services.WithJobID(ctx, rec.ID), s.logger)
	if err := s.transport.Enqueue(ctx, queue.Task{
		JobID:          rec.ID,
		StoredFilename: stored,
		Content:        req.Content,
	}); err != nil {
		s.discard(ctx, logger, rec.ID, stored)
		return Job{}, fmt.Errorf("enqueue job: %w", err)
	}

	logger.Info("job submitted",
		logging.String(logging.FieldEventType, "job_submitted"),
		logging.String("original_name", rec.OriginalName),
		logging.String("stored_filename", stored),
		logging.Int64("size_bytes", rec.SizeBytes),
	)
	return FromRecord(rec), nil
}

// discard rolls back a submission the queue refused so no record is left
// stranded in uploading.
func (s *Service) discard(ctx context.Context, logger *slog.Logger, id, stored string) {
	if err := s.jobs.Delete(ctx, id); err != nil {
		logger.Warn("failed to remove unqueued job record", logging.Error(err))
	}
	if err := s.storage.Delete(ctx, stored); err != nil {
		logger.Warn("failed to remove unqueued original", logging.String("key", stored), logging.Error(err))
	}
}

// SubmitFile submits a file from the local filesystem. The size limit is
// checked before the file is read.
func (s *Service) SubmitFile(ctx context.Context, path string) (Job, error) {
	f, err := os.Open(path)
	if err != nil {
		return Job{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return Job{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return Job{}, services.Wrap(services.ErrValidation, "submit", "read", path+" is a directory", nil)
	}
	if err := s.validate(path, info.Size()); err != nil {
		return Job{}, err
	}
	content, err := io.ReadAll(f)
	if err != nil {
		return Job{}, fmt.Errorf("read %s: %w", path, err)
	}
	return s.Submit(ctx, SubmitRequest{Name: filepath.Base(path), Content: content})
}

func (s *Service) validate(name string, size int64) error {
	if strings.TrimSpace(name) == "" {
		return services.Wrap(services.ErrValidation, "submit", "validate", "file name is required", nil)
	}
	if size <= 0 {
		return services.Wrap(services.ErrValidation, "submit", "validate", "file is empty", nil)
	}
	if limit := s.cfg.Upload.MaxFileSize; limit > 0 && size > limit {
		return services.Wrap(services.ErrValidation, "submit", "validate",
			fmt.Sprintf("file size %d exceeds limit of %d bytes", size, limit), nil)
	}
	if !s.cfg.ExtensionAllowed(name) {
		return services.Wrap(services.ErrValidation, "submit", "validate",
			fmt.Sprintf("file type not allowed (accepted: %s)", strings.Join(s.cfg.Upload.AllowedExtensions, ", ")), nil)
	}
	return nil
}

func mimeTypeFor(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".mkv":
		return "video/x-matroska"
	case ".avi":
		return "video/x-msvideo"
	case ".mov":
		return "video/quicktime"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

// Get returns one job.
func (s *Service) Get(ctx context.Context, id string) (Job, error) {
	rec, err := s.jobs.Get(ctx, id)
	if err != nil {
		return Job{}, err
	}
	return FromRecord(rec), nil
}

// List returns a page of jobs, newest first.
func (s *Service) List(ctx context.Context, opts jobs.ListOptions) ([]Job, error) {
	recs, err := s.jobs.List(ctx, opts)
	if err != nil {
		return nil, err
	}
	return FromRecords(recs), nil
}

// Stats returns record counts per status plus queue transport counts.
func (s *Service) Stats(ctx context.Context) (StatsResponse, error) {
	counts, err := s.jobs.Counts(ctx)
	if err != nil {
		return StatsResponse{}, err
	}
	qs, err := s.transport.Stats(ctx)
	if err != nil {
		return StatsResponse{}, err
	}
	return StatsResponse{Jobs: MergeJobCounts(counts), Queue: qs}, nil
}

// Links signs download URLs for a job. Outputs are only linked for completed
// jobs; their keys are derived from the stored filename.
func (s *Service) Links(ctx context.Context, id string) (Links, error) {
	rec, err := s.jobs.Get(ctx, id)
	if err != nil {
		return Links{}, err
	}
	ttl := s.cfg.SignTTL()
	links := Links{ExpiresIn: int(ttl / time.Second)}
	if links.Original, err = s.storage.Sign(ctx, rec.StoredFilename, ttl); err != nil {
		return Links{}, fmt.Errorf("sign original: %w", err)
	}
	if rec.Status != jobs.StatusCompleted {
		return links, nil
	}
	if links.LowRes, err = s.storage.Sign(ctx, storage.LowResKey(rec.StoredFilename), ttl); err != nil {
		return Links{}, fmt.Errorf("sign low-res: %w", err)
	}
	if links.Thumbnail, err = s.storage.Sign(ctx, storage.ThumbnailKey(rec.StoredFilename), ttl); err != nil {
		return Links{}, fmt.Errorf("sign thumbnail: %w", err)
	}
	return links, nil
}

// Resubmit enqueues a failed job again. The task carries no content; the
// pipeline fetches the original from storage.
func (s *Service) Resubmit(ctx context.Context, id string) (Job, error) {
	rec, err := s.jobs.Get(ctx, id)
	if err != nil {
		return Job{}, err
	}
	if rec.Status != jobs.StatusFailed {
		return Job{}, services.Wrap(services.ErrValidation, "resubmit", "status",
			fmt.Sprintf("job %s is %s; only failed jobs can be resubmitted", id, rec.Status), nil)
	}
	ok, err := s.storage.Exists(ctx, rec.StoredFilename)
	if err != nil {
		return Job{}, fmt.Errorf("check original: %w", err)
	}
	if !ok {
		return Job{}, services.Wrap(services.ErrStorageNotFound, "resubmit", "original", rec.StoredFilename, nil)
	}
	if err := s.transport.Enqueue(ctx, queue.Task{JobID: rec.ID, StoredFilename: rec.StoredFilename}); err != nil {
		if errors.Is(err, queue.ErrAlreadyQueued) {
			return Job{}, services.Wrap(services.ErrValidation, "resubmit", "enqueue", "job is already queued", err)
		}
		return Job{}, fmt.Errorf("enqueue job: %w", err)
	}
	logging.WithContext(services.WithJobID(ctx, rec.ID), s.logger).Info("job resubmitted",
		logging.String(logging.FieldEventType, "job_resubmitted"),
		logging.String("previous_error", rec.ErrorMessage),
	)
	return FromRecord(rec), nil
}

// Delete removes a job record, then best-effort removes its stored objects.
// Missing objects are not an error.
func (s *Service) Delete(ctx context.Context, id string) (DeleteResult, error) {
	rec, err := s.jobs.Get(ctx, id)
	if err != nil {
		return DeleteResult{}, err
	}
	if err := s.jobs.Delete(ctx, id); err != nil {
		return DeleteResult{}, err
	}

	logger := logging.WithContext(services.WithJobID(ctx, id), s.logger)
	result := DeleteResult{ID: id, RemovedObjects: []string{}}
	keys := []string{
		rec.StoredFilename,
		storage.LowResKey(rec.StoredFilename),
		storage.ThumbnailKey(rec.StoredFilename),
	}
	for _, key := range keys {
		err := s.storage.Delete(ctx, key)
		switch {
		case err == nil:
			result.RemovedObjects = append(result.RemovedObjects, key)
		case errors.Is(err, services.ErrStorageNotFound):
			logger.Debug("object already absent", logging.String("key", key))
		default:
			logger.Warn("failed to delete stored object", logging.String("key", key), logging.Error(err))
		}
	}
	logger.Info("job deleted",
		logging.String(logging.FieldEventType, "job_deleted"),
		logging.Int("objects_removed", len(result.RemovedObjects)),
	)
	return result, nil
}
