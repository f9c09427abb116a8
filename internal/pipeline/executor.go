package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"vidqueue/internal/config"
	"vidqueue/internal/fileutil"
	"vidqueue/internal/jobs"
	"vidqueue/internal/logging"
	"vidqueue/internal/media/ffmpeg"
	"vidqueue/internal/services"
	"vidqueue/internal/storage"
	"vidqueue/internal/textutil"
)

// Step names reported in errors and logs.
const (
	StepStage     = "stage_input"
	StepProbe     = "probe"
	StepTranscode = "transcode"
	StepThumbnail = "thumbnail"
	StepUpload    = "upload"
)

const (
	lowResContentType    = "video/mp4"
	thumbnailContentType = "image/jpeg"
)

// Toolkit is the media adapter surface the executor needs.
type Toolkit interface {
	Probe(ctx context.Context, path string) (ffmpeg.Info, error)
	TranscodeLowRes(ctx context.Context, input, output string, source ffmpeg.Info, targetHeight int, progress chan<- ffmpeg.Progress) (ffmpeg.Dimensions, error)
	ExtractThumbnail(ctx context.Context, input, output string, source ffmpeg.Info, atPercent float64) error
}

// Job is the input of one run. When Content is empty the original is read
// back from storage using StoredFilename.
type Job struct {
	ID             string
	StoredFilename string
	Content        []byte
}

// Result is the outcome of one successful run.
type Result struct {
	LowResKey    string
	LowResURL    string
	ThumbnailKey string
	ThumbnailURL string
	Metadata     jobs.Metadata
	Output       ffmpeg.Dimensions
}

// Outcome converts the result into the job record update.
func (r Result) Outcome() jobs.Outcome {
	return jobs.Outcome{
		LowResURL:    r.LowResURL,
		ThumbnailURL: r.ThumbnailURL,
		Metadata:     r.Metadata,
	}
}

// StepError identifies the step that aborted a run.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// FailedStep returns the step recorded in err, if any.
func FailedStep(err error) string {
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return stepErr.Step
	}
	return ""
}

// Executor runs pipelines. It is safe for concurrent use; runs share nothing
// but the storage gateway and toolkit.
type Executor struct {
	storage         storage.Gateway
	toolkit         Toolkit
	workDir         string
	targetHeight    int
	thumbnailOffset float64
	logger          *slog.Logger
	now             func() time.Time
	seq             atomic.Uint64
}

// NewExecutor wires an executor from configuration.
func NewExecutor(cfg *config.Config, gateway storage.Gateway, toolkit Toolkit, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Executor{
		storage:         gateway,
		toolkit:         toolkit,
		workDir:         cfg.Paths.WorkDir,
		targetHeight:    cfg.Media.TargetHeight,
		thumbnailOffset: cfg.Media.ThumbnailOffsetPercent,
		logger:          logger.With(logging.String(logging.FieldComponent, "pipeline")),
		now:             time.Now,
	}
}

// runPaths are the private temporary files of one run.
type runPaths struct {
	dir       string
	input     string
	output    string
	thumbnail string
}

func (e *Executor) pathsFor(job Job) runPaths {
	name := path.Base(job.StoredFilename)
	base := strings.TrimSuffix(name, path.Ext(name))
	dir := filepath.Join(e.workDir, fmt.Sprintf("%s-%d-%d", textutil.SanitizeToken(job.ID), e.now().UnixNano(), e.seq.Add(1)))
	return runPaths{
		dir:       dir,
		input:     filepath.Join(dir, "input_"+name),
		output:    filepath.Join(dir, "output_"+name),
		thumbnail: filepath.Join(dir, "thumb_"+base+".jpg"),
	}
}

// Run executes every step for job in order and returns the uploaded outputs.
func (e *Executor) Run(ctx context.Context, job Job) (Result, error) {
	if strings.TrimSpace(job.ID) == "" || strings.TrimSpace(job.StoredFilename) == "" {
		return Result{}, &StepError{Step: StepStage, Err: services.Wrap(services.ErrValidation, StepStage, "", "job id and stored filename are required", nil)}
	}
	ctx = services.WithJobID(ctx, job.ID)
	logger := logging.WithContext(ctx, e.logger)
	paths := e.pathsFor(job)
	defer e.cleanup(logger, paths)

	started := time.Now()
	if err := e.step(ctx, logger, StepStage, func(ctx context.Context) error {
		return e.stageInput(ctx, job, paths)
	}); err != nil {
		return Result{}, err
	}

	var info ffmpeg.Info
	if err := e.step(ctx, logger, StepProbe, func(ctx context.Context) error {
		var err error
		info, err = e.toolkit.Probe(ctx, paths.input)
		return err
	}); err != nil {
		return Result{}, err
	}

	var dims ffmpeg.Dimensions
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return e.step(groupCtx, logger, StepTranscode, func(ctx context.Context) error {
			var err error
			dims, err = e.transcode(ctx, logger, paths, info)
			return err
		})
	})
	group.Go(func() error {
		return e.step(groupCtx, logger, StepThumbnail, func(ctx context.Context) error {
			return e.toolkit.ExtractThumbnail(ctx, paths.input, paths.thumbnail, info, e.thumbnailOffset)
		})
	})
	if err := group.Wait(); err != nil {
		return Result{}, err
	}

	result := Result{
		LowResKey:    storage.LowResKey(job.StoredFilename),
		ThumbnailKey: storage.ThumbnailKey(job.StoredFilename),
		Metadata: jobs.Metadata{
			DurationSeconds: info.DurationSeconds,
			Width:           info.Width,
			Height:          info.Height,
		},
		Output: dims,
	}
	if err := e.step(ctx, logger, StepUpload, func(ctx context.Context) error {
		return e.upload(ctx, paths, &result)
	}); err != nil {
		return Result{}, err
	}

	logger.Info("pipeline completed",
		logging.String(logging.FieldEventType, "pipeline_complete"),
		logging.String("low_res_key", result.LowResKey),
		logging.String("thumbnail_key", result.ThumbnailKey),
		logging.Float64("duration_seconds", info.DurationSeconds),
		logging.Int("output_width", dims.Width),
		logging.Int("output_height", dims.Height),
		logging.Duration("elapsed", time.Since(started)),
	)
	return result, nil
}

// step runs fn with step context and wraps any failure in a *StepError.
func (e *Executor) step(ctx context.Context, logger *slog.Logger, name string, fn func(context.Context) error) error {
	stepCtx := services.WithStep(ctx, name)
	started := time.Now()
	logger.Debug("step started",
		logging.String(logging.FieldStep, name),
		logging.String(logging.FieldEventType, "step_start"),
	)
	if err := fn(stepCtx); err != nil {
		logger.Warn("step failed",
			logging.String(logging.FieldStep, name),
			logging.String(logging.FieldEventType, "step_failure"),
			logging.String(logging.FieldErrorKind, string(services.KindOf(err))),
			logging.Error(err),
		)
		return &StepError{Step: name, Err: err}
	}
	logger.Debug("step completed",
		logging.String(logging.FieldStep, name),
		logging.String(logging.FieldEventType, "step_complete"),
		logging.Duration("elapsed", time.Since(started)),
	)
	return nil
}

func (e *Executor) stageInput(ctx context.Context, job Job, paths runPaths) error {
	content := job.Content
	if len(content) == 0 {
		data, err := e.storage.Get(ctx, job.StoredFilename)
		if err != nil {
			return err
		}
		content = data
	}
	if err := os.MkdirAll(paths.dir, 0o700); err != nil {
		return services.Wrap(services.ErrTransient, StepStage, "create run directory", paths.dir, err)
	}
	if err := fileutil.WriteAtomic(paths.input, content, 0o600); err != nil {
		return services.Wrap(services.ErrTransient, StepStage, "write input", paths.input, err)
	}
	return nil
}

func (e *Executor) transcode(ctx context.Context, logger *slog.Logger, paths runPaths, info ffmpeg.Info) (ffmpeg.Dimensions, error) {
	progress := make(chan ffmpeg.Progress, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		sampler := logging.NewProgressSampler(10)
		for p := range progress {
			if sampler.ShouldLog(p.Percent) {
				logger.Info("transcode progress",
					logging.String(logging.FieldStep, StepTranscode),
					logging.Float64("percent", p.Percent),
					logging.Duration("out_time", p.OutTime),
				)
			}
		}
	}()
	dims, err := e.toolkit.TranscodeLowRes(ctx, paths.input, paths.output, info, e.targetHeight, progress)
	close(progress)
	<-done
	return dims, err
}

func (e *Executor) upload(ctx context.Context, paths runPaths, result *Result) error {
	lowRes, err := os.ReadFile(paths.output)
	if err != nil {
		return services.Wrap(services.ErrTransient, StepUpload, "read low-res output", paths.output, err)
	}
	thumbnail, err := os.ReadFile(paths.thumbnail)
	if err != nil {
		return services.Wrap(services.ErrTransient, StepUpload, "read thumbnail", paths.thumbnail, err)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		locator, err := e.storage.Put(groupCtx, result.LowResKey, lowRes, lowResContentType)
		result.LowResURL = locator
		return err
	})
	group.Go(func() error {
		locator, err := e.storage.Put(groupCtx, result.ThumbnailKey, thumbnail, thumbnailContentType)
		result.ThumbnailURL = locator
		return err
	})
	return group.Wait()
}

// cleanup removes the run's files. Problems are logged only.
func (e *Executor) cleanup(logger *slog.Logger, paths runPaths) {
	for _, file := range []string{paths.input, paths.output, paths.thumbnail} {
		existed, err := fileutil.RemoveIfExists(file)
		switch {
		case err != nil:
			logger.Warn("temp file cleanup failed", logging.String("path", file), logging.Error(err))
		case !existed:
			logger.Debug("temp file already absent", logging.String("path", file))
		}
	}
	if err := os.Remove(paths.dir); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("temp dir cleanup failed", logging.String("path", paths.dir), logging.Error(err))
	}
}
