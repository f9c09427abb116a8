package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"vidqueue/internal/config"
	"vidqueue/internal/logging"
	"vidqueue/internal/media/audio"
	"vidqueue/internal/media/ffprobe"
	"vidqueue/internal/services"
)

// ErrNoVideoStream marks input without a decodable picture track.
var ErrNoVideoStream = errors.New("no decodable video stream")

// Info is the probed description of a source file.
type Info struct {
	DurationSeconds float64
	Width           int
	Height          int
	Aspect          float64
	HasAudio        bool
	// AudioMap is the -map specifier of the selected source audio track.
	AudioMap        string
	AudioLabel      string
}

// Progress is a transcode progress sample.
type Progress struct {
	Percent float64
	OutTime time.Duration
}

// Toolkit runs ffprobe and ffmpeg.
type Toolkit struct {
	ffmpegBinary  string
	ffprobeBinary string
	profile       Profile
	logger        *slog.Logger
}

// New builds a Toolkit from the media configuration.
func New(cfg config.Media, logger *slog.Logger) *Toolkit {
	if logger == nil {
		logger = logging.NewNop()
	}
	ffmpegBinary := strings.TrimSpace(cfg.FFmpegBinary)
	if ffmpegBinary == "" {
		ffmpegBinary = "ffmpeg"
	}
	return &Toolkit{
		ffmpegBinary:  ffmpegBinary,
		ffprobeBinary: strings.TrimSpace(cfg.FFprobeBinary),
		profile:       ProfileFromConfig(cfg),
		logger:        logger.With(logging.String(logging.FieldComponent, "ffmpeg")),
	}
}

// Profile returns the rendition settings in use.
func (t *Toolkit) Profile() Profile { return t.profile }

// Probe inspects path and returns its duration and primary picture size.
func (t *Toolkit) Probe(ctx context.Context, path string) (Info, error) {
	result, err := ffprobe.Inspect(ctx, t.ffprobeBinary, path)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			return Info{}, services.Wrap(services.ErrInputDefect, "probe", "ffprobe", "unreadable media", err)
		}
		if strings.Contains(err.Error(), "ffprobe parse") {
			return Info{}, services.Wrap(services.ErrInputDefect, "probe", "ffprobe", "unparseable probe output", err)
		}
		return Info{}, services.Wrap(services.ErrToolkitFailure, "probe", "ffprobe", "", err)
	}
	video, ok := result.PrimaryVideo()
	if !ok {
		return Info{}, services.Wrap(services.ErrInputDefect, "probe", "ffprobe", "", ErrNoVideoStream)
	}
	track := audio.Select(result.Streams)
	return Info{
		DurationSeconds: result.DurationSeconds(),
		Width:           video.Width,
		Height:          video.Height,
		Aspect:          video.DisplayAspect(),
		HasAudio:        track.Found(),
		AudioMap:        track.MapSpec(),
		AudioLabel:      track.Label(),
	}, nil
}

// TranscodeLowRes encodes input into an H.264/AAC MP4 at targetHeight with
// fast-start enabled. When progress is non-nil, samples are sent without
// blocking; the channel is not closed.
func (t *Toolkit) TranscodeLowRes(ctx context.Context, input, output string, source Info, targetHeight int, progress chan<- Progress) (Dimensions, error) {
	if targetHeight <= 0 {
		targetHeight = t.profile.TargetHeight
	}
	dims := ScaledDimensions(source.Aspect, targetHeight)
	args := t.transcodeArgs(input, output, dims, source)
	t.logger.Debug("starting transcode",
		logging.String("input", input),
		logging.String("output", output),
		logging.Int("width", dims.Width),
		logging.Int("height", dims.Height),
		logging.String("audio", source.AudioLabel),
	)

	cmd := exec.CommandContext(ctx, t.ffmpegBinary, args...) //nolint:gosec
	stderr := newTailBuffer(stderrTailBytes)
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Dimensions{}, services.Wrap(services.ErrToolkitFailure, "transcode", "ffmpeg", "stdout pipe", err)
	}
	if err := cmd.Start(); err != nil {
		return Dimensions{}, services.Wrap(services.ErrToolkitFailure, "transcode", "ffmpeg", "start", err)
	}
	readProgress(stdout, source.DurationSeconds, progress)
	if err := cmd.Wait(); err != nil {
		return Dimensions{}, services.Wrap(services.ErrToolkitFailure, "transcode", "ffmpeg", stderr.String(), err)
	}
	if err := requireOutput(output); err != nil {
		return Dimensions{}, services.Wrap(services.ErrToolkitFailure, "transcode", "ffmpeg", "", err)
	}
	return dims, nil
}

// ExtractThumbnail writes a single frame taken atPercent of the way into the
// source, scaled to the profile's thumbnail size.
func (t *Toolkit) ExtractThumbnail(ctx context.Context, input, output string, source Info, atPercent float64) error {
	if atPercent < 0 || atPercent > 100 {
		atPercent = t.profile.ThumbnailOffsetPercent
	}
	offset := source.DurationSeconds * atPercent / 100
	args := []string{
		"-hide_banner", "-nostdin", "-y", "-loglevel", "error",
		"-ss", strconv.FormatFloat(offset, 'f', 3, 64),
		"-i", input,
		"-frames:v", "1",
		"-s", fmt.Sprintf("%dx%d", t.profile.ThumbnailWidth, t.profile.ThumbnailHeight),
		"-q:v", "2",
		"-f", "image2",
		output,
	}
	cmd := exec.CommandContext(ctx, t.ffmpegBinary, args...) //nolint:gosec
	stderr := newTailBuffer(stderrTailBytes)
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		return services.Wrap(services.ErrToolkitFailure, "thumbnail", "ffmpeg", stderr.String(), err)
	}
	if err := requireOutput(output); err != nil {
		return services.Wrap(services.ErrToolkitFailure, "thumbnail", "ffmpeg", "", err)
	}
	return nil
}

func (t *Toolkit) transcodeArgs(input, output string, dims Dimensions, source Info) []string {
	args := []string{
		"-hide_banner", "-nostdin", "-y", "-loglevel", "error",
		"-i", input,
		"-map", "0:v:0",
		"-vf", fmt.Sprintf("scale=%d:%d", dims.Width, dims.Height),
		"-c:v", "libx264",
		"-preset", t.profile.Preset,
		"-b:v", t.profile.VideoBitrate,
		"-maxrate", t.profile.VideoBitrate,
		"-bufsize", t.profile.VideoBitrate,
		"-pix_fmt", "yuv420p",
	}
	if source.HasAudio {
		audioMap := source.AudioMap
		if audioMap == "" {
			audioMap = "0:a:0?"
		}
		args = append(args, "-map", audioMap, "-c:a", "aac", "-ac", "2", "-b:a", t.profile.AudioBitrate)
	} else {
		args = append(args, "-an")
	}
	return append(args,
		"-movflags", "+faststart",
		"-progress", "pipe:1", "-nostats",
		"-f", "mp4",
		output,
	)
}

// readProgress consumes ffmpeg's -progress key=value stream until EOF.
func readProgress(r io.Reader, durationSeconds float64, progress chan<- Progress) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok || progress == nil {
			continue
		}
		switch key {
		case "out_time_us", "out_time_ms":
			// out_time_ms is also reported in microseconds.
			us, err := strconv.ParseInt(value, 10, 64)
			if err != nil || us < 0 {
				continue
			}
			outTime := time.Duration(us) * time.Microsecond
			notify(progress, Progress{Percent: percentOf(outTime, durationSeconds), OutTime: outTime})
		case "progress":
			if value == "end" {
				notify(progress, Progress{Percent: 100, OutTime: time.Duration(durationSeconds * float64(time.Second))})
			}
		}
	}
}

func percentOf(outTime time.Duration, durationSeconds float64) float64 {
	if durationSeconds <= 0 {
		return 0
	}
	return min(outTime.Seconds()/durationSeconds*100, 100)
}

func notify(ch chan<- Progress, p Progress) {
	select {
	case ch <- p:
	default:
	}
}

func requireOutput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("output missing: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("output %s is empty", path)
	}
	return nil
}
