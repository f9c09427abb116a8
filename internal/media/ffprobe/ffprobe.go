package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// Result represents the parsed output from an ffprobe inspection.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes a single stream in the media container.
type Stream struct {
	Index              int               `json:"index"`
	CodecName          string            `json:"codec_name"`
	CodecType          string            `json:"codec_type"`
	Duration           string            `json:"duration"`
	Width              int               `json:"width"`
	Height             int               `json:"height"`
	SampleAspectRatio  string            `json:"sample_aspect_ratio"`
	DisplayAspectRatio string            `json:"display_aspect_ratio"`
	Channels           int               `json:"channels"`
	ChannelLayout      string            `json:"channel_layout"`
	Tags               map[string]string `json:"tags"`
	Disposition        Disposition       `json:"disposition"`
}

// Disposition carries the stream flags relevant to picking a source track.
type Disposition struct {
	Default     int `json:"default"`
	Comment     int `json:"comment"`
	AttachedPic int `json:"attached_pic"`
}

// Format captures container-level metadata extracted by ffprobe.
type Format struct {
	Filename   string `json:"filename"`
	NBStreams  int    `json:"nb_streams"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	FormatName string `json:"format_name"`
}

// Inspect executes ffprobe against the provided path and decodes the JSON response.
// A non-zero exit is returned as an error wrapping *exec.ExitError so callers
// can tell unreadable input apart from a missing binary.
func Inspect(ctx context.Context, binary string, path string) (Result, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, errors.New("ffprobe inspect: empty path")
	}

	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		return Result{}, fmt.Errorf("ffprobe inspect: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	var result Result
	if err := json.Unmarshal(output, &result); err != nil {
		return Result{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return result, nil
}

// VideoStreamCount returns the number of video streams discovered, including
// attached pictures such as cover art.
func (r Result) VideoStreamCount() int {
	count := 0
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "video") {
			count++
		}
	}
	return count
}

// PrimaryVideo returns the first video stream with real picture dimensions.
// Cover-art streams are skipped.
func (r Result) PrimaryVideo() (Stream, bool) {
	for _, stream := range r.Streams {
		if !strings.EqualFold(stream.CodecType, "video") || stream.Disposition.AttachedPic == 1 {
			continue
		}
		if stream.Width > 0 && stream.Height > 0 {
			return stream, true
		}
	}
	return Stream{}, false
}

// HasAudio reports whether any audio stream is present.
func (r Result) HasAudio() bool {
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "audio") {
			return true
		}
	}
	return false
}

// DurationSeconds returns the container duration in seconds. When the
// container omits it, the longest stream duration is used; 0 means unknown.
func (r Result) DurationSeconds() float64 {
	if d := parseFloat(r.Format.Duration); d > 0 {
		return d
	}
	longest := 0.0
	for _, stream := range r.Streams {
		if d := parseFloat(stream.Duration); d > longest {
			longest = d
		}
	}
	return longest
}

// DisplayAspect returns the display aspect ratio of the stream, honouring a
// non-square sample aspect ratio. Returns 0 when dimensions are unknown.
func (s Stream) DisplayAspect() float64 {
	if s.Width <= 0 || s.Height <= 0 {
		return 0
	}
	aspect := float64(s.Width) / float64(s.Height)
	if sar := parseRatio(s.SampleAspectRatio); sar > 0 {
		aspect *= sar
	}
	return aspect
}

func parseRatio(value string) float64 {
	num, den, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok {
		return 0
	}
	n := parseFloat(num)
	d := parseFloat(den)
	if n <= 0 || d <= 0 || math.IsNaN(n) || math.IsNaN(d) {
		return 0
	}
	return n / d
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" || cleaned == "N/A" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil && !math.IsNaN(parsed) && !math.IsInf(parsed, 0) {
		return parsed
	}
	return 0
}
