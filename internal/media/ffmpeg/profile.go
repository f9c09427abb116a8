package ffmpeg

import (
	"math"

	"vidqueue/internal/config"
)

// Profile is the fixed low-resolution rendition and thumbnail format.
type Profile struct {
	TargetHeight           int
	VideoBitrate           string
	AudioBitrate           string
	Preset                 string
	ThumbnailWidth         int
	ThumbnailHeight        int
	ThumbnailOffsetPercent float64
}

// ProfileFromConfig copies the media section into a Profile.
func ProfileFromConfig(cfg config.Media) Profile {
	return Profile{
		TargetHeight:           cfg.TargetHeight,
		VideoBitrate:           cfg.VideoBitrate,
		AudioBitrate:           cfg.AudioBitrate,
		Preset:                 cfg.Preset,
		ThumbnailWidth:         cfg.ThumbnailWidth,
		ThumbnailHeight:        cfg.ThumbnailHeight,
		ThumbnailOffsetPercent: cfg.ThumbnailOffsetPercent,
	}
}

// Dimensions is a frame size in pixels.
type Dimensions struct {
	Width  int
	Height int
}

// ScaledDimensions scales a source aspect ratio to targetHeight. Both sides
// are rounded up to the nearest even number for 4:2:0 chroma subsampling, so
// 16:9 at 480 yields 854x480.
func ScaledDimensions(aspect float64, targetHeight int) Dimensions {
	height := evenCeil(targetHeight)
	if aspect <= 0 || math.IsNaN(aspect) || math.IsInf(aspect, 0) {
		aspect = 16.0 / 9.0
	}
	width := evenCeil(int(math.Round(aspect * float64(height))))
	return Dimensions{Width: max(width, 2), Height: max(height, 2)}
}

func evenCeil(v int) int {
	if v%2 != 0 {
		return v + 1
	}
	return v
}
