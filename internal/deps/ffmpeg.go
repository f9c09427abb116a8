package deps

import (
	"os"
	"runtime"
	"strings"

	"vidqueue/internal/config"
)

// MediaRequirements lists the media toolkit binaries configured for the
// pipeline. Both are required: probing gates every job and transcoding is the
// job.
func MediaRequirements(cfg config.Media) []Requirement {
	return []Requirement{
		{
			Name:        "FFprobe",
			Command:     cfg.FFprobeBinary,
			Description: "Reads duration and dimensions of submitted videos",
		},
		{
			Name:        "FFmpeg",
			Command:     cfg.FFmpegBinary,
			Description: "Transcodes low-res proxies and extracts thumbnails",
		},
	}
}

// CheckMedia reports availability of the configured media toolkit.
func CheckMedia(cfg config.Media) []Status {
	return CheckBinaries(MediaRequirements(cfg))
}

// hasPathSeparator reports whether cmd names a file rather than a PATH entry.
func hasPathSeparator(cmd string) bool {
	return strings.ContainsRune(cmd, '/') || (runtime.GOOS == "windows" && strings.ContainsRune(cmd, '\\'))
}

func isExecutable(info os.FileInfo) bool {
	if info == nil {
		return false
	}
	if info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
