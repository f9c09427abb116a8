package audio

import (
	"strconv"
	"strings"

	"vidqueue/internal/media/ffprobe"
)

// Selection is the chosen source audio track. Index is the container
// stream index, or -1 when the source has no audio.
type Selection struct {
	Stream ffprobe.Stream
	Index  int
}

// Found reports whether a track was selected.
func (s Selection) Found() bool { return s.Index >= 0 }

// MapSpec returns the ffmpeg -map specifier for the selection.
func (s Selection) MapSpec() string {
	if !s.Found() {
		return ""
	}
	return "0:" + strconv.Itoa(s.Index)
}

// Label returns a short human-readable summary of the selected track.
func (s Selection) Label() string {
	if !s.Found() {
		return ""
	}
	return formatStreamSummary(s.Stream)
}

// Select returns the best audio track among streams.
func Select(streams []ffprobe.Stream) Selection {
	best := Selection{Index: -1}
	bestScore := 0.0
	order := 0
	for _, stream := range streams {
		if !strings.EqualFold(stream.CodecType, "audio") {
			continue
		}
		score := scoreStream(stream, order)
		if !best.Found() || score > bestScore {
			best = Selection{Stream: stream, Index: stream.Index}
			bestScore = score
		}
		order++
	}
	return best
}

func scoreStream(stream ffprobe.Stream, order int) float64 {
	score := 0.0
	if !isCommentary(stream) {
		score += 10000
	}
	if stream.Disposition.Default == 1 {
		score += 2000
	}
	switch channels := channelCount(stream); {
	case channels >= 8:
		score += 1000
	case channels >= 6:
		score += 800
	case channels >= 4:
		score += 600
	case channels >= 2:
		score += 400
	default:
		score += 200
	}
	if isLossless(stream) {
		score += 100
	} else {
		score += 50
	}
	return score - float64(order)*0.1
}

func isCommentary(stream ffprobe.Stream) bool {
	if stream.Disposition.Comment == 1 {
		return true
	}
	return strings.Contains(tagValue(stream.Tags, "title", "handler_name"), "commentary")
}

func tagValue(tags map[string]string, keys ...string) string {
	for _, key := range keys {
		for k, v := range tags {
			if strings.EqualFold(k, key) {
				return strings.ToLower(strings.TrimSpace(v))
			}
		}
	}
	return ""
}

func channelCount(stream ffprobe.Stream) int {
	if stream.Channels > 0 {
		return stream.Channels
	}
	layout := strings.ToLower(strings.TrimSpace(stream.ChannelLayout))
	switch {
	case layout == "":
		return 0
	case layout == "mono":
		return 1
	case layout == "stereo":
		return 2
	}
	// "5.1(side)" -> 5 + 1
	total := 0
	for _, part := range strings.Split(layout, ".") {
		part = strings.Trim(part, "abcdefghijklmnopqrstuvwxyz ()")
		if n, err := strconv.Atoi(part); err == nil {
			total += n
		}
	}
	return total
}

func isLossless(stream ffprobe.Stream) bool {
	name := strings.ToLower(stream.CodecName)
	switch name {
	case "truehd", "flac", "mlp", "alac":
		return true
	}
	return strings.HasPrefix(name, "pcm_")
}

func formatStreamSummary(stream ffprobe.Stream) string {
	parts := make([]string, 0, 4)
	if lang := tagValue(stream.Tags, "language"); lang != "" {
		parts = append(parts, lang)
	}
	if stream.CodecName != "" {
		parts = append(parts, stream.CodecName)
	}
	if channels := channelCount(stream); channels > 0 {
		parts = append(parts, strconv.Itoa(channels)+"ch")
	}
	if title := strings.TrimSpace(stream.Tags["title"]); title != "" {
		parts = append(parts, title)
	}
	if len(parts) == 0 {
		return "audio"
	}
	return strings.Join(parts, " | ")
}
