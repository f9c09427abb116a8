package storage

import (
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"vidqueue/internal/textutil"
)

const (
	lowResMarker    = "_low"
	thumbnailMarker = "_thumb"
	thumbnailExt    = ".jpg"
)

// StoredName assigns the storage key for a newly submitted original:
// "<unix millis>_<token>_<sanitized name>". The token keeps same-named
// submissions within one millisecond from sharing a key.
func StoredName(now time.Time, token, originalName string) string {
	return strconv.FormatInt(now.UnixMilli(), 10) + "_" + token + "_" + textutil.SanitizeFileName(originalName)
}

// NewKeyToken returns a short random token for StoredName.
func NewKeyToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// LowResKey derives the low-resolution output key by inserting "_low" before
// the extension: "a/clip.mp4" becomes "a/clip_low.mp4".
func LowResKey(key string) string {
	ext := path.Ext(key)
	return strings.TrimSuffix(key, ext) + lowResMarker + ext
}

// ThumbnailKey derives the thumbnail key by replacing the extension with
// "_thumb.jpg": "a/clip.mp4" becomes "a/clip_thumb.jpg".
func ThumbnailKey(key string) string {
	ext := path.Ext(key)
	return strings.TrimSuffix(key, ext) + thumbnailMarker + thumbnailExt
}
