package utils

import (
	"path/filepath"
	"strings"
)

// Truncate shortens s to max runes, appending an ellipsis when it cuts.
func Truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

var audioExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".ogg":  true,
	".oga":  true,
	".m4a":  true,
	".flac": true,
	".opus": true,
}

// IsAudioFile reports whether an attachment looks like audio, by content type
// first and extension as fallback.
func IsAudioFile(filename, contentType string) bool {
	if strings.HasPrefix(contentType, "audio/") {
		return true
	}
	return audioExtensions[strings.ToLower(filepath.Ext(filename))]
}
