// Package fetch implements the layered download strategies: specialized
// extractor, direct streamed fetch, and generic gallery extractor. Each
// strategy is an opaque "attempt" the orchestrator tries in order.
package fetch

import (
	"net/url"
	"path"
	"strings"
)

// videoExtensions marks media URLs that are very likely raw video or
// stream manifests, which the specialized extractor handles best.
var videoExtensions = []string{".mp4", ".webm", ".m3u8", ".mov", ".avi", ".mkv"}

// looksLikeVideo reports whether the URL path carries a known video or
// stream extension.
func looksLikeVideo(mediaURL string) bool {
	lower := strings.ToLower(mediaURL)
	for _, ext := range videoExtensions {
		if strings.Contains(lower, ext) {
			return true
		}
	}
	return false
}

// filenameFromURL derives a safe local filename from a URL path,
// falling back to a fixed name when the path has no usable base.
func filenameFromURL(mediaURL, fallback string) string {
	parsed, err := url.Parse(mediaURL)
	if err != nil {
		return fallback
	}
	base := path.Base(parsed.Path)
	if base == "" || base == "/" || base == "." {
		return fallback
	}
	return sanitizeFilename(base)
}

// sanitizeFilename strips characters that are unsafe in filenames on the
// common filesystems.
func sanitizeFilename(name string) string {
	const unsafe = `<>:"/\|?*`
	var b strings.Builder
	for _, r := range name {
		if strings.ContainsRune(unsafe, r) || r < 0x20 {
			b.WriteRune('_')
			continue
		}
		b.WriteRune(r)
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "download"
	}
	return out
}

// stem returns the filename without its extension.
func stem(name string) string {
	return strings.TrimSuffix(name, path.Ext(name))
}
