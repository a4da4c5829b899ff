package hashindex

import (
	"path/filepath"
	"strings"
)

var videoExtensions = map[string]bool{
	".mp4": true, ".webm": true, ".mov": true, ".avi": true, ".mkv": true,
	".flv": true, ".wmv": true, ".m4v": true, ".mpg": true, ".mpeg": true,
}

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true,
	".webp": true, ".tiff": true, ".svg": true,
}

// Stats aggregates descriptive counts over the index. Type is inferred
// from file extension only.
type Stats struct {
	TotalFiles     int
	VideoCount     int
	ImageCount     int
	OtherCount     int
	TotalSizeBytes int64
}

// Statistics computes aggregate counts and sizes by coarse media type.
func (x *Index) Statistics() Stats {
	x.mu.Lock()
	defer x.mu.Unlock()

	var s Stats
	for _, e := range x.entries {
		s.TotalFiles++
		s.TotalSizeBytes += e.Size

		ext := strings.ToLower(filepath.Ext(e.Path))
		switch {
		case videoExtensions[ext]:
			s.VideoCount++
		case imageExtensions[ext]:
			s.ImageCount++
		default:
			s.OtherCount++
		}
	}
	return s
}
