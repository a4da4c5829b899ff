package core

// Candidate is a discovered-but-not-yet-downloaded media reference.
// Candidates are produced during discovery and drained by the download
// phase. The JSON tags define the on-disk queue document format.
type Candidate struct {
	// SourcePage is the page the media was discovered on. It doubles as
	// the site key for logical dedup in the history store.
	SourcePage string `json:"source_page"`

	// MediaURL is the location to fetch.
	MediaURL string `json:"media_url"`

	// DownloadPath is the destination directory for the finalized file.
	DownloadPath string `json:"download_path"`

	// ForceVideo hints that the target is very likely a video, which
	// biases the extraction strategy order downstream.
	ForceVideo bool `json:"force_video"`

	// HistoryURL is the identifier used for logical dedup. It differs
	// from MediaURL when the visible link is a redirect wrapper.
	HistoryURL string `json:"history_url"`

	// ForceExtractor forces the specialized extractor even when the URL
	// does not look like a video.
	ForceExtractor bool `json:"force_extractor"`
}

// HistoryKey returns the identifier used for logical dedup, falling back
// to the media URL when no explicit history URL was recorded.
func (c Candidate) HistoryKey() string {
	if c.HistoryURL != "" {
		return c.HistoryURL
	}
	return c.MediaURL
}

// SiteKey returns the history-store site key for this candidate.
func (c Candidate) SiteKey() string {
	if c.SourcePage != "" {
		return c.SourcePage
	}
	return c.MediaURL
}
