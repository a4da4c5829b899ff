package core

// Namespace identifies one of the independent logical-dedup namespaces in
// the download history.
type Namespace string

const (
	NamespaceReddit   Namespace = "reddit"
	NamespaceTwitter  Namespace = "twitter"
	NamespaceWebsites Namespace = "websites"
)

// History is the logical-dedup store the pipeline consults before and
// after each download. Unlike the hash index it tracks item identity
// (post ID, tweet ID, media URL), not content identity.
// Implementations must be safe for concurrent use by download workers.
type History interface {
	// IsDone reports whether an item has already been processed for a
	// source. Membership is idempotent.
	IsDone(ns Namespace, sourceKey, itemID string) bool

	// MarkDone records an item as processed. Marking twice is a no-op.
	MarkDone(ns Namespace, sourceKey, itemID string)

	// RecordMedia records a successfully archived website item with its
	// filename, content digest, and final path. It implies MarkDone for
	// the websites namespace and upgrades any legacy entry in place.
	RecordMedia(site, mediaURL, filename, digest, path string)

	// PathForSHA returns the recorded file path for a content digest if
	// any website entry carries it, across all sites.
	PathForSHA(digest string) (string, bool)

	// Flush forces pending changes to durable storage.
	Flush() error
}
