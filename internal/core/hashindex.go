package core

// HashIndex is the content-addressed view of everything already archived:
// SHA-256 digest of file content mapped to the canonical path on disk.
// Implementations must be safe for concurrent use by download workers.
type HashIndex interface {
	// HashFile streams the file and returns its SHA-256 hex digest.
	// Returns "" on any read failure rather than an error.
	HashFile(path string) string

	// Record computes the file's digest and upserts an entry for it.
	// Calling it twice for the same path is a no-op.
	Record(path, originURL string, metadata map[string]string)

	// PathForDigest returns the canonical path recorded for a digest.
	// When verifyExists is set and the recorded path no longer exists on
	// disk, the stale entry is evicted and (_, false) is returned.
	PathForDigest(digest string, verifyExists bool) (string, bool)

	// Remove drops the entry whose path matches. Reports whether an
	// entry was removed.
	Remove(path string) bool

	// Move rewrites the stored path for a file that was relocated,
	// without rehashing content. Reports whether an entry matched.
	Move(oldPath, newPath string) bool
}
