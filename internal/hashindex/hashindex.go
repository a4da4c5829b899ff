// Package hashindex tracks archived files by their SHA-256 content digest
// so duplicates are detected even after files are renamed or moved.
package hashindex

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"hoard/internal/core"
	hfs "hoard/internal/fs"
)

// Entry is the recorded state for one content digest.
type Entry struct {
	Path     string            `json:"path"`
	Filename string            `json:"filename"`
	Size     int64             `json:"size"`
	URL      string            `json:"url,omitempty"`
	URLHash  string            `json:"url_hash,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Index is a content-addressed store mapping SHA-256 digest → canonical
// path + metadata, persisted as a single JSON document. At most one live
// entry exists per digest. Safe for concurrent use.
type Index struct {
	path   string
	logger core.Logger

	mu      sync.Mutex
	entries map[string]Entry
}

// Compile-time check that Index implements core.HashIndex.
var _ core.HashIndex = (*Index)(nil)

// New loads the index from path. A missing or corrupt file yields an
// empty index rather than an error.
func New(path string, logger core.Logger) *Index {
	idx := &Index{
		path:    path,
		logger:  logger,
		entries: make(map[string]Entry),
	}
	idx.load()
	return idx
}

func (x *Index) load() {
	data, err := os.ReadFile(x.path)
	if err != nil {
		return
	}
	var entries map[string]Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		x.logger.Warn("hash index unreadable, starting empty", "path", x.path, "error", err)
		return
	}
	x.entries = entries
}

// save persists the index. Must be called with the lock held. Failures
// are logged, never propagated: the in-memory state stays authoritative
// and the next successful write reconciles.
func (x *Index) save() {
	data, err := json.MarshalIndent(x.entries, "", "  ")
	if err != nil {
		x.logger.Error("marshaling hash index", "error", err)
		return
	}
	if err := hfs.WriteFileAtomic(x.path, data); err != nil {
		x.logger.Warn("saving hash index", "path", x.path, "error", err)
	}
}

// HashFile streams the file and returns its SHA-256 hex digest.
// Returns "" on any read failure (file vanished, permission denied).
func (x *Index) HashFile(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return ""
	}
	return hex.EncodeToString(h.Sum(nil))
}

// hashString returns the SHA-256 hex digest of a string (used for origin
// URLs — the URL text itself, not its content).
func hashString(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

// Record computes the file's digest and upserts its entry. Idempotent:
// recording the same path twice leaves one entry.
func (x *Index) Record(path, originURL string, metadata map[string]string) {
	digest := x.HashFile(path)
	if digest == "" {
		return
	}
	info, err := os.Stat(path)
	if err != nil {
		return
	}

	e := Entry{
		Path:     path,
		Filename: filepath.Base(path),
		Size:     info.Size(),
	}
	if originURL != "" {
		e.URL = originURL
		e.URLHash = hashString(originURL)
	}
	if len(metadata) > 0 {
		e.Metadata = metadata
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.entries[digest] = e
	x.save()
}

// PathForDigest returns the canonical path for a digest. With
// verifyExists set, a stale entry (file gone from disk) is evicted and
// reported as absent — lookups self-heal instead of returning false
// positives.
func (x *Index) PathForDigest(digest string, verifyExists bool) (string, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()

	e, ok := x.entries[digest]
	if !ok {
		return "", false
	}
	if verifyExists {
		if _, err := os.Stat(e.Path); err != nil {
			delete(x.entries, digest)
			x.save()
			return "", false
		}
	}
	return e.Path, true
}

// IsDuplicate hashes the candidate file and reports whether identical
// content is already tracked, returning the existing canonical path.
func (x *Index) IsDuplicate(path string, verifyExists bool) (bool, string) {
	digest := x.HashFile(path)
	if digest == "" {
		return false, ""
	}
	existing, ok := x.PathForDigest(digest, verifyExists)
	return ok, existing
}

// IsDuplicateURL reports whether a URL was already downloaded, matching
// on the stored origin-URL hash. Same self-healing eviction behavior as
// IsDuplicate when verifyExists is set.
func (x *Index) IsDuplicateURL(url string, verifyExists bool) bool {
	urlHash := hashString(url)

	x.mu.Lock()
	defer x.mu.Unlock()

	for digest, e := range x.entries {
		if e.URLHash != urlHash {
			continue
		}
		if verifyExists {
			if _, err := os.Stat(e.Path); err != nil {
				delete(x.entries, digest)
				x.save()
				return false
			}
		}
		return true
	}
	return false
}

// Remove drops the entry whose path matches.
func (x *Index) Remove(path string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	for digest, e := range x.entries {
		if e.Path == path {
			delete(x.entries, digest)
			x.save()
			return true
		}
	}
	return false
}

// Move rewrites the stored path for a relocated file without rehashing.
func (x *Index) Move(oldPath, newPath string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	for digest, e := range x.entries {
		if e.Path == oldPath {
			e.Path = newPath
			e.Filename = filepath.Base(newPath)
			x.entries[digest] = e
			x.save()
			return true
		}
	}
	return false
}

// scanProgressEvery is how many newly indexed files pass between progress
// callbacks during ScanTree.
const scanProgressEvery = 10

// ScanTree walks a directory tree and records every file whose content is
// not yet tracked. progress (optional) is invoked with the running count
// at a fixed cadence, not per file. Returns how many files were added.
func (x *Index) ScanTree(dir string, progress func(added int)) (int, error) {
	added := 0
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		digest := x.HashFile(p)
		if digest == "" {
			return nil
		}

		x.mu.Lock()
		_, seen := x.entries[digest]
		if !seen {
			info, statErr := os.Stat(p)
			if statErr == nil {
				x.entries[digest] = Entry{
					Path:     p,
					Filename: filepath.Base(p),
					Size:     info.Size(),
				}
				added++
			}
		}
		x.mu.Unlock()

		if !seen && progress != nil && added%scanProgressEvery == 0 {
			progress(added)
		}
		return nil
	})

	x.mu.Lock()
	x.save()
	x.mu.Unlock()

	if progress != nil {
		progress(added)
	}
	return added, err
}

// FindDuplicateGroups walks a directory tree, hashes every regular file,
// and returns the groups of paths sharing identical content. Only groups
// with two or more members are returned, keyed by digest. The index is
// not modified.
func (x *Index) FindDuplicateGroups(dir string) (map[string][]string, error) {
	byDigest := make(map[string][]string)
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		digest := x.HashFile(p)
		if digest == "" {
			return nil
		}
		byDigest[digest] = append(byDigest[digest], p)
		return nil
	})

	groups := make(map[string][]string)
	for digest, paths := range byDigest {
		if len(paths) > 1 {
			groups[digest] = paths
		}
	}
	return groups, err
}

// VerifyFiles reports how many tracked files are missing from disk
// without evicting them.
func (x *Index) VerifyFiles() int {
	x.mu.Lock()
	defer x.mu.Unlock()

	missing := 0
	for _, e := range x.entries {
		if _, err := os.Stat(e.Path); err != nil {
			missing++
		}
	}
	return missing
}

// CleanupMissing evicts all entries whose files no longer exist.
// Returns how many were removed.
func (x *Index) CleanupMissing() int {
	x.mu.Lock()
	defer x.mu.Unlock()

	removed := 0
	for digest, e := range x.entries {
		if _, err := os.Stat(e.Path); err != nil {
			delete(x.entries, digest)
			removed++
		}
	}
	if removed > 0 {
		x.save()
	}
	return removed
}

// Clear drops every entry.
func (x *Index) Clear() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.entries = make(map[string]Entry)
	x.save()
}

// Len returns the number of tracked digests.
func (x *Index) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.entries)
}
