// Package history tracks which logical items (post IDs, tweet IDs, media
// URLs) have already been processed, independently of file content, so
// idempotent sources are not even probed again.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"hoard/internal/core"
	hfs "hoard/internal/fs"
)

// Entry is a structured website history record. Legacy bare-string
// entries are upgraded to this form when the document is loaded.
type Entry struct {
	MediaURL string `json:"media_url"`
	Filename string `json:"filename,omitempty"`
	SHA256   string `json:"sha256,omitempty"`
	Filepath string `json:"filepath,omitempty"`
}

// document is the on-disk JSON shape.
type document struct {
	RedditPosts   map[string][]string `json:"reddit_posts"`
	TwitterTweets map[string][]string `json:"twitter_tweets"`
	Websites      map[string][]Entry  `json:"websites"`
	LastUpdated   map[string]string   `json:"last_updated"`
}

// rawDocument accepts the legacy format where website entries may be
// bare URL strings.
type rawDocument struct {
	RedditPosts   map[string][]string          `json:"reddit_posts"`
	TwitterTweets map[string][]string          `json:"twitter_tweets"`
	Websites      map[string][]json.RawMessage `json:"websites"`
	LastUpdated   map[string]string            `json:"last_updated"`
}

// flushEvery bounds write amplification: the document is rewritten after
// this many mutations rather than after every single item. Flush forces
// a write on shutdown/error paths.
const flushEvery = 25

// Store is the durable download history with three independent
// namespaces. Safe for concurrent use.
type Store struct {
	path   string
	logger core.Logger
	clock  core.Clock

	mu      sync.Mutex
	reddit  map[string][]string
	twitter map[string][]string
	sites   map[string][]Entry
	updated map[string]string

	// membership sets for O(1) reddit/twitter checks
	redditSeen  map[string]map[string]bool
	twitterSeen map[string]map[string]bool

	dirty int
}

// Compile-time check that Store implements core.History.
var _ core.History = (*Store)(nil)

// New loads the history from path. Missing or corrupt storage falls back
// to an empty structure rather than failing.
func New(path string, logger core.Logger, clock core.Clock) *Store {
	s := &Store{
		path:        path,
		logger:      logger,
		clock:       clock,
		reddit:      make(map[string][]string),
		twitter:     make(map[string][]string),
		sites:       make(map[string][]Entry),
		updated:     make(map[string]string),
		redditSeen:  make(map[string]map[string]bool),
		twitterSeen: make(map[string]map[string]bool),
	}
	s.load()
	return s
}

func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	var raw rawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		s.logger.Warn("history unreadable, starting empty", "path", s.path, "error", err)
		return
	}

	if raw.RedditPosts != nil {
		s.reddit = raw.RedditPosts
	}
	if raw.TwitterTweets != nil {
		s.twitter = raw.TwitterTweets
	}
	if raw.LastUpdated != nil {
		s.updated = raw.LastUpdated
	}

	// One-time upgrade pass: legacy bare-string entries become
	// structured records, so the rest of the code sees one format.
	for site, rawEntries := range raw.Websites {
		entries := make([]Entry, 0, len(rawEntries))
		for _, rm := range rawEntries {
			var legacy string
			if err := json.Unmarshal(rm, &legacy); err == nil {
				entries = append(entries, Entry{MediaURL: legacy})
				continue
			}
			var e Entry
			if err := json.Unmarshal(rm, &e); err == nil && e.MediaURL != "" {
				entries = append(entries, e)
			}
		}
		s.sites[site] = entries
	}

	for source, ids := range s.reddit {
		s.redditSeen[source] = toSet(ids)
	}
	for user, ids := range s.twitter {
		s.twitterSeen[user] = toSet(ids)
	}
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// save persists the document. Must be called with the lock held.
// Failures are logged and the dirty count retained so the next write
// retries.
func (s *Store) save() {
	doc := document{
		RedditPosts:   s.reddit,
		TwitterTweets: s.twitter,
		Websites:      s.sites,
		LastUpdated:   s.updated,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		s.logger.Error("marshaling history", "error", err)
		return
	}
	if err := hfs.WriteFileAtomic(s.path, data); err != nil {
		s.logger.Warn("saving history", "path", s.path, "error", err)
		return
	}
	s.dirty = 0
}

// touch records when a source was last updated. Lock must be held.
func (s *Store) touch(ns core.Namespace, sourceKey string) {
	s.updated[fmt.Sprintf("%s:%s", ns, sourceKey)] = s.clock.Now().Format(time.RFC3339)
}

// markDirty counts a mutation and persists once enough have accumulated.
// Lock must be held.
func (s *Store) markDirty() {
	s.dirty++
	if s.dirty >= flushEvery {
		s.save()
	}
}

// IsDone reports whether an item has been processed for a source.
func (s *Store) IsDone(ns core.Namespace, sourceKey, itemID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ns {
	case core.NamespaceReddit:
		return s.redditSeen[sourceKey][itemID]
	case core.NamespaceTwitter:
		return s.twitterSeen[sourceKey][itemID]
	case core.NamespaceWebsites:
		for _, e := range s.sites[sourceKey] {
			if e.MediaURL == itemID {
				return true
			}
		}
	}
	return false
}

// MarkDone records an item as processed. Adding the same ID twice is a
// no-op.
func (s *Store) MarkDone(ns core.Namespace, sourceKey, itemID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ns {
	case core.NamespaceReddit:
		if s.redditSeen[sourceKey][itemID] {
			return
		}
		if s.redditSeen[sourceKey] == nil {
			s.redditSeen[sourceKey] = make(map[string]bool)
		}
		s.redditSeen[sourceKey][itemID] = true
		s.reddit[sourceKey] = append(s.reddit[sourceKey], itemID)
	case core.NamespaceTwitter:
		if s.twitterSeen[sourceKey][itemID] {
			return
		}
		if s.twitterSeen[sourceKey] == nil {
			s.twitterSeen[sourceKey] = make(map[string]bool)
		}
		s.twitterSeen[sourceKey][itemID] = true
		s.twitter[sourceKey] = append(s.twitter[sourceKey], itemID)
	case core.NamespaceWebsites:
		s.upsertEntry(sourceKey, Entry{MediaURL: itemID})
		// upsertEntry handles touch/dirty itself
		return
	default:
		return
	}
	s.touch(ns, sourceKey)
	s.markDirty()
}

// RecordMedia records a successfully archived website item with its
// filename, digest, and final path. Implies MarkDone for the websites
// namespace.
func (s *Store) RecordMedia(site, mediaURL, filename, digest, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertEntry(site, Entry{
		MediaURL: mediaURL,
		Filename: filename,
		SHA256:   digest,
		Filepath: path,
	})
}

// upsertEntry adds or completes a website entry: an existing entry for
// the same media URL gets its missing fields filled in rather than being
// duplicated. Lock must be held.
func (s *Store) upsertEntry(site string, e Entry) {
	entries := s.sites[site]
	for i := range entries {
		if entries[i].MediaURL != e.MediaURL {
			continue
		}
		changed := false
		if entries[i].Filename == "" && e.Filename != "" {
			entries[i].Filename = e.Filename
			changed = true
		}
		if entries[i].SHA256 == "" && e.SHA256 != "" {
			entries[i].SHA256 = e.SHA256
			changed = true
		}
		if entries[i].Filepath == "" && e.Filepath != "" {
			entries[i].Filepath = e.Filepath
			changed = true
		}
		if changed {
			s.touch(core.NamespaceWebsites, site)
			s.markDirty()
		}
		return
	}

	s.sites[site] = append(entries, e)
	s.touch(core.NamespaceWebsites, site)
	s.markDirty()
}

// PathForSHA returns the recorded file path for a content digest if any
// website entry carries it. Linear scan across all sites: correctness
// over asymptotics at this store's scale.
func (s *Store) PathForSHA(digest string) (string, bool) {
	site, e := s.EntryForSHA(digest)
	if site == "" || e == nil {
		return "", false
	}
	return e.Filepath, e.Filepath != ""
}

// IsSHADownloaded reports whether a content digest appears anywhere in
// the websites namespace.
func (s *Store) IsSHADownloaded(digest string) bool {
	site, _ := s.EntryForSHA(digest)
	return site != ""
}

// EntryForSHA returns the (site, entry) carrying a content digest, or
// ("", nil) when absent.
func (s *Store) EntryForSHA(digest string) (string, *Entry) {
	if digest == "" {
		return "", nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for site, entries := range s.sites {
		for i := range entries {
			if entries[i].SHA256 == digest {
				e := entries[i]
				return site, &e
			}
		}
	}
	return "", nil
}

// SiteEntries returns a copy of the entries recorded for a site.
func (s *Store) SiteEntries(site string) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.sites[site]))
	copy(out, s.sites[site])
	return out
}

// LastUpdated returns the recorded timestamp for a namespace:source key,
// or "" when the source was never touched.
func (s *Store) LastUpdated(ns core.Namespace, sourceKey string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updated[fmt.Sprintf("%s:%s", ns, sourceKey)]
}

// Flush forces pending changes to disk. Always safe to call; a clean
// store is a no-op.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dirty == 0 {
		return nil
	}
	s.save()
	if s.dirty != 0 {
		return fmt.Errorf("history not persisted to %s", s.path)
	}
	return nil
}
