package history

import (
	"fmt"

	"hoard/internal/core"
)

// Stats aggregates descriptive counts over the history.
type Stats struct {
	RedditSources int
	RedditPosts   int
	TwitterUsers  int
	TwitterTweets int
	Websites      int
	WebsiteItems  int
}

// Statistics computes per-namespace counts.
func (s *Store) Statistics() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st Stats
	st.RedditSources = len(s.reddit)
	for _, ids := range s.reddit {
		st.RedditPosts += len(ids)
	}
	st.TwitterUsers = len(s.twitter)
	for _, ids := range s.twitter {
		st.TwitterTweets += len(ids)
	}
	st.Websites = len(s.sites)
	for _, entries := range s.sites {
		st.WebsiteItems += len(entries)
	}
	return st
}

// ClearSource removes all history for one source in one namespace and
// persists immediately.
func (s *Store) ClearSource(ns core.Namespace, sourceKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ns {
	case core.NamespaceReddit:
		delete(s.reddit, sourceKey)
		delete(s.redditSeen, sourceKey)
	case core.NamespaceTwitter:
		delete(s.twitter, sourceKey)
		delete(s.twitterSeen, sourceKey)
	case core.NamespaceWebsites:
		delete(s.sites, sourceKey)
	}
	delete(s.updated, fmt.Sprintf("%s:%s", ns, sourceKey))
	s.save()
}

// ClearAll resets every namespace and persists immediately.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reddit = make(map[string][]string)
	s.twitter = make(map[string][]string)
	s.sites = make(map[string][]Entry)
	s.updated = make(map[string]string)
	s.redditSeen = make(map[string]map[string]bool)
	s.twitterSeen = make(map[string]map[string]bool)
	s.save()
}
