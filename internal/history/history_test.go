package history

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"hoard/internal/core"
	"hoard/internal/testutil"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.json")
	return New(path, core.NewNopLogger(), testutil.FixedClock()), path
}

func TestMarkDoneAndIsDone(t *testing.T) {
	tests := []struct {
		name      string
		ns        core.Namespace
		sourceKey string
		itemID    string
	}{
		{"reddit post", core.NamespaceReddit, "r/pics", "abc123"},
		{"twitter tweet", core.NamespaceTwitter, "someuser", "17293847"},
		{"website item", core.NamespaceWebsites, "https://example.com", "https://example.com/1.jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestStore(t)

			if s.IsDone(tt.ns, tt.sourceKey, tt.itemID) {
				t.Error("IsDone() = true before marking")
			}
			s.MarkDone(tt.ns, tt.sourceKey, tt.itemID)
			if !s.IsDone(tt.ns, tt.sourceKey, tt.itemID) {
				t.Error("IsDone() = false after marking")
			}

			// Namespaces are independent.
			for _, other := range []core.Namespace{core.NamespaceReddit, core.NamespaceTwitter, core.NamespaceWebsites} {
				if other == tt.ns {
					continue
				}
				if s.IsDone(other, tt.sourceKey, tt.itemID) {
					t.Errorf("IsDone(%s) = true, want false in other namespace", other)
				}
			}
		})
	}
}

func TestMarkDone_Idempotent(t *testing.T) {
	s, _ := newTestStore(t)

	s.MarkDone(core.NamespaceReddit, "r/pics", "abc")
	s.MarkDone(core.NamespaceReddit, "r/pics", "abc")

	if got := len(s.reddit["r/pics"]); got != 1 {
		t.Errorf("stored IDs = %d, want 1", got)
	}
}

func TestMarkDone_TouchesTimestamp(t *testing.T) {
	s, _ := newTestStore(t)

	if s.LastUpdated(core.NamespaceReddit, "r/pics") != "" {
		t.Error("LastUpdated() non-empty before any mark")
	}
	s.MarkDone(core.NamespaceReddit, "r/pics", "abc")
	if s.LastUpdated(core.NamespaceReddit, "r/pics") == "" {
		t.Error("LastUpdated() empty after mark")
	}
}

func TestRecordMedia(t *testing.T) {
	s, _ := newTestStore(t)

	s.RecordMedia("https://example.com", "https://example.com/1.jpg", "1.jpg", "deadbeef", "/archive/1.jpg")

	if !s.IsDone(core.NamespaceWebsites, "https://example.com", "https://example.com/1.jpg") {
		t.Error("RecordMedia did not imply MarkDone")
	}

	path, ok := s.PathForSHA("deadbeef")
	if !ok || path != "/archive/1.jpg" {
		t.Errorf("PathForSHA() = %q, %v, want /archive/1.jpg, true", path, ok)
	}
	if !s.IsSHADownloaded("deadbeef") {
		t.Error("IsSHADownloaded() = false, want true")
	}
	if s.IsSHADownloaded("cafebabe") {
		t.Error("IsSHADownloaded(unknown) = true, want false")
	}

	t.Run("sha lookup spans sites", func(t *testing.T) {
		s.RecordMedia("https://other.net", "https://other.net/x.jpg", "x.jpg", "f00dface", "/archive/x.jpg")
		site, e := s.EntryForSHA("f00dface")
		if site != "https://other.net" || e == nil || e.Filepath != "/archive/x.jpg" {
			t.Errorf("EntryForSHA() = %q, %+v", site, e)
		}
	})
}

func TestUpsert_CompletesWithoutDuplicating(t *testing.T) {
	s, _ := newTestStore(t)

	// Discovery marks the item first, with no file details yet.
	s.MarkDone(core.NamespaceWebsites, "https://example.com", "https://example.com/1.jpg")
	// A later download fills in the rest.
	s.RecordMedia("https://example.com", "https://example.com/1.jpg", "1.jpg", "deadbeef", "/archive/1.jpg")

	entries := s.SiteEntries("https://example.com")
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.Filename != "1.jpg" || e.SHA256 != "deadbeef" || e.Filepath != "/archive/1.jpg" {
		t.Errorf("entry not completed: %+v", e)
	}

	t.Run("existing fields are not overwritten", func(t *testing.T) {
		s.RecordMedia("https://example.com", "https://example.com/1.jpg", "other.jpg", "cafebabe", "/elsewhere")
		entries := s.SiteEntries("https://example.com")
		if len(entries) != 1 {
			t.Fatalf("entries = %d, want 1", len(entries))
		}
		if entries[0].SHA256 != "deadbeef" {
			t.Errorf("SHA256 = %q, want original deadbeef", entries[0].SHA256)
		}
	})
}

func TestLoad_UpgradesLegacyStringEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	legacy := `{
		"reddit_posts": {"r/pics": ["a1", "a2"]},
		"twitter_tweets": {"user": ["t1"]},
		"websites": {
			"https://example.com": [
				"https://example.com/old.jpg",
				{"media_url": "https://example.com/new.jpg", "sha256": "deadbeef", "filepath": "/archive/new.jpg"}
			]
		},
		"last_updated": {}
	}`
	if err := os.WriteFile(path, []byte(legacy), 0644); err != nil {
		t.Fatal(err)
	}

	s := New(path, core.NewNopLogger(), testutil.FixedClock())

	// Legacy string entry is queryable like a structured one.
	if !s.IsDone(core.NamespaceWebsites, "https://example.com", "https://example.com/old.jpg") {
		t.Error("legacy entry not recognized")
	}
	if !s.IsDone(core.NamespaceWebsites, "https://example.com", "https://example.com/new.jpg") {
		t.Error("structured entry not recognized")
	}
	if !s.IsDone(core.NamespaceReddit, "r/pics", "a2") {
		t.Error("reddit history not loaded")
	}
	if path, ok := s.PathForSHA("deadbeef"); !ok || path != "/archive/new.jpg" {
		t.Errorf("PathForSHA() = %q, %v", path, ok)
	}

	// After a save, the legacy entry is written in structured form.
	s.MarkDone(core.NamespaceWebsites, "https://example.com", "https://example.com/third.jpg")
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		t.Fatal(err)
	}
	var doc struct {
		Websites map[string][]json.RawMessage `json:"websites"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	for _, rm := range doc.Websites["https://example.com"] {
		var str string
		if json.Unmarshal(rm, &str) == nil {
			t.Errorf("bare string entry survived rewrite: %s", rm)
		}
	}
}

func TestFlushAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	s := New(path, core.NewNopLogger(), testutil.FixedClock())

	s.MarkDone(core.NamespaceTwitter, "user", "t1")
	s.RecordMedia("https://example.com", "https://example.com/1.jpg", "1.jpg", "deadbeef", "/archive/1.jpg")
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	reloaded := New(path, core.NewNopLogger(), testutil.FixedClock())
	if !reloaded.IsDone(core.NamespaceTwitter, "user", "t1") {
		t.Error("twitter entry lost on reload")
	}
	if p, ok := reloaded.PathForSHA("deadbeef"); !ok || p != "/archive/1.jpg" {
		t.Errorf("PathForSHA() after reload = %q, %v", p, ok)
	}
}

func TestLoad_CorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	if err := os.WriteFile(path, []byte("][ nope"), 0644); err != nil {
		t.Fatal(err)
	}

	s := New(path, core.NewNopLogger(), testutil.FixedClock())
	stats := s.Statistics()
	if stats.RedditSources != 0 || stats.Websites != 0 {
		t.Errorf("stats = %+v for corrupt file, want empty", stats)
	}
}

func TestStatistics(t *testing.T) {
	s, _ := newTestStore(t)
	s.MarkDone(core.NamespaceReddit, "r/pics", "a")
	s.MarkDone(core.NamespaceReddit, "r/pics", "b")
	s.MarkDone(core.NamespaceReddit, "r/earthporn", "c")
	s.MarkDone(core.NamespaceTwitter, "user", "t1")
	s.RecordMedia("https://example.com", "https://example.com/1.jpg", "", "", "")

	stats := s.Statistics()
	if stats.RedditSources != 2 || stats.RedditPosts != 3 {
		t.Errorf("reddit stats = %d/%d, want 2/3", stats.RedditSources, stats.RedditPosts)
	}
	if stats.TwitterUsers != 1 || stats.TwitterTweets != 1 {
		t.Errorf("twitter stats = %d/%d, want 1/1", stats.TwitterUsers, stats.TwitterTweets)
	}
	if stats.Websites != 1 || stats.WebsiteItems != 1 {
		t.Errorf("website stats = %d/%d, want 1/1", stats.Websites, stats.WebsiteItems)
	}
}

func TestClearSource(t *testing.T) {
	s, _ := newTestStore(t)
	s.MarkDone(core.NamespaceReddit, "r/pics", "a")
	s.MarkDone(core.NamespaceReddit, "r/earthporn", "b")

	s.ClearSource(core.NamespaceReddit, "r/pics")

	if s.IsDone(core.NamespaceReddit, "r/pics", "a") {
		t.Error("cleared source still done")
	}
	if !s.IsDone(core.NamespaceReddit, "r/earthporn", "b") {
		t.Error("other source lost")
	}
	if s.LastUpdated(core.NamespaceReddit, "r/pics") != "" {
		t.Error("timestamp survived clear")
	}
}

func TestClearAll(t *testing.T) {
	s, _ := newTestStore(t)
	s.MarkDone(core.NamespaceReddit, "r/pics", "a")
	s.RecordMedia("https://example.com", "https://example.com/1.jpg", "", "", "")

	s.ClearAll()

	stats := s.Statistics()
	if stats.RedditPosts != 0 || stats.WebsiteItems != 0 {
		t.Errorf("stats after ClearAll = %+v, want empty", stats)
	}
}
