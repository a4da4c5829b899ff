package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// memQueue is an in-memory Queue for pipeline tests.
type memQueue struct {
	mu    sync.Mutex
	items []Candidate
}

func (q *memQueue) Extend(items []Candidate) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, items...)
}

func (q *memQueue) PopNext() (Candidate, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Candidate{}, false
	}
	c := q.items[0]
	q.items = q.items[1:]
	return c, true
}

func (q *memQueue) Requeue(c Candidate) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append([]Candidate{c}, q.items...)
}

func (q *memQueue) EnsureUnique(key func(Candidate) string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	seen := make(map[string]bool, len(q.items))
	kept := q.items[:0]
	for _, c := range q.items {
		k := key(c)
		if seen[k] {
			continue
		}
		seen[k] = true
		kept = append(kept, c)
	}
	q.items = kept
}

func (q *memQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// memIndex is an in-memory HashIndex backed by real file hashing.
type memIndex struct {
	mu      sync.Mutex
	byHash  map[string]string // digest -> path
	evicted int
}

func newMemIndex() *memIndex {
	return &memIndex{byHash: make(map[string]string)}
}

func (x *memIndex) HashFile(path string) string {
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

func (x *memIndex) Record(path, originURL string, metadata map[string]string) {
	digest := x.HashFile(path)
	if digest == "" {
		return
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	x.byHash[digest] = path
}

func (x *memIndex) PathForDigest(digest string, verifyExists bool) (string, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	path, ok := x.byHash[digest]
	if !ok {
		return "", false
	}
	if verifyExists {
		if _, err := os.Stat(path); err != nil {
			delete(x.byHash, digest)
			x.evicted++
			return "", false
		}
	}
	return path, true
}

func (x *memIndex) Remove(path string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	for digest, p := range x.byHash {
		if p == path {
			delete(x.byHash, digest)
			return true
		}
	}
	return false
}

func (x *memIndex) Move(oldPath, newPath string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	for digest, p := range x.byHash {
		if p == oldPath {
			x.byHash[digest] = newPath
			return true
		}
	}
	return false
}

func (x *memIndex) len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.byHash)
}

// memHistory is an in-memory History.
type memHistory struct {
	mu     sync.Mutex
	done   map[string]bool
	bySHA  map[string]string // digest -> path
	marked []string
}

func newMemHistory() *memHistory {
	return &memHistory{done: make(map[string]bool), bySHA: make(map[string]string)}
}

func historyKey(ns Namespace, sourceKey, itemID string) string {
	return string(ns) + "|" + sourceKey + "|" + itemID
}

func (h *memHistory) IsDone(ns Namespace, sourceKey, itemID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.done[historyKey(ns, sourceKey, itemID)]
}

func (h *memHistory) MarkDone(ns Namespace, sourceKey, itemID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	k := historyKey(ns, sourceKey, itemID)
	if !h.done[k] {
		h.done[k] = true
		h.marked = append(h.marked, k)
	}
}

func (h *memHistory) RecordMedia(site, mediaURL, filename, digest, path string) {
	h.MarkDone(NamespaceWebsites, site, mediaURL)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bySHA[digest] = path
}

func (h *memHistory) PathForSHA(digest string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	path, ok := h.bySHA[digest]
	return path, ok
}

func (h *memHistory) Flush() error { return nil }

// osFileOps is a minimal FileOps over real temp dirs.
type osFileOps struct{}

func (osFileOps) SafeMove(src, dst string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", err
	}
	final := dst
	for n := 1; ; n++ {
		if _, err := os.Stat(final); os.IsNotExist(err) {
			break
		}
		ext := filepath.Ext(dst)
		final = fmt.Sprintf("%s (%d)%s", strings.TrimSuffix(dst, ext), n, ext)
	}
	if err := os.Rename(src, final); err != nil {
		return "", err
	}
	return final, nil
}

func (osFileOps) WalkFiles(root string, prune func(dir string) bool, visit func(path string, size int64) error) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && prune != nil && prune(path) {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		return visit(path, info.Size())
	})
}

func (osFileOps) RemoveEmptyDirs(root string) (int, error) {
	removed := 0
	for {
		var empties []string
		filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil || !d.IsDir() || path == root {
				return nil
			}
			entries, err := os.ReadDir(path)
			if err == nil && len(entries) == 0 {
				empties = append(empties, path)
			}
			return nil
		})
		if len(empties) == 0 {
			return removed, nil
		}
		sort.Sort(sort.Reverse(sort.StringSlice(empties)))
		for _, dir := range empties {
			if os.Remove(dir) == nil {
				removed++
			}
		}
	}
}

func (osFileOps) IsHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

// scriptStep is one scripted outcome for scriptStrategy.
type scriptStep struct {
	content string
	err     error
}

// scriptStrategy is a Strategy whose behavior per URL is scripted,
// exercising retry and fallback paths without any network.
type scriptStrategy struct {
	name string

	mu      sync.Mutex
	scripts map[string][]scriptStep
	calls   map[string]int
}

func newScriptStrategy(name string) *scriptStrategy {
	return &scriptStrategy{
		name:    name,
		scripts: make(map[string][]scriptStep),
		calls:   make(map[string]int),
	}
}

func (s *scriptStrategy) script(url string, steps ...scriptStep) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[url] = steps
}

func (s *scriptStrategy) callCount(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[url]
}

func (s *scriptStrategy) Name() string         { return s.name }
func (s *scriptStrategy) Wants(Candidate) bool { return true }

func (s *scriptStrategy) Attempt(_ context.Context, c Candidate, workDir string) (string, error) {
	s.mu.Lock()
	steps := s.scripts[c.MediaURL]
	n := s.calls[c.MediaURL]
	s.calls[c.MediaURL]++
	s.mu.Unlock()

	if len(steps) == 0 {
		return "", nil
	}
	if n >= len(steps) {
		n = len(steps) - 1
	}
	step := steps[n]

	if step.err != nil {
		return "", step.err
	}
	if step.content == "" {
		return "", nil
	}

	path := filepath.Join(workDir, "media.bin")
	if err := os.WriteFile(path, []byte(step.content), 0644); err != nil {
		return "", err
	}
	return path, nil
}
