// Package queue provides a durable FIFO of pending download candidates.
// The backing file is always a valid JSON array or absent; writes go
// through a temp file and atomic rename so a crash mid-write cannot
// corrupt the queue.
package queue

import (
	"encoding/json"
	"os"
	"sync"

	"hoard/internal/core"
	hfs "hoard/internal/fs"
)

// Queue is a crash-safe persistent FIFO. Safe for concurrent use.
type Queue struct {
	path   string
	logger core.Logger

	mu    sync.Mutex
	items []core.Candidate
}

// Compile-time check that Queue implements core.Queue.
var _ core.Queue = (*Queue)(nil)

// New loads the queue from path. An unreadable file is renamed aside with
// a .bak suffix for forensic inspection and an empty queue substituted,
// so startup never fails on a corrupt queue.
func New(path string, logger core.Logger) *Queue {
	q := &Queue{path: path, logger: logger}
	q.load()
	return q
}

func (q *Queue) load() {
	data, err := os.ReadFile(q.path)
	if err != nil {
		return
	}
	var items []core.Candidate
	if err := json.Unmarshal(data, &items); err != nil {
		backup := q.path + ".bak"
		if renameErr := os.Rename(q.path, backup); renameErr == nil {
			q.logger.Warn("queue unreadable, preserved for inspection", "path", q.path, "backup", backup, "error", err)
		} else {
			q.logger.Warn("queue unreadable and backup failed", "path", q.path, "error", err)
		}
		return
	}
	q.items = items
}

// save persists the queue. Must be called with the lock held. A failed
// save is logged and the in-memory state kept: the next successful write
// reconciles, and the caller is never crashed over disk trouble.
func (q *Queue) save() {
	items := q.items
	if items == nil {
		items = []core.Candidate{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		q.logger.Error("marshaling queue", "error", err)
		return
	}
	if err := hfs.WriteFileAtomic(q.path, data); err != nil {
		q.logger.Warn("saving queue", "path", q.path, "error", err)
	}
}

// Extend appends candidates and persists. No-op on empty input to avoid
// needless disk I/O.
func (q *Queue) Extend(items []core.Candidate) {
	if len(items) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, items...)
	q.save()
}

// PopNext removes and returns the oldest candidate in FIFO order,
// persisting the shrunk queue.
func (q *Queue) PopNext() (core.Candidate, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return core.Candidate{}, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	q.save()
	return item, true
}

// Requeue puts a candidate back at the front of the queue, preserving
// its FIFO position, and persists.
func (q *Queue) Requeue(c core.Candidate) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append([]core.Candidate{c}, q.items...)
	q.save()
}

// RemoveWhere drops all candidates matching the predicate, persisting
// only if something changed. Returns how many were removed.
func (q *Queue) RemoveWhere(predicate func(core.Candidate) bool) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return 0
	}
	kept := q.items[:0:0]
	for _, item := range q.items {
		if !predicate(item) {
			kept = append(kept, item)
		}
	}
	removed := len(q.items) - len(kept)
	if removed > 0 {
		q.items = kept
		q.save()
	}
	return removed
}

// EnsureUnique removes candidates whose key was already seen, keeping the
// first occurrence and preserving order. Persists only on change.
func (q *Queue) EnsureUnique(key func(core.Candidate) string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	seen := make(map[string]bool, len(q.items))
	deduped := q.items[:0:0]
	for _, item := range q.items {
		k := key(item)
		if seen[k] {
			continue
		}
		seen[k] = true
		deduped = append(deduped, item)
	}
	if len(deduped) != len(q.items) {
		q.items = deduped
		q.save()
	}
}

// Items returns a read-only snapshot of the pending candidates.
func (q *Queue) Items() []core.Candidate {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]core.Candidate, len(q.items))
	copy(out, q.items)
	return out
}

// Len returns the number of pending candidates.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear empties the queue and removes its backing file.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
	if err := os.Remove(q.path); err != nil && !os.IsNotExist(err) {
		q.logger.Warn("removing queue file", "path", q.path, "error", err)
	}
}
