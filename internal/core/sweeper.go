package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SweepStage is the state-machine position of a sweep run.
type SweepStage int

const (
	StageCounting SweepStage = iota
	StageHashing
	StagePlanning
	StageMoving
	StageCleanup
	StageDone
	StageCancelled
)

func (s SweepStage) String() string {
	switch s {
	case StageCounting:
		return "counting"
	case StageHashing:
		return "hashing"
	case StagePlanning:
		return "planning"
	case StageMoving:
		return "moving"
	case StageCleanup:
		return "cleanup"
	case StageDone:
		return "done"
	default:
		return "cancelled"
	}
}

// SweepProgressFunc reports sweep progress at a bounded cadence.
type SweepProgressFunc func(stage SweepStage, done, total int)

// progressEvery is how many files pass between progress callbacks during
// the counting and hashing stages.
const progressEvery = 16

// SweepFilters restricts which files a sweep considers.
type SweepFilters struct {
	// IncludeExts, when non-empty, is an extension allow-list
	// (lowercase, leading dot). Files with other extensions are skipped.
	IncludeExts []string

	// MinSize skips files smaller than this many bytes.
	MinSize int64

	// ExcludeSubstrings skips any path containing one of these
	// substrings (matched case-insensitively against the full path).
	ExcludeSubstrings []string

	// IgnoreHidden skips dot-prefixed files.
	IgnoreHidden bool
}

// normalized returns a copy with lowercased extensions and substrings.
func (f SweepFilters) normalized() SweepFilters {
	out := SweepFilters{MinSize: f.MinSize, IgnoreHidden: f.IgnoreHidden}
	for _, ext := range f.IncludeExts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out.IncludeExts = append(out.IncludeExts, ext)
	}
	for _, sub := range f.ExcludeSubstrings {
		sub = strings.ToLower(strings.TrimSpace(sub))
		if sub != "" {
			out.ExcludeSubstrings = append(out.ExcludeSubstrings, sub)
		}
	}
	return out
}

func (f SweepFilters) admits(path string, size int64, hidden func(string) bool) bool {
	lower := strings.ToLower(path)
	for _, sub := range f.ExcludeSubstrings {
		if strings.Contains(lower, sub) {
			return false
		}
	}
	if len(f.IncludeExts) > 0 {
		ext := strings.ToLower(filepath.Ext(path))
		found := false
		for _, allowed := range f.IncludeExts {
			if ext == allowed {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if size < f.MinSize {
		return false
	}
	if f.IgnoreHidden && hidden(path) {
		return false
	}
	return true
}

// plannedMove is one duplicate file scheduled for relocation.
type plannedMove struct {
	src string
	dst string
}

// SweepSummary reports what a sweep run did. A cancelled run reports the
// partial results accumulated so far; moves are never rolled back.
type SweepSummary struct {
	Stage        SweepStage
	Counted      int
	Hashed       int
	Groups       int
	CrossFolder  int
	PlannedMoves int
	Moved        int
	MoveFailures int
	DirsRemoved  int
	Cancelled    bool
}

// Sweeper finds byte-identical duplicates under a directory tree —
// including duplicates of files the index already tracks elsewhere — and
// relocates them into a quarantine folder, preserving relative structure.
type Sweeper struct {
	index   HashIndex
	fileOps FileOps
	logger  Logger
	control Control

	progress SweepProgressFunc
}

// NewSweeper creates a sweeper with the provided dependencies.
// control and progress may be nil.
func NewSweeper(index HashIndex, fileOps FileOps, logger Logger, control Control, progress SweepProgressFunc) *Sweeper {
	if control == nil {
		control = NopControl{}
	}
	return &Sweeper{
		index:    index,
		fileOps:  fileOps,
		logger:   logger,
		control:  control,
		progress: progress,
	}
}

func (s *Sweeper) report(stage SweepStage, done, total int) {
	if s.progress != nil {
		s.progress(stage, done, total)
	}
}

// checkpoint applies the cooperative pause/cancel flags between files.
// Returns false when the run should stop.
func (s *Sweeper) checkpoint() bool {
	return waitWhilePaused(s.control)
}

// Run executes one full sweep of sourceDir, quarantining duplicates under
// destDir. destDir is always pruned from traversal. Per-file failures are
// counted and logged, never fatal; only a broken precondition (unusable
// source root) returns an error.
func (s *Sweeper) Run(sourceDir, destDir string, filters SweepFilters) (*SweepSummary, error) {
	sourceAbs, err := filepath.Abs(sourceDir)
	if err != nil {
		return nil, fmt.Errorf("resolving source dir: %w", err)
	}
	destAbs, err := filepath.Abs(destDir)
	if err != nil {
		return nil, fmt.Errorf("resolving destination dir: %w", err)
	}
	if _, err := os.Stat(sourceAbs); err != nil {
		return nil, fmt.Errorf("source dir: %w", err)
	}

	f := filters.normalized()
	summary := &SweepSummary{}

	// The destination comparison is case-exact: on a case-sensitive
	// filesystem a sibling differing only by case is a distinct
	// directory and must still be swept. Exclude substrings match
	// case-insensitively, same as the per-file filters.
	prune := func(dir string) bool {
		if dir == destAbs || strings.HasPrefix(dir, destAbs+string(filepath.Separator)) {
			return true
		}
		lower := strings.ToLower(dir)
		for _, sub := range f.ExcludeSubstrings {
			if strings.Contains(lower, sub) {
				return true
			}
		}
		return false
	}

	// COUNTING: one cheap pass to get an accurate progress denominator.
	summary.Stage = StageCounting
	s.logger.Info("sweep: counting eligible files", "source", sourceAbs)
	cancelled := false
	err = s.fileOps.WalkFiles(sourceAbs, prune, func(path string, size int64) error {
		if !s.checkpoint() {
			cancelled = true
			return filepath.SkipAll
		}
		if !f.admits(path, size, s.fileOps.IsHidden) {
			return nil
		}
		summary.Counted++
		if summary.Counted%progressEvery == 0 {
			s.report(StageCounting, summary.Counted, 0)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("counting files: %w", err)
	}
	if cancelled {
		return s.cancel(summary), nil
	}
	s.logger.Info("sweep: counted", "eligible", summary.Counted)

	// HASHING: second pass, group paths by content digest.
	summary.Stage = StageHashing
	groups := make(map[string][]string)
	err = s.fileOps.WalkFiles(sourceAbs, prune, func(path string, size int64) error {
		if !s.checkpoint() {
			cancelled = true
			return filepath.SkipAll
		}
		if !f.admits(path, size, s.fileOps.IsHidden) {
			return nil
		}
		digest := s.index.HashFile(path)
		if digest == "" {
			return nil
		}
		groups[digest] = append(groups[digest], path)
		summary.Hashed++
		if summary.Hashed%progressEvery == 0 {
			s.report(StageHashing, summary.Hashed, summary.Counted)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("hashing files: %w", err)
	}
	if cancelled {
		return s.cancel(summary), nil
	}
	s.report(StageHashing, summary.Hashed, summary.Counted)
	s.logger.Info("sweep: hashed", "files", summary.Hashed, "signatures", len(groups))

	// PLANNING: pick a keeper per group. An externally tracked copy
	// outside the scanned tree beats any in-tree path; every other
	// member becomes a planned move into the mirrored structure.
	summary.Stage = StagePlanning
	var plan []plannedMove
	for digest, paths := range groups {
		keeperExternal := false
		if tracked, ok := s.index.PathForDigest(digest, true); ok {
			if !insideTree(tracked, sourceAbs) {
				keeperExternal = true
				summary.CrossFolder++
			}
		}

		var toMove []string
		switch {
		case keeperExternal:
			// Everything in the tree duplicates the external keeper.
			toMove = paths
		case len(paths) > 1:
			toMove = paths[1:]
		default:
			continue
		}

		summary.Groups++
		for _, p := range toMove {
			rel, err := filepath.Rel(sourceAbs, p)
			if err != nil {
				s.logger.Warn("sweep: relative path", "path", p, "error", err)
				continue
			}
			plan = append(plan, plannedMove{src: p, dst: filepath.Join(destAbs, rel)})
		}
	}
	summary.PlannedMoves = len(plan)
	s.logger.Info("sweep: planned", "groups", summary.Groups, "crossFolder", summary.CrossFolder, "moves", summary.PlannedMoves)

	if summary.PlannedMoves == 0 {
		summary.Stage = StageDone
		return summary, nil
	}

	// MOVING: relocate duplicates, updating the index for any moved path
	// it tracks. Failures are counted, never abort the plan.
	summary.Stage = StageMoving
	for _, mv := range plan {
		if !s.checkpoint() {
			return s.cancel(summary), nil
		}
		final, err := s.fileOps.SafeMove(mv.src, mv.dst)
		if err != nil {
			summary.MoveFailures++
			s.logger.Warn("sweep: move failed", "src", mv.src, "error", err)
			continue
		}
		s.index.Move(mv.src, final)
		summary.Moved++
		s.report(StageMoving, summary.Moved, summary.PlannedMoves)
	}

	// CLEANUP: moving files out can empty directories; sweep them away.
	summary.Stage = StageCleanup
	removed, err := s.fileOps.RemoveEmptyDirs(sourceAbs)
	if err != nil {
		s.logger.Warn("sweep: cleanup", "error", err)
	}
	summary.DirsRemoved = removed

	summary.Stage = StageDone
	s.logger.Info("sweep: done",
		"moved", summary.Moved,
		"failures", summary.MoveFailures,
		"dirsRemoved", summary.DirsRemoved)
	return summary, nil
}

func (s *Sweeper) cancel(summary *SweepSummary) *SweepSummary {
	summary.Stage = StageCancelled
	summary.Cancelled = true
	s.logger.Info("sweep: cancelled", "stage", summary.Stage.String())
	return summary
}

// insideTree reports whether path lies under root.
func insideTree(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}
