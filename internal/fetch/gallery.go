package fetch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"hoard/internal/core"
)

// GalleryStrategy shells out to a generic gallery extractor (a gallery-dl
// style tool) as the last layer of the fallback chain. It is tried
// against the media URL first, then the source page.
type GalleryStrategy struct {
	binary  string
	timeout time.Duration
}

var _ core.Strategy = (*GalleryStrategy)(nil)

// NewGalleryStrategy creates a gallery-extractor strategy invoking
// binary. timeout <= 0 uses the extractor default.
func NewGalleryStrategy(binary string, timeout time.Duration) *GalleryStrategy {
	if timeout <= 0 {
		timeout = defaultExtractorTimeout
	}
	return &GalleryStrategy{binary: binary, timeout: timeout}
}

func (s *GalleryStrategy) Name() string { return "gallery" }

// Wants accepts everything as long as a binary is configured; this is
// the catch-all layer.
func (s *GalleryStrategy) Wants(core.Candidate) bool { return true }

// Attempt runs the gallery extractor into a private subdir of workDir
// and returns the first file it produced.
func (s *GalleryStrategy) Attempt(ctx context.Context, c core.Candidate, workDir string) (string, error) {
	if s.binary == "" {
		return "", nil
	}

	dir := filepath.Join(workDir, "gallery")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating work dir: %w", err)
	}

	targets := []string{c.MediaURL}
	if c.SourcePage != "" && c.SourcePage != c.MediaURL {
		targets = append(targets, c.SourcePage)
	}

	var lastErr error
	for _, target := range targets {
		runCtx, cancel := context.WithTimeout(ctx, s.timeout)
		cmd := exec.CommandContext(runCtx, s.binary, "-D", dir, target)
		output, err := cmd.CombinedOutput()
		cancel()

		if err != nil {
			if errors.Is(err, exec.ErrNotFound) {
				return "", nil
			}
			lastErr = fmt.Errorf("gallery extractor failed for %s: %s", target, firstLine(output))
			continue
		}
		if produced := firstFileUnder(dir); produced != "" {
			return produced, nil
		}
	}
	return "", lastErr
}

// firstFileUnder returns the first regular file found under dir, walking
// nested gallery subdirectories too.
func firstFileUnder(dir string) string {
	var found string
	filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			found = p
			return filepath.SkipAll
		}
		return nil
	})
	return found
}
