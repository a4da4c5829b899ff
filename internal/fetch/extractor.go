package fetch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"hoard/internal/core"
)

// defaultExtractorTimeout bounds one extractor invocation. Extraction of
// streamed video legitimately takes longer than a plain fetch.
const defaultExtractorTimeout = 2 * time.Minute

// ExtractorStrategy shells out to an external video extractor (a yt-dlp
// style tool) capable of resolving streaming or embedded video into a
// direct file. It is the first layer for recognized video URLs and for
// candidates that explicitly force it.
type ExtractorStrategy struct {
	binary    string
	timeout   time.Duration
	userAgent string
}

var _ core.Strategy = (*ExtractorStrategy)(nil)

// NewExtractorStrategy creates an extractor strategy invoking binary.
// timeout <= 0 uses the default.
func NewExtractorStrategy(binary string, timeout time.Duration, userAgent string) *ExtractorStrategy {
	if timeout <= 0 {
		timeout = defaultExtractorTimeout
	}
	return &ExtractorStrategy{binary: binary, timeout: timeout, userAgent: userAgent}
}

func (s *ExtractorStrategy) Name() string { return "extractor" }

// Wants accepts candidates that look like video or explicitly force the
// extractor.
func (s *ExtractorStrategy) Wants(c core.Candidate) bool {
	if s.binary == "" {
		return false
	}
	return c.ForceExtractor || looksLikeVideo(c.MediaURL)
}

// Attempt invokes the extractor with an output template inside workDir
// and returns whatever file it produced. A missing binary skips the
// layer; a nonzero exit falls through to the next layer.
func (s *ExtractorStrategy) Attempt(ctx context.Context, c core.Candidate, workDir string) (string, error) {
	dir := filepath.Join(workDir, "extractor")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating work dir: %w", err)
	}

	base := stem(filenameFromURL(c.MediaURL, "video"))
	template := filepath.Join(dir, base+".%(ext)s")

	args := []string{"-o", template, "--no-warnings", "--no-playlist"}
	if c.SourcePage != "" {
		args = append(args, "--add-header", "Referer: "+c.SourcePage)
	}
	if s.userAgent != "" {
		args = append(args, "--add-header", "User-Agent: "+s.userAgent)
	}
	args = append(args, c.MediaURL)

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, s.binary, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			// Tool not installed: not a failure, just skip the layer.
			return "", nil
		}
		if runCtx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("extractor timed out after %s", s.timeout)
		}
		return "", fmt.Errorf("extractor failed: %s", firstLine(output))
	}

	return findProduced(dir, base), nil
}

// findProduced locates the file the extractor wrote for the given stem.
// The extension is the extractor's choice, so any match counts.
func findProduced(dir, base string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if e.Type().IsRegular() && len(e.Name()) >= len(base) && e.Name()[:len(base)] == base {
			return filepath.Join(dir, e.Name())
		}
	}
	return ""
}

// firstLine trims command output to its first line for error messages.
func firstLine(output []byte) string {
	for i, b := range output {
		if b == '\n' {
			return string(output[:i])
		}
	}
	return string(output)
}
